package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fallout666222/media-client-manager/internal/auth"
	"github.com/fallout666222/media-client-manager/internal/shared"
	_ "github.com/fallout666222/media-client-manager/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByLogin(ctx context.Context, login string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Login, login) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func newAuthRouter(t *testing.T, repo auth.Repository, ssoSecret string) (chi.Router, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := auth.NewService(repo, ssoSecret, "tokensecret", 15*time.Minute)
	handler := auth.NewHandler(logger, service, sessionManager, csrfManager, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessionManager.Load(req.Context(), req)
			require.NoError(t, err)
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	handler.MountRoutes(r)
	return r, sessionManager
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(h)
}

func TestLoginSuccess(t *testing.T) {
	router, _ := newAuthRouter(t, &stubRepo{user: &auth.User{
		ID:           1,
		Login:        "jsmith",
		Name:         "J. Smith",
		Role:         "user",
		PasswordHash: hashed(t, "correctpass"),
	}}, "")

	body := strings.NewReader(`{"login":"jsmith","password":"correctpass"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var resp struct {
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.Equal(t, "jsmith", resp.User.Login)
	require.NotEmpty(t, resp.CSRFToken)
}

func TestLoginInvalidCredentials(t *testing.T) {
	router, _ := newAuthRouter(t, &stubRepo{user: &auth.User{
		ID:           1,
		Login:        "jsmith",
		PasswordHash: hashed(t, "correctpass"),
	}}, "")

	body := strings.NewReader(`{"login":"jsmith","password":"wrongpass1"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginRejectsHiddenAccount(t *testing.T) {
	router, _ := newAuthRouter(t, &stubRepo{user: &auth.User{
		ID:           1,
		Login:        "jsmith",
		PasswordHash: hashed(t, "correctpass"),
		Hidden:       true,
	}}, "")

	body := strings.NewReader(`{"login":"jsmith","password":"correctpass"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func signSSOToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestSSOExchangeUnconfigured(t *testing.T) {
	router, _ := newAuthRouter(t, &stubRepo{}, "")

	body := strings.NewReader(`{"token":"anything"}`)
	req := httptest.NewRequest(http.MethodPost, "/sso/exchange", body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestSSOExchangeIssuesAccessToken(t *testing.T) {
	router, _ := newAuthRouter(t, &stubRepo{user: &auth.User{
		ID:    1,
		Login: "jsmith",
		Name:  "J. Smith",
		Role:  "user",
	}}, "idpsecret")

	signed := signSSOToken(t, "idpsecret", "jsmith")
	req := httptest.NewRequest(http.MethodPost, "/sso/exchange", strings.NewReader(`{"token":"`+signed+`"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)

	parsed, err := jwt.Parse(resp.AccessToken, func(*jwt.Token) (interface{}, error) {
		return []byte("tokensecret"), nil
	})
	require.NoError(t, err)
	sub, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	require.Equal(t, "1", sub)
}

func TestSSOExchangeRejectsBadSignature(t *testing.T) {
	router, _ := newAuthRouter(t, &stubRepo{user: &auth.User{ID: 1, Login: "jsmith"}}, "idpsecret")

	signed := signSSOToken(t, "wrongsecret", "jsmith")
	req := httptest.NewRequest(http.MethodPost, "/sso/exchange", strings.NewReader(`{"token":"`+signed+`"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}
