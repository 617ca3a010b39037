package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/fallout666222/media-client-manager/internal/shared"
)

// Service wraps authentication business rules: password login, session
// bookkeeping, and SSO token exchange against an external identity provider.
type Service struct {
	repo        Repository
	ssoSecret   []byte
	tokenSecret []byte
	tokenTTL    time.Duration
}

// NewService constructs a new Service. ssoSecret may be empty; token exchange
// is then reported as unconfigured rather than silently accepted.
func NewService(repo Repository, ssoSecret, tokenSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		repo:        repo,
		ssoSecret:   []byte(ssoSecret),
		tokenSecret: []byte(tokenSecret),
		tokenTTL:    tokenTTL,
	}
}

// Authenticate validates login/password credentials.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	user, err := s.repo.FindByLogin(ctx, login)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if user.Hidden {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// ExchangeSSOToken verifies an identity provider assertion and maps its
// subject to a local account. The assertion must be an HMAC-signed JWT; its
// signature is checked against the configured provider secret, never trusted
// from the client side.
func (s *Service) ExchangeSSOToken(ctx context.Context, rawToken string) (*User, error) {
	if len(s.ssoSecret) == 0 {
		return nil, ErrSSONotConfigured
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.ssoSecret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	user, err := s.repo.FindByLogin(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
	}
	if user.Hidden {
		return nil, fmt.Errorf("%w: account disabled", ErrInvalidToken)
	}
	return user, nil
}

// IssueAccessToken signs a short-lived JWT for the authenticated user.
func (s *Service) IssueAccessToken(user *User, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", user.ID),
		"name": user.Name,
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.tokenSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
