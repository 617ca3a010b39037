package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fallout666222/media-client-manager/internal/platform/httpx"
	"github.com/fallout666222/media-client-manager/internal/settings"
	"github.com/fallout666222/media-client-manager/internal/shared"
)

// SettingsLifecycle hooks user settings into the login/logout lifecycle.
type SettingsLifecycle interface {
	Init(ctx context.Context, userID int64) (settings.Settings, error)
	Teardown(userID int64)
}

type loginRequest struct {
	Login    string `json:"login" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8"`
}

type ssoExchangeRequest struct {
	Token string `json:"token" validate:"required"`
}

type loginResponse struct {
	User      *User              `json:"user"`
	Settings  *settings.Settings `json:"settings,omitempty"`
	CSRFToken string             `json:"csrf_token,omitempty"`
}

type ssoExchangeResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"access_token"`
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	settings       SettingsLifecycle
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance. settings may be nil.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, settings SettingsLifecycle) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		settings:       settings,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/csrf", h.handleCSRF)
	r.Post("/sso/exchange", h.handleSSOExchange)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid login or password")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "session unavailable")
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, time.Now().Add(h.sessionManager.TTL()), r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	resp := loginResponse{User: user}
	if h.settings != nil {
		if userSettings, err := h.settings.Init(r.Context(), user.ID); err != nil {
			h.logger.Warn("init settings", slog.Any("error", err))
		} else {
			resp.Settings = &userSettings
		}
	}
	if token, err := h.csrfManager.EnsureToken(r.Context(), sess); err == nil {
		resp.CSRFToken = token
	}

	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if h.settings != nil {
			if userID, err := strconv.ParseInt(sess.User(), 10, 64); err == nil {
				h.settings.Teardown(userID)
			}
		}
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "session unavailable")
		return
	}
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) handleSSOExchange(w http.ResponseWriter, r *http.Request) {
	var req ssoExchangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.ExchangeSSOToken(r.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, ErrSSONotConfigured):
			httpx.Problem(w, http.StatusServiceUnavailable, "SSO Unavailable", err.Error())
		case errors.Is(err, ErrInvalidToken):
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sso token rejected")
		default:
			h.logger.Error("sso exchange", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	accessToken, err := h.service.IssueAccessToken(user, time.Now())
	if err != nil {
		h.logger.Error("issue access token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetUser(strconv.FormatInt(user.ID, 10))
		if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, time.Now().Add(h.sessionManager.TTL()), r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}
	if h.settings != nil {
		if _, err := h.settings.Init(r.Context(), user.ID); err != nil {
			h.logger.Warn("init settings", slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusOK, ssoExchangeResponse{User: user, AccessToken: accessToken})
}
