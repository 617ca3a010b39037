package weeks

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
	"github.com/fallout666222/media-client-manager/internal/rbac"
)

// FirstWeekSource yields a user's first reporting week, zero when the
// account has none configured.
type FirstWeekSource interface {
	FirstWeek(ctx context.Context, userID int64) (time.Time, error)
}

// Handler exposes custom week administration and week resolution.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	directory FirstWeekSource
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, directory FirstWeekSource, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		directory: directory,
		rbac:      rbac,
		validator: validator.New(),
	}
}

// MountRoutes registers week routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/", h.list)
		r.Get("/resolve", h.resolve)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole("admin"))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Get("/misaligned", h.misaligned)
	})
}

type customWeekRequest struct {
	Name          string  `json:"name" validate:"required,max=100"`
	PeriodFrom    string  `json:"period_from" validate:"required,datetime=2006-01-02"`
	PeriodTo      string  `json:"period_to" validate:"required,datetime=2006-01-02"`
	RequiredHours float64 `json:"required_hours" validate:"gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	weeks, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list custom weeks", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if weeks == nil {
		weeks = []CustomWeek{}
	}
	httpx.JSON(w, http.StatusOK, weeks)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	date, err := time.ParseInLocation(KeyLayout, r.URL.Query().Get("date"), time.UTC)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be formatted yyyy-MM-dd")
		return
	}

	firstWeek, err := h.directory.FirstWeek(r.Context(), actorID)
	if err != nil {
		h.logger.Error("resolve week load user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	week, err := h.service.Resolve(r.Context(), date, firstWeek)
	if err != nil {
		if errors.Is(err, ErrNoWeek) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", ErrNoWeek.Error())
			return
		}
		h.logger.Error("resolve week", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, week)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	week, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), week)
	if err != nil {
		h.respondServiceError(w, "create custom week", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid week id")
		return
	}
	week, ok := h.decode(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Update(r.Context(), id, week)
	if err != nil {
		h.respondServiceError(w, "update custom week", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid week id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, "delete custom week", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) misaligned(w http.ResponseWriter, r *http.Request) {
	weeks, err := h.service.MisalignedWeeks(r.Context())
	if err != nil {
		h.logger.Error("list misaligned weeks", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if weeks == nil {
		weeks = []CustomWeek{}
	}
	httpx.JSON(w, http.StatusOK, weeks)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (CustomWeek, bool) {
	var req customWeekRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return CustomWeek{}, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CustomWeek{}, false
	}
	from, _ := time.ParseInLocation(KeyLayout, req.PeriodFrom, time.UTC)
	to, _ := time.ParseInLocation(KeyLayout, req.PeriodTo, time.UTC)
	return CustomWeek{
		Name:          req.Name,
		PeriodFrom:    from,
		PeriodTo:      to,
		RequiredHours: req.RequiredHours,
	}, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrInvalidPeriod), errors.Is(err, ErrInvalidHours):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
