package timesheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fallout666222/media-client-manager/internal/platform/httpx"
	"github.com/fallout666222/media-client-manager/internal/rbac"
	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/users"
	"github.com/fallout666222/media-client-manager/internal/weeks"
)

// Exporter renders a week summary document.
type Exporter interface {
	WeekSummaryPDF(ctx context.Context, view *WeekView, userName string) ([]byte, error)
}

type updateEntryRequest struct {
	ClientID    int64   `json:"client_id" validate:"required,gt=0"`
	MediaTypeID int64   `json:"media_type_id" validate:"required,gt=0"`
	Hours       float64 `json:"hours" validate:"gte=0"`
}

// Handler exposes timesheet endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	users     UserDirectory
	exporter  Exporter
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. exporter may be nil.
func NewHandler(logger *slog.Logger, service *Service, users UserDirectory, exporter Exporter, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		users:     users,
		exporter:  exporter,
		rbac:      rbac,
		validator: validator.New(),
	}
}

// MountRoutes registers timesheet routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/{userID}/ledger", h.ledger)
		r.Get("/{userID}/statuses", h.statuses)
		r.Get("/{userID}/first-unsubmitted", h.firstUnsubmitted)
		r.Get("/{userID}/weeks/{date}", h.week)
		r.Put("/{userID}/weeks/{date}/entries", h.updateEntry)
		r.Get("/{userID}/weeks/{date}/percentages", h.percentages)
		r.Get("/{userID}/weeks/{date}/approvals", h.approvals)
		r.Get("/{userID}/weeks/{date}/export", h.export)
		r.Post("/{userID}/weeks/{date}/submit", h.submit)
		r.Post("/{userID}/weeks/{date}/approve", h.approve)
		r.Post("/{userID}/weeks/{date}/reject", h.reject)
	})
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	ledger, err := h.service.Ledger(r.Context(), actorID, userID)
	if err != nil {
		h.respondServiceError(w, "load ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) statuses(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	chronological := r.URL.Query().Get("chronological") != "false"
	rows, err := h.service.Statuses(r.Context(), actorID, userID, chronological)
	if err != nil {
		h.respondServiceError(w, "load statuses", err)
		return
	}
	if rows == nil {
		rows = []WeekStatus{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) firstUnsubmitted(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	first, err := h.service.FirstUnsubmitted(r.Context(), actorID, userID, time.Now())
	if err != nil {
		h.respondServiceError(w, "first unsubmitted", err)
		return
	}
	resp := map[string]any{"week": nil}
	if !first.IsZero() {
		resp["week"] = weeks.Key(first)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) week(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	userID, date, ok := h.pathUserDate(w, r)
	if !ok {
		return
	}
	view, err := h.service.Week(r.Context(), actorID, userID, date)
	if err != nil {
		h.respondServiceError(w, "load week", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	userID, date, ok := h.pathUserDate(w, r)
	if !ok {
		return
	}
	var req updateEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateEntry(r.Context(), actorID, userID, date, req.ClientID, req.MediaTypeID, req.Hours); err != nil {
		h.respondServiceError(w, "update entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) percentages(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	userID, date, ok := h.pathUserDate(w, r)
	if !ok {
		return
	}
	list, err := h.service.WeekPercentages(r.Context(), actorID, userID, date)
	if err != nil {
		h.respondServiceError(w, "week percentages", err)
		return
	}
	if list == nil {
		list = []WeekPercentage{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	userID, date, ok := h.pathUserDate(w, r)
	if !ok {
		return
	}
	list, err := h.service.ApprovalHistory(r.Context(), actorID, userID, weeks.Key(date))
	if err != nil {
		h.respondServiceError(w, "approval history", err)
		return
	}
	if list == nil {
		list = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Export Unavailable", "document rendering is not configured")
		return
	}
	actorID, _ := rbac.CurrentUserID(r)
	userID, date, ok := h.pathUserDate(w, r)
	if !ok {
		return
	}
	view, err := h.service.Week(r.Context(), actorID, userID, date)
	if err != nil {
		h.respondServiceError(w, "load week", err)
		return
	}
	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, "load user", err)
		return
	}
	pdf, err := h.exporter.WeekSummaryPDF(r.Context(), view, user.Name)
	if err != nil {
		h.logger.Error("render week summary", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Export Failed", "document rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "week-"+view.Week.Key+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.Submit)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.Reject)
}

func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64, time.Time) (*WeekStatus, error)) {
	actorID, _ := rbac.CurrentUserID(r)
	userID, date, ok := h.pathUserDate(w, r)
	if !ok {
		return
	}
	status, err := fn(r.Context(), actorID, userID, date)
	if err != nil {
		h.respondServiceError(w, "week status transition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) pathUserDate(w http.ResponseWriter, r *http.Request) (int64, time.Time, bool) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return 0, time.Time{}, false
	}
	date, err := weeks.ParseKey(chi.URLParam(r, "date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected yyyy-mm-dd")
		return 0, time.Time{}, false
	}
	return userID, date, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, weeks.ErrNoWeek):
		httpx.Problem(w, http.StatusNotFound, "No Week", "no reporting week covers this date")
	case errors.Is(err, users.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrHoursCapExceeded):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Hours Cap Exceeded", err.Error())
	case errors.Is(err, ErrNegativeHours):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrWeekSubmitted), errors.Is(err, shared.ErrInvalidStatusTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
