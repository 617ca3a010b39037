package planning

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
	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/users"
)

type createVersionRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Year int    `json:"year" validate:"required,gte=2000,lte=2100"`
}

type renameVersionRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type quarterLocksRequest struct {
	Q1Locked bool `json:"q1_locked"`
	Q2Locked bool `json:"q2_locked"`
	Q3Locked bool `json:"q3_locked"`
	Q4Locked bool `json:"q4_locked"`
}

type allocationRequest struct {
	ClientID int64   `json:"client_id" validate:"required,gt=0"`
	Month    int     `json:"month" validate:"required,gte=1,lte=12"`
	Hours    float64 `json:"hours" validate:"gte=0"`
}

// Handler exposes planning endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      rbac,
		validator: validator.New(),
	}
}

// MountRoutes registers planning routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/", h.list)
		r.Get("/approvals", h.approvals)
		r.Get("/{id}", h.get)
		r.Get("/{id}/allocations/{userID}", h.allocations)
		r.Put("/{id}/allocations/{userID}", h.updateAllocation)
		r.Get("/{id}/status/{userID}", h.userStatus)
		r.Post("/{id}/status/{userID}/submit", h.submit)
		r.Post("/{id}/status/{userID}/approve", h.approve)
		r.Post("/{id}/status/{userID}/reject", h.reject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(users.RoleAdmin))
		r.Post("/", h.create)
		r.Put("/{id}", h.rename)
		r.Put("/{id}/locks", h.updateLocks)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/fill", h.fill)
		r.Get("/fill-runs/{runID}", h.fillRun)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year")
			return
		}
		year = parsed
	}
	list, err := h.service.List(r.Context(), year)
	if err != nil {
		h.logger.Error("list versions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Version{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	version, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get version", err)
		return
	}
	httpx.JSON(w, http.StatusOK, version)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	var req createVersionRequest
	if !h.decode(w, r, &req) {
		return
	}
	version, err := h.service.CreateVersion(r.Context(), actorID, req.Name, req.Year)
	if err != nil {
		h.respondServiceError(w, "create version", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, version)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req renameVersionRequest
	if !h.decode(w, r, &req) {
		return
	}
	version, err := h.service.Rename(r.Context(), actorID, id, req.Name)
	if err != nil {
		h.respondServiceError(w, "rename version", err)
		return
	}
	httpx.JSON(w, http.StatusOK, version)
}

func (h *Handler) updateLocks(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req quarterLocksRequest
	if !h.decode(w, r, &req) {
		return
	}
	version, err := h.service.UpdateQuarterLocks(r.Context(), actorID, id, req.Q1Locked, req.Q2Locked, req.Q3Locked, req.Q4Locked)
	if err != nil {
		h.respondServiceError(w, "update quarter locks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, version)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorID, id); err != nil {
		h.respondServiceError(w, "delete version", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) allocations(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	versionID, userID, ok := h.pathVersionUser(w, r)
	if !ok {
		return
	}
	list, err := h.service.Allocations(r.Context(), actorID, versionID, userID)
	if err != nil {
		h.respondServiceError(w, "list allocations", err)
		return
	}
	if list == nil {
		list = []Allocation{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) updateAllocation(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	versionID, userID, ok := h.pathVersionUser(w, r)
	if !ok {
		return
	}
	var req allocationRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.service.UpdateAllocation(r.Context(), actorID, Allocation{
		VersionID: versionID,
		UserID:    userID,
		ClientID:  req.ClientID,
		Month:     req.Month,
		Hours:     req.Hours,
	})
	if err != nil {
		h.respondServiceError(w, "update allocation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userStatus(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	versionID, userID, ok := h.pathVersionUser(w, r)
	if !ok {
		return
	}
	status, err := h.service.UserStatus(r.Context(), actorID, versionID, userID)
	if err != nil {
		h.respondServiceError(w, "version status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"version_id": versionID, "user_id": userID, "status": status})
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

func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64, int64) (*VersionStatus, error)) {
	actorID, _ := rbac.CurrentUserID(r)
	versionID, userID, ok := h.pathVersionUser(w, r)
	if !ok {
		return
	}
	status, err := fn(r.Context(), actorID, versionID, userID)
	if err != nil {
		h.respondServiceError(w, "version status transition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	list, err := h.service.VersionsForApproval(r.Context(), actorID)
	if err != nil {
		h.logger.Error("versions for approval", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []VersionStatus{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) fill(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	run, err := h.service.FillActualHours(r.Context(), actorID, id, time.Now())
	if err != nil {
		h.respondServiceError(w, "fill actual hours", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, run)
}

func (h *Handler) fillRun(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	run, err := h.service.FillRunStatus(r.Context(), actorID, chi.URLParam(r, "runID"))
	if err != nil {
		h.respondServiceError(w, "fill run status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := httpx.DecodeJSON(r, req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) pathVersionUser(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	versionID, ok := h.pathID(w, r, "id")
	if !ok {
		return 0, 0, false
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return 0, 0, false
	}
	return versionID, userID, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRunNotFound), errors.Is(err, users.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrQuarterLocked):
		httpx.Problem(w, http.StatusLocked, "Quarter Locked", err.Error())
	case errors.Is(err, ErrFillInFlight):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrInvalidStatusTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrYearRequired),
		errors.Is(err, ErrInvalidMonth), errors.Is(err, ErrNegativeHours),
		errors.Is(err, ErrNoLockedQuarter):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
