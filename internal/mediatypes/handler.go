package mediatypes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fallout666222/media-client-manager/internal/platform/httpx"
	"github.com/fallout666222/media-client-manager/internal/rbac"
)

type nameRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type visibleOrderRequest struct {
	MediaTypeIDs []int64 `json:"media_type_ids" validate:"required,min=1,dive,gt=0"`
}

// Handler exposes media type endpoints.
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

// MountRoutes registers media type routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/", h.list)
		r.Get("/visible/{userID}", h.visible)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole("admin"))
		r.Post("/", h.create)
		r.Put("/{id}", h.rename)
		r.Delete("/{id}", h.delete)
		r.Put("/visible/{userID}", h.setVisible)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	includeHidden := r.URL.Query().Get("include_hidden") == "true"
	list, err := h.service.List(r.Context(), includeHidden)
	if err != nil {
		h.logger.Error("list media types", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []MediaType{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	var req nameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	mt, err := h.service.Create(r.Context(), actorID, req.Name)
	if err != nil {
		h.respondServiceError(w, "create media type", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mt)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req nameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	mt, err := h.service.Rename(r.Context(), actorID, id, req.Name)
	if err != nil {
		h.respondServiceError(w, "rename media type", err)
		return
	}
	httpx.JSON(w, http.StatusOK, mt)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorID, id); err != nil {
		h.respondServiceError(w, "delete media type", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) visible(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	list, err := h.service.VisibleForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("visible media types", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []VisibleMediaType{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) setVisible(w http.ResponseWriter, r *http.Request) {
	actorID, _ := rbac.CurrentUserID(r)
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req visibleOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetVisibleForUser(r.Context(), actorID, userID, req.MediaTypeIDs); err != nil {
		h.respondServiceError(w, "set visible media types", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrNameRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
