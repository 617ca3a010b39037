// Package public exposes the unauthenticated integration endpoints. They are
// consumed by external tooling and keep the legacy {data, error} envelope
// instead of the problem-details format used by the session API.
package public

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/fallout666222/media-client-manager/internal/planning"
	"github.com/fallout666222/media-client-manager/internal/platform/httpx"
)

// StatusLookup resolves review status names to their lookup-table ids.
type StatusLookup interface {
	StatusID(ctx context.Context, name string) (int64, error)
}

// ApprovalLister lists planning version statuses pending a head's review.
type ApprovalLister interface {
	VersionsForApproval(ctx context.Context, headID int64) ([]planning.VersionStatus, error)
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// Handler serves the public integration endpoints.
type Handler struct {
	logger    *slog.Logger
	statuses  StatusLookup
	approvals ApprovalLister
}

func NewHandler(logger *slog.Logger, statuses StatusLookup, approvals ApprovalLister) *Handler {
	return &Handler{logger: logger, statuses: statuses, approvals: approvals}
}

// MountRoutes registers the endpoints with permissive CORS. OPTIONS preflight
// answers 200 for compatibility with older clients.
func (h *Handler) MountRoutes(r chi.Router) {
	c := cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:       []string{"*"},
		OptionsSuccessStatus: http.StatusOK,
	})
	r.Group(func(r chi.Router) {
		r.Use(c.Handler)
		r.Get("/statusId", h.statusID)
		r.Get("/userVersionsForApproval", h.userVersionsForApproval)
	})
}

func (h *Handler) statusID(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httpx.JSON(w, http.StatusBadRequest, errorEnvelope{Error: "name parameter is required"})
		return
	}
	id, err := h.statuses.StatusID(r.Context(), name)
	if err != nil {
		httpx.JSON(w, http.StatusNotFound, errorEnvelope{Error: "unknown status name"})
		return
	}
	httpx.JSON(w, http.StatusOK, dataEnvelope{Data: map[string]int64{"id": id}})
}

func (h *Handler) userVersionsForApproval(w http.ResponseWriter, r *http.Request) {
	headID, err := strconv.ParseInt(r.URL.Query().Get("headId"), 10, 64)
	if err != nil || headID <= 0 {
		httpx.JSON(w, http.StatusBadRequest, errorEnvelope{Error: "headId parameter is required"})
		return
	}
	statuses, err := h.approvals.VersionsForApproval(r.Context(), headID)
	if err != nil {
		h.logger.Error("versions for approval", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, errorEnvelope{Error: "internal error"})
		return
	}
	if statuses == nil {
		statuses = []planning.VersionStatus{}
	}
	httpx.JSON(w, http.StatusOK, dataEnvelope{Data: statuses})
}
