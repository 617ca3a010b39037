package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fallout666222/media-client-manager/internal/audit"
	"github.com/fallout666222/media-client-manager/internal/auth"
	"github.com/fallout666222/media-client-manager/internal/clients"
	"github.com/fallout666222/media-client-manager/internal/departments"
	"github.com/fallout666222/media-client-manager/internal/mediatypes"
	"github.com/fallout666222/media-client-manager/internal/observability"
	"github.com/fallout666222/media-client-manager/internal/planning"
	"github.com/fallout666222/media-client-manager/internal/public"
	"github.com/fallout666222/media-client-manager/internal/settings"
	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/timesheet"
	"github.com/fallout666222/media-client-manager/internal/users"
	"github.com/fallout666222/media-client-manager/internal/weeks"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	ClientsHandler     *clients.Handler
	MediaTypesHandler  *mediatypes.Handler
	DepartmentsHandler *departments.Handler
	WeeksHandler       *weeks.Handler
	TimesheetHandler   *timesheet.Handler
	PlanningHandler    *planning.Handler
	SettingsHandler    *settings.Handler
	AuditHandler       *audit.Handler
	PublicHandler      *public.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Integration endpoints consumed cross-origin; the handler applies its
	// own permissive CORS policy.
	if params.PublicHandler != nil {
		r.Route("/api", params.PublicHandler.MountRoutes)
	}

	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.ClientsHandler != nil {
		r.Route("/clients", params.ClientsHandler.MountRoutes)
	}
	if params.MediaTypesHandler != nil {
		r.Route("/media-types", params.MediaTypesHandler.MountRoutes)
	}
	if params.DepartmentsHandler != nil {
		r.Route("/departments", params.DepartmentsHandler.MountRoutes)
	}
	if params.WeeksHandler != nil {
		r.Route("/weeks", params.WeeksHandler.MountRoutes)
	}
	if params.TimesheetHandler != nil {
		r.Route("/timesheet", params.TimesheetHandler.MountRoutes)
	}
	if params.PlanningHandler != nil {
		r.Route("/planning", params.PlanningHandler.MountRoutes)
	}
	if params.SettingsHandler != nil {
		r.Route("/settings", params.SettingsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}

	return r
}
