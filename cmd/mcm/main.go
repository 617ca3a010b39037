package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fallout666222/media-client-manager/internal/app"
	"github.com/fallout666222/media-client-manager/internal/audit"
	"github.com/fallout666222/media-client-manager/internal/auth"
	"github.com/fallout666222/media-client-manager/internal/clients"
	"github.com/fallout666222/media-client-manager/internal/departments"
	"github.com/fallout666222/media-client-manager/internal/mediatypes"
	"github.com/fallout666222/media-client-manager/internal/observability"
	"github.com/fallout666222/media-client-manager/internal/planning"
	"github.com/fallout666222/media-client-manager/internal/platform/cache"
	"github.com/fallout666222/media-client-manager/internal/platform/db"
	"github.com/fallout666222/media-client-manager/internal/public"
	"github.com/fallout666222/media-client-manager/internal/rbac"
	"github.com/fallout666222/media-client-manager/internal/settings"
	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/timesheet"
	"github.com/fallout666222/media-client-manager/internal/users"
	"github.com/fallout666222/media-client-manager/internal/weeks"
	"github.com/fallout666222/media-client-manager/jobs"
	"github.com/fallout666222/media-client-manager/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "mcm_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditLogger)
	rbacMiddleware := rbac.Middleware{Directory: usersService, Logger: logger}

	settingsRepo := settings.NewRepository(dbpool)
	settingsService := settings.NewService(settingsRepo)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, cfg.SSOSecret, cfg.TokenSecret, cfg.TokenTTL)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, settingsService)

	clientsRepo := clients.NewRepository(dbpool)
	clientsService := clients.NewService(clientsRepo, usersService, auditLogger)
	clientsHandler := clients.NewHandler(logger, clientsService, rbacMiddleware)

	mediaTypesRepo := mediatypes.NewRepository(dbpool)
	mediaTypesService := mediatypes.NewService(mediaTypesRepo, usersService, auditLogger)
	mediaTypesHandler := mediatypes.NewHandler(logger, mediaTypesService, rbacMiddleware)

	departmentsRepo := departments.NewRepository(dbpool)
	departmentsService := departments.NewService(departmentsRepo, usersService, auditLogger)
	departmentsHandler := departments.NewHandler(logger, departmentsService, rbacMiddleware)

	weeksRepo := weeks.NewRepository(dbpool)
	weeksService := weeks.NewService(weeksRepo)
	weeksHandler := weeks.NewHandler(logger, weeksService, usersService, rbacMiddleware)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	reportClient := report.NewClient(cfg.GotenbergURL)
	weekSummaryRenderer := report.NewWeekSummaryRenderer(reportClient, clientsService, mediaTypesService)

	timesheetRepo := timesheet.NewRepository(dbpool)
	timesheetService := timesheet.NewService(timesheetRepo, usersService, weeksService, approvalRecorder, auditLogger, jobClient, logger)
	timesheetHandler := timesheet.NewHandler(logger, timesheetService, usersService, weekSummaryRenderer, rbacMiddleware)

	fillLocker := planning.NewRedisFillLocker(redisClient)
	planningRepo := planning.NewRepository(dbpool)
	planningService := planning.NewService(planningRepo, usersService, idempotencyStore, approvalRecorder, auditLogger, jobClient, fillLocker, logger)
	planningHandler := planning.NewHandler(logger, planningService, rbacMiddleware)

	settingsHandler := settings.NewHandler(logger, settingsService, rbacMiddleware)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo, usersService)
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)

	publicHandler := public.NewHandler(logger, planningRepo, planningService)

	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		ClientsHandler:     clientsHandler,
		MediaTypesHandler:  mediaTypesHandler,
		DepartmentsHandler: departmentsHandler,
		WeeksHandler:       weeksHandler,
		TimesheetHandler:   timesheetHandler,
		PlanningHandler:    planningHandler,
		SettingsHandler:    settingsHandler,
		AuditHandler:       auditHandler,
		PublicHandler:      publicHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
