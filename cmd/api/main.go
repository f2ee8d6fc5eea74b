package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kompressai/portal/cmd/mainconfig"
	"github.com/kompressai/portal/internal/api/router"
	"github.com/kompressai/portal/internal/app/bootstrap"
	"github.com/kompressai/portal/internal/auth"
	"github.com/kompressai/portal/internal/chatbot"
	appconfig "github.com/kompressai/portal/internal/config"
	"github.com/kompressai/portal/internal/contact"
	"github.com/kompressai/portal/internal/dashboard"
	httpmiddleware "github.com/kompressai/portal/internal/http/middleware"
	"github.com/kompressai/portal/internal/notify"
	"github.com/kompressai/portal/internal/observability/metrics"
	"github.com/kompressai/portal/internal/preferences"
	"github.com/kompressai/portal/internal/projects"
	"github.com/kompressai/portal/internal/transcript"
	"github.com/kompressai/portal/internal/webchat"
	"github.com/kompressai/portal/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		logging.Default().Warn("failed to load .env", "error", err)
	}
	cfg := appconfig.Load()

	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting kompressai portal API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	pool, sqlDB, err := bootstrap.BuildPostgres(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		defer sqlDB.Close()
	}

	metricsHandler, chatMetrics, projectMetrics, contactMetrics := setupMetrics()

	var (
		storage *projects.Storage
		sesAPI  notify.SESAPI
	)
	if cfg.UploadBucket != "" || cfg.EmailFromAddress != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		if cfg.UploadBucket != "" {
			storage = bootstrap.BuildUploadStorage(mainconfig.NewS3Client(awsCfg, cfg), cfg, logger)
		}
		if cfg.EmailFromAddress != "" {
			sesAPI = mainconfig.NewSESClient(awsCfg, cfg)
		}
	}

	chatLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go chatLimiter.RunEviction(ctx, 5*time.Minute, 10*time.Minute)
	contactLimiter := httpmiddleware.NewRateLimiter(cfg.ContactRateLimitRPS, cfg.ContactRateLimitBurst)
	go contactLimiter.RunEviction(ctx, 5*time.Minute, 10*time.Minute)

	chatHandler := webchat.NewHandler(webchat.Config{
		Selector:            chatbot.NewDefaultSelector(nil),
		ConversationOptions: chatOptions(cfg),
		Transcript:          transcript.NewStore(redisClient, cfg.ChatTranscriptTTL),
		Metrics:             chatMetrics,
		Logger:              logger,
		IdleTTL:             cfg.ChatSessionIdleTTL,
		FrameLimiter:        chatLimiter,
	})
	defer chatHandler.Close()
	go chatHandler.RunCleanup(ctx, cfg.ChatCleanupInterval)

	var verifier *auth.Verifier
	var revocations auth.Revocations = auth.NewMemoryRevocations()
	if redisClient != nil {
		revocations = auth.NewRedisRevocations(redisClient)
	}
	if cfg.AuthJWTSecret != "" {
		verifier = auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, revocations)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set; signed-in routes are disabled")
	}

	prefsStore := bootstrap.BuildPreferencesStore(redisClient, logger)
	projectsRepo := bootstrap.BuildProjectsRepository(pool, logger)

	sim := dashboard.NewSimulator(nil)
	go sim.Run(ctx, cfg.DashboardTickInterval)

	contactHandler := contact.NewHandler(contact.Config{
		Sender:             bootstrap.BuildEmailSender(cfg, sesAPI, logger),
		Attachments:        storage,
		Inbox:              cfg.ContactInbox,
		SiteURL:            cfg.PublicBaseURL,
		MaxAttachmentBytes: cfg.ContactMaxBytes,
		Metrics:            contactMetrics,
		Logger:             logger,
	})

	routerCfg := &router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		AuthVerifier:       verifier,
		AuthHandler:        auth.NewHandler(verifier, logger),
		PreferencesStore:   prefsStore,
		PreferencesHandler: preferences.NewHandler(prefsStore, logger),
		ProjectsHandler:    projects.NewHandler(projectsRepo, storage, projectMetrics, logger),
		DashboardHandler:   dashboard.NewHandler(projectsRepo, sim, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRateLimiter:    chatLimiter,
		ContactHandler:     contactHandler,
		ContactRateLimiter: contactLimiter,
		DB:                 sqlDB,
	}
	srv := newServer(cfg, router.New(routerCfg))

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func chatOptions(cfg *appconfig.Config) []chatbot.Option {
	return []chatbot.Option{
		chatbot.WithDelay(cfg.ChatReplyDelayMin, cfg.ChatReplyDelayMax),
		chatbot.WithMaxInputRunes(cfg.ChatMaxInputRunes),
	}
}

func setupMetrics() (http.Handler, *metrics.ChatMetrics, *metrics.ProjectMetrics, *metrics.ContactMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return handler, metrics.NewChatMetrics(reg), metrics.NewProjectMetrics(reg), metrics.NewContactMetrics(reg)
}

func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	// multipart project submissions carry up to four model-sized files
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}
