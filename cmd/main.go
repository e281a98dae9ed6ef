package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/roachygames/tournament-orchestrator/brackets"
	"github.com/roachygames/tournament-orchestrator/config"
	"github.com/roachygames/tournament-orchestrator/db"
	"github.com/roachygames/tournament-orchestrator/engine"
	"github.com/roachygames/tournament-orchestrator/handlers"
	"github.com/roachygames/tournament-orchestrator/leader"
	"github.com/roachygames/tournament-orchestrator/metrics"
	"github.com/roachygames/tournament-orchestrator/repositories"
	api "github.com/roachygames/tournament-orchestrator/routes"
	"github.com/roachygames/tournament-orchestrator/services"
	"github.com/roachygames/tournament-orchestrator/storage"
)

const leaderLeaseKey = "tournament-orchestrator:leader"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Duration("tick_interval", cfg.TickInterval),
		slog.Bool("isolate_failures", cfg.IsolateFailures))

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	if err := db.EnsureSchema(rootCtx, dbConn); err != nil {
		logger.Error("failed to apply database schema", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection established")

	var archiver services.ResultsArchiver
	r2Config := storage.CloudflareR2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	}
	if r2Config.Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(rootCtx, r2Config)
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = storage.NewResultsArchiver(uploader)
		logger.Info("results archive enabled", slog.String("bucket", cfg.R2BucketName))
	}

	var lease services.Leader
	var redisLease *leader.RedisLease
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(rootCtx).Err(); err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		redisLease = leader.NewRedisLease(redisClient, leaderLeaseKey, cfg.LeaderLeaseTTL)
		lease = redisLease
		logger.Info("leader lease enabled", slog.String("owner", redisLease.Owner()), slog.Duration("ttl", cfg.LeaderLeaseTTL))
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run(rootCtx)

	recorder := metrics.NewPrometheusRecorder()
	clock := clockwork.NewRealClock()
	faker := gofakeit.New(0)

	templates, err := services.NewTemplateRegistry(services.DefaultTemplates())
	if err != nil {
		logger.Error("invalid tournament templates", slog.Any("error", err))
		os.Exit(1)
	}

	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	matchRepo := repositories.NewPostgresBracketMatchRepository(dbConn)
	payoutRepo := repositories.NewPostgresPayoutRepository(dbConn)
	store := services.Store{
		Tx:           repositories.NewPostgresTransactor(dbConn, logger),
		Tournaments:  tournamentRepo,
		Participants: participantRepo,
		Matches:      matchRepo,
		Payouts:      payoutRepo,
	}
	gameEngine := engine.NewPostgresEngine(dbConn)
	generator := brackets.NewSingleEliminationGenerator()
	isolate := cfg.IsolateFailures

	gate := services.NewRegistrationGate(store, templates, generator, faker, clock, wsHub, logger, recorder, isolate)
	steps := []services.Step{
		services.NewPoolProvisioner(store, templates, clock, logger, isolate),
		services.NewBotFillService(store, faker, clock, services.BotFillConfig{
			FillDelay:    cfg.BotFillDelay,
			NameAttempts: cfg.BotNameAttempts,
		}, logger, recorder, isolate),
		gate,
		services.NewMatchDispatcher(store, gameEngine, faker, clock, wsHub, logger, isolate),
		services.NewCompletionWatcher(store, gameEngine, clock, wsHub, logger, isolate),
		services.NewBracketAdvancer(store, generator, clock, wsHub, logger, isolate),
		services.NewBracketFinalizer(store, archiver, clock, wsHub, logger, recorder, isolate),
		services.NewArenaFinalizer(store, archiver, clock, wsHub, logger, recorder, isolate),
	}

	orchestrator := services.NewOrchestrator(services.OrchestratorConfig{
		TickInterval:      cfg.TickInterval,
		WarmupDelay:       cfg.WarmupDelay,
		IsolateFailures:   cfg.IsolateFailures,
		MaxLoggedFailures: cfg.MaxLoggedFailures,
	}, steps, lease, clock, logger, recorder)

	viewService := services.NewTournamentViewService(tournamentRepo, participantRepo, matchRepo)
	registrationService := services.NewRegistrationService(store, clock, logger)
	authService := services.NewAuthService(cfg.AdminPasswordHash)
	logger.Info("services initialized")

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:       handlers.NewAuthHandler(authService, cfg.JWTSecretKey, clock),
		Tournament: handlers.NewTournamentHandler(viewService, registrationService),
		Admin:      handlers.NewAdminHandler(orchestrator, gate),
		WebSocket:  handlers.NewWebSocketHandler(wsHub, logger),
		Health:     handlers.NewHealthHandler(dbConn),
		Metrics:    recorder.Handler(),
	}, cfg.JWTSecretKey, cfg.CORSAllowedOrigins)
	logger.Info("routes configured")

	if err := orchestrator.Start(rootCtx); err != nil {
		logger.Error("failed to start orchestrator", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			exitCode = 1
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	if err := orchestrator.Stop(); err != nil {
		logger.Error("failed to stop orchestrator", slog.Any("error", err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if redisLease != nil {
		if err := redisLease.Resign(shutdownCtx); err != nil {
			logger.Warn("failed to release leader lease", slog.Any("error", err))
		}
	}

	logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
		exitCode = 1
	} else {
		logger.Info("server shutdown complete")
	}
	cancelRoot()

	logger.Info("application exited")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
