package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cabepi/lab-pbm-senasa/config"
	"github.com/cabepi/lab-pbm-senasa/database"
	"github.com/cabepi/lab-pbm-senasa/logger"
	"github.com/cabepi/lab-pbm-senasa/monitoring"
	pbmredis "github.com/cabepi/lab-pbm-senasa/redis"
	v1database "github.com/cabepi/lab-pbm-senasa/v1/database"
	"github.com/cabepi/lab-pbm-senasa/v1/handlers"
	v1middleware "github.com/cabepi/lab-pbm-senasa/v1/middleware"
	"github.com/cabepi/lab-pbm-senasa/v1/services"
	"github.com/cabepi/lab-pbm-senasa/v1/unipago"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	configPath := flag.String("config", config.GetEnvOrDefault("CONFIG_PATH", "config/config.yaml"), "path to the YAML configuration")
	flag.Parse()

	logger.Init(config.GetEnvOrDefault("LOG_LEVEL", "info"))
	slog.Info("Starting PBM authorization service")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownMetrics, err := monitoring.Setup(context.Background(), monitoring.Config{
		ServiceName:   "pbm-authorization-service",
		ResourceAttrs: map[string]string{"deployment.environment": config.GetEnvOrDefault("ENVIRONMENT", "local")},
	})
	if err != nil {
		slog.Error("Failed to set up metrics", "error", err)
		os.Exit(1)
	}

	gormDB, err := database.ConnectGormDB(database.NewDatabaseConfig())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(gormDB); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	authorizationRepo := v1database.NewAuthorizationRepository(gormDB)
	traceRepo := v1database.NewTraceRepository(gormDB)

	var (
		store       services.WorkflowStore
		redisHealth pinger
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := pbmredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		redisHealth = redisClient
		store = services.NewRedisWorkflowStore(redisClient.GetClient(), cfg.Workflow.TTL, cfg.Workflow.LockTTL)
		slog.Info("Using Redis workflow store", "addr", cfg.Redis.Addr)
	} else {
		store = services.NewMemoryWorkflowStore(cfg.Workflow.TTL)
		slog.Warn("REDIS_ADDR not set, workflow snapshots are kept in memory")
	}

	httpClient := &http.Client{Timeout: cfg.Unipago.Timeout}
	session := unipago.NewSessionClient(cfg.Unipago.BaseURL, cfg.Unipago.AuthPath, cfg.Unipago.Username, cfg.Unipago.Password, httpClient)
	gateway := unipago.NewGateway(cfg.Unipago, session, httpClient)

	orchestrator := services.NewOrchestrator(gateway, authorizationRepo, services.NewTraceRecorder(traceRepo), store, services.NewReferenceGenerator())
	queries := services.NewQueryService(authorizationRepo, traceRepo, cfg.Limits.Authorizations, cfg.Limits.Traces)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(monitoring.HTTPMetricsMiddleware)
	r.Use(v1middleware.CORSMiddleware())

	r.Get("/health", healthHandler(gormDB, redisHealth))
	r.Method(http.MethodGet, "/metrics", monitoring.Handler())
	handlers.RegisterRoutes(r, orchestrator, queries, v1middleware.NewOperatorAuth(cfg.Auth.JWTSecret))

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// an authorize step is up to three sequential upstream calls
		WriteTimeout: 3*cfg.Unipago.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("PBM authorization service listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := shutdownMetrics(ctx); err != nil {
		slog.Error("Failed to shut down metrics", "error", err)
	}

	slog.Info("Server exited")
}
