package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/neofi/eventapi/internal/api"
	"github.com/neofi/eventapi/internal/auth"
	"github.com/neofi/eventapi/internal/cache"
	"github.com/neofi/eventapi/internal/config"
	"github.com/neofi/eventapi/internal/db"
	"github.com/neofi/eventapi/internal/middleware"
	"github.com/neofi/eventapi/internal/repository"
	"github.com/neofi/eventapi/internal/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("auth.jwt_secret must be configured")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database.URL(), cfg.MigrationsPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Create repositories
	var store repository.VersionStore = repository.NewVersionStore(conn.Pool)
	permRepo := repository.NewPermissionRepository(conn.Pool)

	// Optional read-through cache for latest-version lookups
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		store = cache.NewCachedVersionStore(store, client, 5*time.Minute, logger)
	}

	// Create services
	authz := service.NewPermissionAuthorizer(store, permRepo)
	mutator := service.NewMutator(store, authz, logger)
	changelog := service.NewChangelog(store, authz)
	rollback := service.NewRollbackCoordinator(store, authz, logger)

	apiHandler := api.NewHandler(store, permRepo, mutator, changelog, rollback, logger)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	protected := middleware.Logging(logger)(
		auth.Middleware(cfg.JWTSecret, logger)(apiHandler),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/events", corsHandler.Handler(protected))
	mux.Handle("/api/events/", corsHandler.Handler(protected))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
