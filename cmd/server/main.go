package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studyhall/internal/api"
	"studyhall/internal/config"
	"studyhall/internal/coordinator"
	"studyhall/internal/metrics"
	"studyhall/internal/oracle"
	"studyhall/internal/oracle/gemini"
	"studyhall/internal/prompts"
	"studyhall/internal/roomcode"
	"studyhall/internal/routers"
	"studyhall/internal/store"
	"studyhall/internal/subscription"
)

// newOracleProvider builds the configured generation backend. A broken or
// disabled oracle is not fatal; the service runs without generation.
func newOracleProvider(cfg *config.Config, logger *zap.Logger) oracle.Provider {
	if cfg.OracleProvider == "none" {
		logger.Info("content generation disabled by configuration")
		return nil
	}

	promptManager, err := prompts.NewManager()
	if err != nil {
		logger.Error("failed to load prompt templates, content generation disabled", zap.Error(err))
		return nil
	}

	geminiCfg, err := gemini.NewConfig()
	if err != nil {
		logger.Warn("oracle not configured, content generation disabled", zap.Error(err))
		return nil
	}

	provider, err := gemini.NewClient(geminiCfg, promptManager)
	if err != nil {
		logger.Error("failed to initialize oracle, content generation disabled", zap.Error(err))
		return nil
	}

	logger.Info("oracle initialized", zap.String("provider", provider.GetProviderName()))
	return provider
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("redisAddr", cfg.RedisAddr))

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}

	sessionStore := store.NewRedisSessionStore(rdb)
	subs := subscription.NewManager(sessionStore, logger)
	codes := roomcode.NewGenerator(time.Now().UnixNano())
	coord := coordinator.New(sessionStore, subs, codes, logger)
	provider := newOracleProvider(cfg, logger)

	handlers := api.NewHandlers(coord, provider, logger, []byte(cfg.JWTSecret))

	router := chi.NewRouter()

	// cors middleware
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	router.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	router.Use(metrics.Middleware)

	router.Get("/healthz", handlers.Health)
	router.Handle("/metrics", metrics.Handler())
	routers.RoomRoutes(router, handlers)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("Studyhall service starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("Studyhall service shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		logger.Warn("failed to close redis client", zap.Error(err))
	}

	logger.Info("Studyhall service exited")
}
