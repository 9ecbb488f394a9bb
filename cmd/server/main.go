package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exam-runner/internal/backend"
	"github.com/stemsi/exam-runner/internal/config"
	"github.com/stemsi/exam-runner/internal/database"
	"github.com/stemsi/exam-runner/internal/handler"
	"github.com/stemsi/exam-runner/internal/logger"
	"github.com/stemsi/exam-runner/internal/middleware"
	"github.com/stemsi/exam-runner/internal/repository"
	"github.com/stemsi/exam-runner/internal/router"
	"github.com/stemsi/exam-runner/internal/service"
	"github.com/stemsi/exam-runner/internal/store"
	"github.com/stemsi/exam-runner/internal/validator"
	"github.com/stemsi/exam-runner/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("backend", cfg.BackendURL).
		Msg("Starting exam runner")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Session Store ─────────────────────────────────────────────────
	// The redis driver also enables the review archive (queue + PostgreSQL).
	// The memory driver runs without external services; state is lost on restart.
	var (
		sessionStore store.Store
		archiver     service.ReviewArchiver
		rdb          *redis.Client
		pool         *pgxpool.Pool
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		sessionStore = store.NewMemoryStore()
		log.Warn().Msg("Using in-memory session store; sessions will not survive a restart")
	case config.StoreDriverRedis:
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		sessionStore = store.NewRedisStore(rdb, cfg.SessionTTL, cfg.ReviewTTL)
		archiver = worker.NewReviewQueue(rdb)
	default:
		log.Fatal().Str("driver", cfg.StoreDriver).Msg("Unknown STORE_DRIVER")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, log)
	sessionService := service.NewExamSessionService(sessionStore, backendClient, archiver, service.SessionOptions{
		TickInterval:           cfg.TickInterval,
		DefaultDurationSeconds: cfg.DefaultDurationSeconds,
		SubmitTimeout:          cfg.BackendTimeout,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(sessionService, log),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	if pool != nil {
		reviewRepo := repository.NewReviewRepository(pool)
		handlers.Review = handler.NewReviewHandler(reviewRepo, log)

		reviewWorker := worker.NewReviewWorker(reviewRepo, rdb, log)
		go func() {
			defer close(workerDone)
			reviewWorker.Start(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	submitLimiter := middleware.NewRateLimiter(ctx, cfg.SubmitRatePerMinute, time.Minute)
	r := router.SetupRouter(authService, submitLimiter, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop countdowns and let in-flight submissions finish.
	// Persisted countdowns resume when the runner comes back.
	sessionService.Shutdown()

	// 3. Stop the archive worker and wait for the queue to drain.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Review worker did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
