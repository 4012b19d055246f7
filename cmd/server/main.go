package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/database"
	"github.com/stemsi/examcore/internal/events"
	"github.com/stemsi/examcore/internal/handler"
	"github.com/stemsi/examcore/internal/logger"
	"github.com/stemsi/examcore/internal/middleware"
	"github.com/stemsi/examcore/internal/repository"
	"github.com/stemsi/examcore/internal/router"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/validator"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.Setup("info", "json")
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("duplicate_policy", string(cfg.Attempt.DuplicatePolicy)).
		Str("scoring_policy", string(cfg.Attempt.ScoringPolicy)).
		Int("max_violations", cfg.Proctor.MaxViolations).
		Msg("Starting examcore")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	fraudRepo := repository.NewFraudLogRepository(pool)
	directoryRepo := repository.NewDirectoryRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	publisher := events.NewRedisPublisher(rdb, log)

	authService := service.NewAuthService(cfg, directoryRepo, rdb, log)
	examService := service.NewExamService(examRepo, questionRepo, service.NewRedisPaperCache(rdb), cfg.PaperCacheTTL, log)
	attemptService := service.NewAttemptService(attemptRepo, examService, directoryRepo, publisher, cfg.Attempt, log)
	fraudService := service.NewFraudLogService(fraudRepo, attemptRepo, examService, publisher, log)
	proctorService := service.NewProctorService(fraudService, attemptService, cfg.Proctor, log)
	monitorService := service.NewMonitorService(monitorRepo, examService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Exam:    handler.NewExamHandler(examService, attemptService, fraudService, log),
		Attempt: handler.NewAttemptHandler(examService, attemptService, fraudService, proctorService, log),
		Agent:   handler.NewAgentHandler(attemptService, proctorService, log),
		Monitor: handler.NewMonitorHandler(monitorService, publisher, log),
		WS:      handler.NewWSHandler(attemptService, proctorService, log, cfg.AllowedOrigins),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": handler.PingFunc(pool.Ping),
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		}, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, middleware.NewRedisCounter(rdb), handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := newHTTPServer(cfg.ServerPort, r)

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

	// SSE and WebSocket clients hold connections open; give them a few
	// seconds, then cut them.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// newHTTPServer binds h to port. Only the header read is bounded: SSE and
// WebSocket handlers keep the body open for the whole attempt.
func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
