package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/database"
	"github.com/bipstech/exam-portal/internal/handler"
	"github.com/bipstech/exam-portal/internal/logger"
	"github.com/bipstech/exam-portal/internal/repository"
	"github.com/bipstech/exam-portal/internal/router"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/bipstech/exam-portal/internal/validator"
	"github.com/bipstech/exam-portal/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Dur("exam_duration", cfg.ExamDuration).
		Int("ban_threshold", cfg.Proctor().BanThreshold).
		Msg("Starting exam portal")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Migrations ────────────────────────────────────────────────────
	if cfg.AutoMigrate {
		if err := database.MigrateUp(cfg.DatabaseURL, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

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
	adminRepo := repository.NewAdminRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool, rdb)
	questionRepo := repository.NewQuestionRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	adminService := service.NewAdminService(adminRepo, authService)
	questionService := service.NewQuestionService(questionRepo, rdb, log)
	monitorService := service.NewMonitorService(rdb, violationRepo, submissionRepo, monitorRepo, log)
	submissionService := service.NewSubmissionService(submissionRepo, questionService, monitorService, rdb, cfg, log)
	candidateService := service.NewCandidateService(cfg, studentRepo, authService, questionService, monitorService)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(adminService, log),
		Candidate: handler.NewCandidateHandler(candidateService, questionService, submissionService, authService, log),
		Stream: handler.NewExamStreamHandler(
			cfg.Proctor(), questionService, submissionService, authService, monitorService, log, cfg.AllowedOrigins,
		),
		Admin:    handler.NewAdminHandler(submissionService, authService, log),
		Question: handler.NewQuestionHandler(questionService, log),
		Monitor:  handler.NewMonitorHandler(monitorService, log),
		System:   handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	queue := worker.NewRedisQueue(rdb)
	scoringWorker := worker.NewScoringWorker(queue, submissionService, log)
	violationWorker := worker.NewViolationWorker(queue, violationRepo, log)

	workers.Add(2)
	go func() {
		defer workers.Done()
		scoringWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		violationWorker.Start(workerCtx)
	}()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load the paper and answer key into Redis BEFORE accepting traffic.
	if n, err := questionService.RefreshCache(ctx); err != nil {
		log.Warn().Err(err).Msg("Question cache prewarm failed, sessions are refused until questions are loaded")
	} else {
		log.Info().Int("questions", n).Msg("Question cache prewarmed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

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

	// 2. Stop background workers and wait for their final flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
