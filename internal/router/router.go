package router

import (
	"context"
	"time"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/handler"
	"github.com/bipstech/exam-portal/internal/middleware"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/response"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Candidate *handler.CandidateHandler
	Stream    *handler.ExamStreamHandler
	Admin     *handler.AdminHandler
	Question  *handler.QuestionHandler
	Monitor   *handler.MonitorHandler
	System    *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work started by middlewares such as the rate limiter.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	loginLimiter := middleware.NewRateLimiter(ctx, cfg.LoginRatePerMinute, time.Minute)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/admin/login", loginLimiter.Middleware(), handlers.Auth.AdminLogin)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Exam Group (Candidate) ─────────────────────────────────────
	// The policy is the same for everyone and safe to cache briefly.
	router.GET("/api/v1/exam/policy", middleware.CacheControl(60), handlers.Candidate.GetPolicy)

	exam := router.Group("/api/v1/exam")
	exam.Use(middleware.NoStore())
	{
		exam.POST("/enter", loginLimiter.Middleware(), handlers.Candidate.Enter)
		exam.POST("/leave", middleware.RequireCandidateJWT(authService), handlers.Candidate.Leave)

		session := exam.Group("")
		session.Use(
			middleware.RequireCandidateJWT(authService),
			middleware.CheckCandidateSession(authService),
		)
		{
			session.GET("/questions", handlers.Candidate.GetQuestions)
			session.POST("/submissions", handlers.Candidate.Submit)
			session.GET("/result", handlers.Candidate.GetResult)
		}
	}

	// ─── 3. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireCandidateWSAuth(authService),
		middleware.CheckCandidateSession(authService),
	)
	{
		ws.GET("/exam/stream", handlers.Stream.ExamStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireAdminJWT(authService))
	{
		lists := admin.Group("")
		lists.Use(middleware.Brotli())
		{
			lists.GET("/submissions", handlers.Admin.ListSubmissions)
			lists.GET("/submissions/:id", handlers.Admin.GetSubmission)
			lists.GET("/results", handlers.Admin.ListResults)
			lists.GET("/violations", handlers.Admin.ListViolations)
			lists.GET("/questions", handlers.Question.ListQuestions)
		}

		admin.GET("/stats", handlers.Admin.GetStats)
		admin.POST("/submissions/:id/regrade", handlers.Admin.RegradeSubmission)
		admin.DELETE("/attempts", handlers.Admin.ResetAttempt)
		admin.POST("/questions/refresh-cache", handlers.Question.RefreshCache)
		admin.GET("/monitor", handlers.Monitor.MonitorSSE)
		admin.GET("/system/metrics", handlers.System.SystemMetricsSSE)

		superAdmin := admin.Group("")
		superAdmin.Use(middleware.RequireRole(model.RoleSuperAdmin))
		{
			superAdmin.PUT("/questions", handlers.Question.ReplaceQuestions)
		}
	}

	return router
}
