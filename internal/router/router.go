package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/handler"
	"github.com/stemsi/examcore/internal/middleware"
	"github.com/stemsi/examcore/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Exam    *handler.ExamHandler
	Attempt *handler.AttemptHandler
	Agent   *handler.AgentHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
	Health  *handler.HealthHandler
}

// Authenticator validates tokens and enforces single-session logins.
type Authenticator interface {
	middleware.TokenValidator
	middleware.SessionValidator
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth Authenticator,
	counter middleware.Counter,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(
		response.RequestIDMiddleware(),
		middleware.RequestLogger(log),
		gin.Recovery(),
	)

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
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID, middleware.MonitorTokenHeader}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.GET("/health", handlers.Health.Health)

	requireJWT := middleware.RequireJWT(auth)
	singleSession := middleware.CheckSingleSession(auth, log)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	loginLimiter := middleware.NewRateLimiter(counter, "login", 30, time.Minute, log)
	authAPI := router.Group("/api/v1/auth")
	{
		authAPI.POST("/login", loginLimiter.Middleware(), handlers.Auth.Login)
		authAPI.POST("/logout", requireJWT, singleSession, handlers.Auth.Logout)
		authAPI.GET("/me", requireJWT, singleSession, handlers.Auth.Me)
	}

	// ─── 2. Staff Group (teachers and admins) ──────────────────────────
	staffAPI := router.Group("/api/v1")
	staffAPI.Use(requireJWT, singleSession, middleware.RequireStaff())
	{
		staffAPI.GET("/exams", handlers.Exam.ListExams)
		staffAPI.POST("/exams", handlers.Exam.CreateExam)
		staffAPI.GET("/exams/:id", handlers.Exam.GetExam)
		staffAPI.PUT("/exams/:id", handlers.Exam.UpdateExam)
		staffAPI.DELETE("/exams/:id", handlers.Exam.DeleteExam)

		staffAPI.GET("/exams/:id/questions", handlers.Exam.ListQuestions)
		staffAPI.POST("/exams/:id/questions", handlers.Exam.AddQuestion)
		staffAPI.PUT("/exams/:id/questions/:qid", handlers.Exam.UpdateQuestion)
		staffAPI.DELETE("/exams/:id/questions/:qid", handlers.Exam.DeleteQuestion)

		staffAPI.GET("/exams/:id/attempts", handlers.Exam.ListAttempts)
		staffAPI.POST("/exams/:id/feedback/release", handlers.Exam.ReleaseFeedback)
		staffAPI.GET("/exams/:id/violations", handlers.Exam.ListViolations)
		staffAPI.GET("/exams/:id/monitor", handlers.Monitor.MonitorExamSSE)

		staffAPI.GET("/attempts/:id", handlers.Attempt.Get)
		staffAPI.POST("/attempts/:id/grade", handlers.Attempt.Grade)
		staffAPI.POST("/attempts/:id/feedback/release", handlers.Attempt.ReleaseFeedback)
		staffAPI.DELETE("/attempts/:id", handlers.Attempt.Delete)
		staffAPI.GET("/attempts/:id/violations", handlers.Attempt.ListViolations)
	}

	// ─── 3. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(requireJWT, singleSession, middleware.RequireStudent())
	{
		studentAPI.GET("/exams/:id/paper", handlers.Attempt.GetPaper)
		studentAPI.POST("/exams/:id/attempts", handlers.Attempt.Start)
		studentAPI.GET("/attempts", handlers.Attempt.ListMine)
		studentAPI.GET("/attempts/:id", handlers.Attempt.Get)
		studentAPI.PUT("/attempts/:id/responses", handlers.Attempt.RecordResponse)
		studentAPI.PUT("/attempts/:id/responses/batch", handlers.Attempt.RecordResponses)
		studentAPI.POST("/attempts/:id/submit", handlers.Attempt.Submit)
		studentAPI.POST("/attempts/:id/violations", handlers.Attempt.ReportViolation)
	}

	// ─── 4. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireJWT, singleSession, middleware.RequireStudent())
	{
		ws.GET("/student/attempts/:id", handlers.WS.AttemptStream)
	}

	// ─── 5. Monitoring Agents (shared token, rate limited) ─────────────
	agentLimiter := middleware.NewRateLimiter(counter, "monitor", cfg.RateLimit, time.Minute, log)
	agentAPI := router.Group("/api/v1/monitor")
	agentAPI.Use(middleware.RequireMonitorToken(cfg.Proctor.AutoSubmitToken), agentLimiter.Middleware())
	{
		agentAPI.POST("/attempts/:id/violations", handlers.Agent.ReportViolation)
		agentAPI.POST("/attempts/:id/violations/batch", handlers.Agent.ReportViolations)
		agentAPI.POST("/attempts/:id/auto-submit", handlers.Agent.AutoSubmit)
	}

	return router
}
