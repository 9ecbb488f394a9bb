package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exam-runner/internal/config"
	"github.com/stemsi/exam-runner/internal/handler"
	"github.com/stemsi/exam-runner/internal/middleware"
	"github.com/stemsi/exam-runner/internal/response"
	"github.com/stemsi/exam-runner/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Review  *handler.ReviewHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	submitLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.GinMode != gin.TestMode {
		router.Use(gin.Logger())
	}

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

	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Exam Session Group (JWT) ───────────────────────────────────
	exams := router.Group("/api/v1/exams")
	exams.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		exams.POST("/sessions", handlers.Session.StartSession)
		exams.GET("/:exam_id/session", handlers.Session.GetSession)
		exams.DELETE("/:exam_id/session", handlers.Session.ExitSession)
		exams.PUT("/:exam_id/answers", handlers.Session.SaveAnswer)
		exams.PUT("/:exam_id/cursor", handlers.Session.MoveCursor)
		exams.POST("/:exam_id/submit", submitLimiter.Middleware(), handlers.Session.Submit)
		exams.GET("/:exam_id/review", handlers.Session.GetReview)
	}

	// ─── 2. Review Archive (JWT) ───────────────────────────────────────
	if handlers.Review != nil {
		router.GET("/api/v1/reviews", middleware.RequireJWT(authService), handlers.Review.ListReviews)
	}

	// ─── 3. WebSocket Group (query-token auth) ─────────────────────────
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(middleware.RequireWSAuth(authService))
	{
		wsGroup.GET("/exams/:exam_id/stream", handlers.WS.ExamStream)
	}

	return router
}
