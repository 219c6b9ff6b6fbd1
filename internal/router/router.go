package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// startLimiter may be nil, which disables rate limiting of session starts.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	startLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID plus a request-scoped access log.
	router.Use(response.RequestIDMiddleware(log))

	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:      middleware.DefaultBrotliConfig.Quality,
		MinLength:    middleware.DefaultBrotliConfig.MinLength,
		SkipPrefixes: []string{"/health"},
	}))

	// Health check.
	router.GET("/health", handlers.System.Health)

	// ─── 1. Candidate Group (JWT) ──────────────────────────────────────
	candidateAPI := router.Group("/api/v1/candidate/tests/:test_id/session")
	candidateAPI.Use(
		middleware.RequireCandidateJWT(authService),
		middleware.NoStore(),
	)
	{
		start := []gin.HandlerFunc{handlers.Session.StartSession}
		if startLimiter != nil {
			start = append([]gin.HandlerFunc{startLimiter.Middleware()}, start...)
		}
		candidateAPI.POST("/start", start...)
		candidateAPI.GET("", handlers.Session.GetState)
		candidateAPI.PUT("/answers/:question_id", handlers.Session.SetAnswer)
		candidateAPI.POST("/answers/:question_id/alternate-editor", handlers.Session.MarkAlternateEditor)
		candidateAPI.POST("/defocus", handlers.Session.ReportDefocus)
		candidateAPI.POST("/submit", handlers.Session.Submit)
		candidateAPI.POST("/submit/retry", handlers.Session.RetrySubmit)
	}

	// ─── 2. WebSocket Group (Candidate JWT via query) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateJWT(authService))
	{
		ws.GET("/candidate/tests/:test_id/session", handlers.WS.SessionStream)
	}

	// ─── 3. Proctor Group (JWT + RBAC) ─────────────────────────────────
	proctorAPI := router.Group("/api/v1/proctor")
	proctorAPI.Use(
		middleware.RequireProctorJWT(authService),
		middleware.RequirePermission(service.PermissionMonitorRead),
	)
	{
		proctorAPI.GET("/tests/:test_id/monitor", handlers.Monitor.MonitorTestSSE)
		proctorAPI.GET("/system", handlers.System.EngineStats)
	}

	return router
}
