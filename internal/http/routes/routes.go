package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/internal/features/appuser"
	"github.com/blbu/vr-therapy-server-go/internal/features/auth"
	"github.com/blbu/vr-therapy-server-go/internal/features/progression"
	"github.com/blbu/vr-therapy-server-go/internal/features/report"
	"github.com/blbu/vr-therapy-server-go/internal/features/video"
	"github.com/blbu/vr-therapy-server-go/internal/features/watch"
	"github.com/blbu/vr-therapy-server-go/internal/middleware"
	"github.com/blbu/vr-therapy-server-go/pkg/config"
	"github.com/blbu/vr-therapy-server-go/pkg/health"
	"github.com/blbu/vr-therapy-server-go/pkg/metrics"
)

// Register wires all feature routes onto the engine.
func Register(engine *gin.Engine, cfg *config.Config, db *gorm.DB, logger *slog.Logger, watchService *watch.Service, progressionEngine *progression.Engine, storageClient video.Storage) {
	// Health check endpoints (no /api prefix for Kubernetes probes)
	healthHandler := health.NewHandler(db, logger)
	engine.GET("/health", healthHandler.Health)
	engine.GET("/ready", healthHandler.Ready)
	engine.GET("/version", healthHandler.VersionInfo)

	// Metrics endpoint for Prometheus
	engine.GET("/metrics", metrics.Handler())

	api := engine.Group("/api")

	requireAuth := middleware.RequireAuth(cfg.JWTSecret)
	dashboardOnly := middleware.Chain(requireAuth, middleware.RequireRoles(middleware.RoleAdmin, middleware.RoleTherapist))
	adminOnly := middleware.Chain(requireAuth, middleware.RequireRoles(middleware.RoleAdmin))

	auth.RegisterRoutes(api, auth.NewHandler(db, cfg.JWTSecret, logger), adminOnly)
	appuser.RegisterRoutes(api, appuser.NewHandler(db, logger), dashboardOnly)
	video.RegisterRoutes(api, video.NewHandler(db, storageClient, logger), dashboardOnly)
	watch.RegisterRoutes(api, watch.NewHandler(watchService, logger), dashboardOnly)
	progression.RegisterRoutes(api, progression.NewHandler(progressionEngine, logger), dashboardOnly)
	report.RegisterRoutes(api, report.NewHandler(report.NewService(db, logger), logger), dashboardOnly)
}
