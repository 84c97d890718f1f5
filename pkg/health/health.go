package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Version information, set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Handler serves liveness and readiness probes.
type Handler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewHandler(db *gorm.DB, logger *slog.Logger) *Handler {
	return &Handler{db: db, logger: logger}
}

type statusResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health always reports ok while the process is up.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   Version,
	})
}

// Ready verifies the database connection before admitting traffic.
func (h *Handler) Ready(c *gin.Context) {
	checks := map[string]string{
		"database": h.checkDatabase(),
	}

	status := "ready"
	code := http.StatusOK
	if checks["database"] != "ok" {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, statusResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   Version,
		Checks:    checks,
	})
}

// VersionInfo reports build metadata.
func (h *Handler) VersionInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
	})
}

func (h *Handler) checkDatabase() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sqlDB, err := h.db.DB()
	if err != nil {
		h.logger.Error("health check: failed to get database instance", slog.String("error", err.Error()))
		return "unavailable"
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		h.logger.Error("health check: database ping failed", slog.String("error", err.Error()))
		return "unhealthy"
	}
	return "ok"
}
