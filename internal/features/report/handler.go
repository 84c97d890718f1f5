package report

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blbu/vr-therapy-server-go/pkg/response"
)

// Handler serves integrity report endpoints for the therapy team.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Daily returns one day's completion and violation summary.
func (h *Handler) Daily(c *gin.Context) {
	day, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "date must be formatted as 2006-01-02", err)
		return
	}

	daily, err := h.service.DailyReport(day)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to build daily report", err)
		return
	}
	response.Success(c, http.StatusOK, daily, "", nil)
}
