package progression

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blbu/vr-therapy-server-go/pkg/response"
)

// Handler serves curriculum progression endpoints.
type Handler struct {
	engine *Engine
	logger *slog.Logger
}

func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Progress returns the user's progression summary.
func (h *Handler) Progress(c *gin.Context) {
	progress, err := h.engine.UserProgress(c.Param("email"))
	if err != nil {
		h.respondError(c, err, "failed to load progress")
		return
	}
	response.Success(c, http.StatusOK, progress, "", nil)
}

// CurrentVideo resolves the video assigned to the user's current day.
func (h *Handler) CurrentVideo(c *gin.Context) {
	video, err := h.engine.VideoForUserDay(c.Param("email"))
	if err != nil {
		h.respondError(c, err, "failed to resolve current video")
		return
	}
	response.Success(c, http.StatusOK, video, "", nil)
}

// Completions returns the user with their completed dates.
func (h *Handler) Completions(c *gin.Context) {
	completions, err := h.engine.CompletionsForUser(c.Param("email"))
	if err != nil {
		h.respondError(c, err, "failed to load completions")
		return
	}
	response.Success(c, http.StatusOK, completions, "", nil)
}

// TodayStatus reports which active users completed a video today.
func (h *Handler) TodayStatus(c *gin.Context) {
	status, err := h.engine.TodaysCompletionStatus()
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to load today's status", err)
		return
	}
	response.Success(c, http.StatusOK, status, "", nil)
}

// Complete records a verified completion and possibly advances the day.
func (h *Handler) Complete(c *gin.Context) {
	result, err := h.engine.RecordCompletionAndAdvance(c.Param("email"))
	if err != nil {
		h.respondError(c, err, "failed to record completion")
		return
	}
	response.Created(c, result, "")
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrUserNotFound):
		status = http.StatusNotFound
		message = "User not found."
	case errors.Is(err, ErrVideoNotFound):
		status = http.StatusNotFound
		message = "No video assigned for the current day."
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
