package watch

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blbu/vr-therapy-server-go/pkg/request"
	"github.com/blbu/vr-therapy-server-go/pkg/response"
)

// Handler processes telemetry ingest and event feed HTTP requests.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RecordEvent ingests one playback telemetry report.
func (h *Handler) RecordEvent(c *gin.Context) {
	var req struct {
		Email         string   `json:"email"`
		SessionID     string   `json:"sessionId"`
		VideoID       *int64   `json:"videoId"`
		EventType     string   `json:"eventType"`
		VideoTime     *float64 `json:"videoTime"`
		VideoDuration *float64 `json:"videoDuration"`
		Details       string   `json:"details"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid event payload", err)
		return
	}

	event, err := h.service.RecordEvent(RecordEventInput{
		Email:         req.Email,
		SessionID:     req.SessionID,
		VideoID:       req.VideoID,
		EventType:     EventType(req.EventType),
		VideoTime:     req.VideoTime,
		VideoDuration: req.VideoDuration,
		Details:       req.Details,
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		h.respondError(c, err, "failed to record event")
		return
	}

	response.Created(c, gin.H{"id": event.ID}, "")
}

// CheckSeek answers whether a proposed seek stays within the allowed band.
// FromTime arrives with every report but plays no part in the decision.
func (h *Handler) CheckSeek(c *gin.Context) {
	var req struct {
		SessionID string   `json:"sessionId"`
		FromTime  *float64 `json:"fromTime"`
		ToTime    *float64 `json:"toTime"`
	}

	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.ToTime == nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "sessionId and toTime are required", err)
		return
	}

	valid, maxPosition := h.service.IsSeekValid(req.SessionID, *req.ToTime)
	response.Success(c, http.StatusOK, gin.H{
		"valid":              valid,
		"maxWatchedPosition": maxPosition,
	}, "", nil)
}

// MaxPosition returns the furthest watched position for a session.
func (h *Handler) MaxPosition(c *gin.Context) {
	sessionID := c.Param("sessionId")
	response.Success(c, http.StatusOK, gin.H{
		"maxWatchedPosition": h.service.Tracker().MaxPosition(sessionID),
	}, "", nil)
}

// IsComplete reports whether the user has completed the given video.
func (h *Handler) IsComplete(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "email is required", nil)
		return
	}

	videoID, err := strconv.ParseInt(c.Query("videoId"), 10, 64)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "videoId must be an integer", err)
		return
	}

	complete, err := h.service.IsVideoFullyWatched(email, videoID)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to check completion", err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"complete": complete}, "", nil)
}

// RecentEvents lists events from the last N minutes (default 60).
func (h *Handler) RecentEvents(c *gin.Context) {
	minutes := request.QueryInt(c, "minutes", 60)

	views, err := h.service.RecentEvents(minutes)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list recent events", err)
		return
	}
	response.Success(c, http.StatusOK, views, "", nil)
}

// LatestEvents lists the most recent events, bounded.
func (h *Handler) LatestEvents(c *gin.Context) {
	views, err := h.service.LatestEvents()
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list latest events", err)
		return
	}
	response.Success(c, http.StatusOK, views, "", nil)
}

// ViolationEvents lists all violation-category events.
func (h *Handler) ViolationEvents(c *gin.Context) {
	views, err := h.service.ViolationEvents()
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list violations", err)
		return
	}
	response.Success(c, http.StatusOK, views, "", nil)
}

// UserEvents lists one user's events newest first.
func (h *Handler) UserEvents(c *gin.Context) {
	views, err := h.service.UserEvents(c.Param("email"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list user events", err)
		return
	}
	response.Success(c, http.StatusOK, views, "", nil)
}

// SessionEvents lists a session's events oldest first.
func (h *Handler) SessionEvents(c *gin.Context) {
	views, err := h.service.SessionEvents(c.Param("sessionId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list session events", err)
		return
	}
	response.Success(c, http.StatusOK, views, "", nil)
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrEmailRequired):
		status = http.StatusBadRequest
		message = "Email is required."
	case errors.Is(err, ErrSessionRequired):
		status = http.StatusBadRequest
		message = "Session id is required."
	case errors.Is(err, ErrInvalidEventType):
		status = http.StatusBadRequest
		message = "Unknown event type."
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
