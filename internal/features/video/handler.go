package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/internal/features/progression"
	"github.com/blbu/vr-therapy-server-go/internal/features/watch"
	"github.com/blbu/vr-therapy-server-go/pkg/response"
)

// Storage is the object-store surface the handler needs. Satisfied by
// *gcs.Client; nil disables uploads.
type Storage interface {
	Upload(ctx context.Context, objectName, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, objectName string) error
}

// Handler serves curriculum video management endpoints.
type Handler struct {
	db      *gorm.DB
	storage Storage
	logger  *slog.Logger
}

func NewHandler(db *gorm.DB, storage Storage, logger *slog.Logger) *Handler {
	return &Handler{db: db, storage: storage, logger: logger}
}

// List returns the curriculum in display order.
func (h *Handler) List(c *gin.Context) {
	videos, err := List(h.db)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list videos", err)
		return
	}
	response.Success(c, http.StatusOK, videos, "", nil)
}

// Get fetches a single video.
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("videoId"), 10, 64)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid video id", err)
		return
	}

	video, err := Get(h.db, id)
	if err != nil {
		h.respondError(c, err, "failed to load video")
		return
	}
	response.Success(c, http.StatusOK, video, "", nil)
}

// Today resolves the video pinned to today's date, when one exists.
func (h *Handler) Today(c *gin.Context) {
	video, err := GetByAssignedDate(h.db, time.Now().UTC())
	if err != nil {
		h.respondError(c, err, "failed to resolve today's video")
		return
	}
	response.Success(c, http.StatusOK, video, "", nil)
}

// Upload streams a video file to object storage and records its metadata.
func (h *Handler) Upload(c *gin.Context) {
	if h.storage == nil {
		h.respondError(c, ErrStorageUnavailable, "video storage is not configured")
		return
	}

	title := c.PostForm("title")
	displayOrder, err := strconv.Atoi(c.PostForm("displayOrder"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "displayOrder must be an integer", err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.respondError(c, ErrFileRequired, "video file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "failed to read uploaded file", err)
		return
	}
	defer file.Close()

	var assignedDate *time.Time
	if raw := c.PostForm("assignedDate"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "assignedDate must be formatted as 2006-01-02", err)
			return
		}
		assignedDate = &parsed
	}

	objectName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")

	storageURL, err := h.storage.Upload(c.Request.Context(), objectName, contentType, file)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to store video file", err)
		return
	}

	video, err := Create(h.db, CreateInput{
		Title:        title,
		Filename:     objectName,
		StorageURL:   storageURL,
		DisplayOrder: displayOrder,
		AssignedDate: assignedDate,
	})
	if err != nil {
		// Roll the uploaded object back so the bucket does not leak
		// orphans when metadata validation fails.
		if deleteErr := h.storage.Delete(c.Request.Context(), objectName); deleteErr != nil {
			h.logger.Error("failed to remove orphaned video object",
				slog.String("object", objectName),
				slog.String("error", deleteErr.Error()),
			)
		}
		h.respondError(c, err, "failed to create video")
		return
	}

	response.Created(c, video, "")
}

// Delete removes a video along with every event and completion that
// references it, then clears the stored object.
func (h *Handler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("videoId"), 10, 64)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid video id", err)
		return
	}

	video, err := Get(h.db, id)
	if err != nil {
		h.respondError(c, err, "failed to load video")
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := watch.DeleteAllForVideo(tx, id); err != nil {
			return err
		}
		if err := progression.DeleteAllForVideo(tx, id); err != nil {
			return err
		}
		return Delete(tx, id)
	})
	if err != nil {
		h.respondError(c, err, "failed to delete video")
		return
	}

	// Storage cleanup is best-effort: the metadata and audit rows are
	// already gone.
	if h.storage != nil && video.Filename != "" {
		if err := h.storage.Delete(c.Request.Context(), video.Filename); err != nil {
			h.logger.Error("failed to delete video object",
				slog.String("object", video.Filename),
				slog.String("error", err.Error()),
			)
		}
	}

	response.Success(c, http.StatusOK, true, "", nil)
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrVideoNotFound):
		status = http.StatusNotFound
		message = "Video not found."
	case errors.Is(err, ErrTitleRequired):
		status = http.StatusBadRequest
		message = "Video title is required."
	case errors.Is(err, ErrOrderRequired):
		status = http.StatusBadRequest
		message = "Display order must be a positive integer."
	case errors.Is(err, ErrOrderTaken):
		status = http.StatusConflict
		message = "Display order is already assigned."
	case errors.Is(err, ErrFileRequired):
		status = http.StatusBadRequest
		message = "Video file is required."
	case errors.Is(err, ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
		message = "Video storage is not configured."
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
