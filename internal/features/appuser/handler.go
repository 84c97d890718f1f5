package appuser

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/pkg/pagination"
	"github.com/blbu/vr-therapy-server-go/pkg/response"
)

// Handler serves enrollment and lookup endpoints for headset users.
type Handler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewHandler(db *gorm.DB, logger *slog.Logger) *Handler {
	return &Handler{db: db, logger: logger}
}

// Register enrolls a new user starting at curriculum day 1.
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid user payload", err)
		return
	}

	user, err := Create(h.db, CreateInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.respondError(c, err, "failed to register user")
		return
	}

	response.Created(c, user, "")
}

// List returns a page of enrolled users.
func (h *Handler) List(c *gin.Context) {
	page := pagination.FromRequest(c)

	users, total, err := List(h.db, page)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list users", err)
		return
	}
	response.Success(c, http.StatusOK, users, "", pagination.NewMeta(page, total))
}

// Get fetches a single user by email.
func (h *Handler) Get(c *gin.Context) {
	user, err := GetByEmail(h.db, c.Param("email"))
	if err != nil {
		h.respondError(c, err, "failed to load user")
		return
	}
	response.Success(c, http.StatusOK, user, "", nil)
}

// SetActive toggles whether the user may keep using the app.
func (h *Handler) SetActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "active flag is required", err)
		return
	}

	user, err := SetActive(h.db, c.Param("email"), *req.Active)
	if err != nil {
		h.respondError(c, err, "failed to update user")
		return
	}
	response.Success(c, http.StatusOK, user, "", nil)
}

// Delete removes a user and everything recorded about them.
func (h *Handler) Delete(c *gin.Context) {
	if err := Delete(h.db, c.Param("email")); err != nil {
		h.respondError(c, err, "failed to delete user")
		return
	}
	response.Success(c, http.StatusOK, nil, "User and all related data deleted.", nil)
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrUserNotFound):
		status = http.StatusNotFound
		message = "User not found."
	case errors.Is(err, ErrEmailRequired):
		status = http.StatusBadRequest
		message = "Email is required."
	case errors.Is(err, ErrEmailTaken):
		status = http.StatusConflict
		message = "Email is already registered."
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
