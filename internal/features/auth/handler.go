package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/internal/utils/jwt"
	"github.com/blbu/vr-therapy-server-go/pkg/response"
)

const accessTokenTTL = 24 * time.Hour

// Handler serves dashboard authentication endpoints.
type Handler struct {
	db        *gorm.DB
	jwtSecret string
	logger    *slog.Logger
}

func NewHandler(db *gorm.DB, jwtSecret string, logger *slog.Logger) *Handler {
	return &Handler{db: db, jwtSecret: jwtSecret, logger: logger}
}

// Register creates a staff account. Admin only.
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid registration payload", err)
		return
	}

	user, err := Create(h.db, CreateInput{Email: req.Email, Password: req.Password, Role: req.Role})
	if err != nil {
		h.respondError(c, err, "failed to register account")
		return
	}

	response.Created(c, user, "")
}

// Login exchanges credentials for an access token.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid login payload", err)
		return
	}

	user, err := Authenticate(h.db, req.Email, req.Password)
	if err != nil {
		h.respondError(c, err, "failed to sign in")
		return
	}

	token, err := jwt.GenerateAccessToken(h.jwtSecret, user.ID, user.Email, user.Role, accessTokenTTL)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to issue token", err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	}, "", nil)
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		status = http.StatusUnauthorized
		message = "Invalid email or password."
	case errors.Is(err, ErrEmailTaken):
		status = http.StatusConflict
		message = "Email is already registered."
	case errors.Is(err, ErrEmailRequired), errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrInvalidRole):
		status = http.StatusBadRequest
		message = err.Error()
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
