package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/internal/middleware"
)

// User is a dashboard staff account (admin or therapist), distinct from
// the headset patients in vr_app_users.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null;column:password_hash" json:"-"`
	Role         string    `gorm:"type:varchar(32);not null" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// CreateInput carries data for a new staff account.
type CreateInput struct {
	Email    string
	Password string
	Role     string
}

// Create registers a staff account with a bcrypt-hashed password.
func Create(db *gorm.DB, input CreateInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return User{}, ErrEmailRequired
	}
	if len(input.Password) < 8 {
		return User{}, ErrPasswordTooShort
	}
	if input.Role != middleware.RoleAdmin && input.Role != middleware.RoleTherapist {
		return User{}, ErrInvalidRole
	}

	var existing int64
	if err := db.Model(&User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return User{}, err
	}
	if existing > 0 {
		return User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{Email: email, PasswordHash: string(hash), Role: input.Role}
	if err := db.Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies the email/password pair.
func Authenticate(db *gorm.DB, email, password string) (User, error) {
	var user User
	err := db.First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}
