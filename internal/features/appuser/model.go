package appuser

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blbu/vr-therapy-server-go/pkg/pagination"
)

// AppUser is a headset patient enrolled in the video curriculum. CurrentDay
// starts at 1 and only ever increases, one step at a time, as a side effect
// of the progression engine's advancement rule.
type AppUser struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	FirstName  string    `gorm:"type:varchar(100);column:first_name" json:"firstName"`
	LastName   string    `gorm:"type:varchar(100);column:last_name" json:"lastName"`
	Active     bool      `gorm:"not null;default:true" json:"active"`
	CurrentDay int       `gorm:"not null;default:1;column:current_day" json:"currentDay"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (AppUser) TableName() string { return "vr_app_users" }

func (u *AppUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// CreateInput carries data for enrolling a new user.
type CreateInput struct {
	Email     string
	FirstName string
	LastName  string
}

// Create enrolls a new user starting at day 1.
func Create(db *gorm.DB, input CreateInput) (AppUser, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return AppUser{}, ErrEmailRequired
	}

	var existing int64
	if err := db.Model(&AppUser{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return AppUser{}, err
	}
	if existing > 0 {
		return AppUser{}, ErrEmailTaken
	}

	user := AppUser{
		Email:      email,
		FirstName:  strings.TrimSpace(input.FirstName),
		LastName:   strings.TrimSpace(input.LastName),
		Active:     true,
		CurrentDay: 1,
	}
	if err := db.Create(&user).Error; err != nil {
		return AppUser{}, err
	}
	return user, nil
}

// GetByEmail looks a user up by their unique email.
func GetByEmail(db *gorm.DB, email string) (AppUser, error) {
	var user AppUser
	err := db.First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user, ErrUserNotFound
	}
	return user, err
}

// GetByEmailForUpdate looks a user up by email with the row locked for
// the duration of the surrounding transaction. The sqlite driver emits
// no locking clause, so the same call works under the test driver.
func GetByEmailForUpdate(db *gorm.DB, email string) (AppUser, error) {
	var user AppUser
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user, ErrUserNotFound
	}
	return user, err
}

// List returns a page of enrolled users, newest first, along with the
// total count.
func List(db *gorm.DB, page pagination.Params) ([]AppUser, int64, error) {
	var total int64
	if err := db.Model(&AppUser{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []AppUser
	err := page.Apply(db).Order("created_at DESC").Find(&users).Error
	return users, total, err
}

// Delete removes a user together with their completions and watch events.
// Raw deletes keep this package from depending on the other features.
func Delete(db *gorm.DB, email string) error {
	user, err := GetByEmail(db, email)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM video_completions WHERE email = ?", user.Email).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM watch_events WHERE email = ?", user.Email).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}

// ActiveEmails returns the emails of all active users.
func ActiveEmails(db *gorm.DB) ([]string, error) {
	var emails []string
	err := db.Model(&AppUser{}).
		Where("active = ?", true).
		Order("email ASC").
		Pluck("email", &emails).Error
	return emails, err
}

// SetActive toggles the active flag.
func SetActive(db *gorm.DB, email string, active bool) (AppUser, error) {
	user, err := GetByEmail(db, email)
	if err != nil {
		return user, err
	}

	if err := db.Model(&user).Update("active", active).Error; err != nil {
		return user, err
	}
	user.Active = active
	return user, nil
}
