package auth

import (
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blbu/vr-therapy-server-go/internal/middleware"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestCreateValidation(t *testing.T) {
	db := newTestDB(t)

	if _, err := Create(db, CreateInput{Password: "longenough", Role: middleware.RoleAdmin}); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("missing email: got %v, want ErrEmailRequired", err)
	}
	if _, err := Create(db, CreateInput{Email: "a@b.c", Password: "short", Role: middleware.RoleAdmin}); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("short password: got %v, want ErrPasswordTooShort", err)
	}
	if _, err := Create(db, CreateInput{Email: "a@b.c", Password: "longenough", Role: "superuser"}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("bad role: got %v, want ErrInvalidRole", err)
	}

	if _, err := Create(db, CreateInput{Email: "a@b.c", Password: "longenough", Role: middleware.RoleTherapist}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := Create(db, CreateInput{Email: "A@b.c", Password: "longenough", Role: middleware.RoleTherapist}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email: got %v, want ErrEmailTaken", err)
	}
}

func TestAuthenticate(t *testing.T) {
	db := newTestDB(t)

	created, err := Create(db, CreateInput{Email: "staff@example.com", Password: "correct-horse", Role: middleware.RoleAdmin})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.PasswordHash == "correct-horse" {
		t.Fatal("password stored in plaintext")
	}

	user, err := Authenticate(db, "Staff@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != created.ID {
		t.Fatal("authenticated as a different user")
	}

	if _, err := Authenticate(db, "staff@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := Authenticate(db, "ghost@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v, want ErrInvalidCredentials", err)
	}
}
