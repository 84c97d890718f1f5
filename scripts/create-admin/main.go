package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/internal/features/auth"
	"github.com/blbu/vr-therapy-server-go/internal/middleware"
	"github.com/blbu/vr-therapy-server-go/pkg/config"
	"github.com/blbu/vr-therapy-server-go/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		appLogger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		appLogger.Error("Failed to get SQL DB", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sqlDB.Close()

	ctx := context.Background()
	if err := sqlDB.PingContext(ctx); err != nil {
		appLogger.Error("Failed to ping database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("Database connection established")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("Password (min 8 chars): ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)

	if email == "" || len(password) < 8 {
		fmt.Println("❌ Error: Email and password (min 8 chars) are required")
		os.Exit(1)
	}

	admin, err := auth.Create(db, auth.CreateInput{
		Email:    email,
		Password: password,
		Role:     middleware.RoleAdmin,
	})
	if err != nil {
		appLogger.Error("Failed to create admin", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Println("\n✅ Admin account created successfully!")
	fmt.Printf("   ID: %s\n", admin.ID)
	fmt.Printf("   Email: %s\n", admin.Email)
	fmt.Printf("   Role: %s\n", admin.Role)
}
