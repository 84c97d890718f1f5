package database

import (
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ReconnectPlugin pings the pool before each operation and retries the ping
// when the connection looks dead. database/sql re-establishes connections
// itself; this just surfaces outages early and logs them.
type ReconnectPlugin struct {
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

func NewReconnectPlugin(logger *slog.Logger) *ReconnectPlugin {
	return &ReconnectPlugin{
		logger:     logger,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}
}

func (p *ReconnectPlugin) Name() string {
	return "reconnect_plugin"
}

func (p *ReconnectPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("reconnect:before_query", p.checkConnection); err != nil {
		return err
	}
	if err := db.Callback().Create().Before("gorm:create").Register("reconnect:before_create", p.checkConnection); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("reconnect:before_update", p.checkConnection); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("reconnect:before_delete", p.checkConnection); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("reconnect:before_row", p.checkConnection); err != nil {
		return err
	}
	return db.Callback().Raw().Before("gorm:raw").Register("reconnect:before_raw", p.checkConnection)
}

func (p *ReconnectPlugin) checkConnection(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}

	if err := sqlDB.Ping(); err != nil && p.isConnectionError(err) {
		p.logger.Warn("database connection lost, attempting to reconnect",
			slog.String("error", err.Error()),
		)

		if p.retryPing(sqlDB) {
			p.logger.Info("database reconnection successful")
		} else {
			p.logger.Error("database reconnection failed after retries")
		}
	}
}

func (p *ReconnectPlugin) isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}

	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"connection timed out",
		"eof",
		"bad connection",
		"invalid connection",
		"closed network connection",
		"server closed",
	}
	for _, pattern := range patterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (p *ReconnectPlugin) retryPing(sqlDB *sql.DB) bool {
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		time.Sleep(p.retryDelay * time.Duration(attempt))

		if err := sqlDB.Ping(); err == nil {
			return true
		}

		p.logger.Warn("reconnection attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", p.maxRetries),
		)
	}
	return false
}
