package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blbu/vr-therapy-server-go/pkg/metrics"
)

// GormLogger bridges gorm's logging into slog and records query metrics.
type GormLogger struct {
	logger        *slog.Logger
	slowThreshold time.Duration
	logLevel      logger.LogLevel
}

func NewGormLogger(appLogger *slog.Logger, slowThreshold time.Duration) logger.Interface {
	return &GormLogger{
		logger:        appLogger,
		slowThreshold: slowThreshold,
		logLevel:      logger.Warn,
	}
}

func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	operation := extractOperation(sql)
	table := extractTableName(sql)
	metrics.RecordDBQuery(operation, table, elapsed)

	switch {
	case err != nil && l.logLevel >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.ErrorContext(ctx, "database query error",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed),
			slog.String("sql", sql),
			slog.Int64("rows", rows),
		)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.logLevel >= logger.Warn:
		l.logger.WarnContext(ctx, "slow query detected",
			slog.Duration("elapsed", elapsed),
			slog.Duration("threshold", l.slowThreshold),
			slog.String("operation", operation),
			slog.String("table", table),
			slog.Int64("rows", rows),
			slog.String("sql", sql),
		)
	case l.logLevel >= logger.Info:
		l.logger.DebugContext(ctx, "database query",
			slog.Duration("elapsed", elapsed),
			slog.String("operation", operation),
			slog.String("table", table),
			slog.Int64("rows", rows),
		)
	}
}

func extractOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

// extractTableName pulls the first table reference out of the statement.
// Heuristic only, used for metric labels.
func extractTableName(sql string) string {
	upper := strings.ToUpper(sql)
	for _, keyword := range []string{" FROM ", " INTO ", "UPDATE "} {
		idx := strings.Index(upper, keyword)
		if idx == -1 {
			continue
		}

		rest := sql[idx+len(keyword):]
		rest = strings.TrimLeft(rest, ` "`+"`")
		end := strings.IndexFunc(rest, func(r rune) bool {
			switch r {
			case ' ', ',', ';', '"', '`', '(':
				return true
			}
			return false
		})
		if end == -1 {
			end = len(rest)
		}
		if end > 0 {
			return rest[:end]
		}
	}
	return "unknown"
}
