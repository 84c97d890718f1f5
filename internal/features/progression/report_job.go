package progression

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/pkg/email"
)

// DailyReportJob mails therapists a summary of the previous day's verified
// completions.
type DailyReportJob struct {
	db         *gorm.DB
	mailer     *email.Client
	recipients []string
	logger     *slog.Logger
	now        func() time.Time
}

func NewDailyReportJob(db *gorm.DB, mailer *email.Client, recipients []string, logger *slog.Logger) *DailyReportJob {
	return &DailyReportJob{
		db:         db,
		mailer:     mailer,
		recipients: recipients,
		logger:     logger,
		now:        time.Now,
	}
}

func (j *DailyReportJob) Name() string { return "daily_completion_summary" }

func (j *DailyReportJob) Execute(ctx context.Context) error {
	if len(j.recipients) == 0 {
		j.logger.Debug("daily report skipped, no recipients configured")
		return nil
	}

	now := j.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	dayEnd := dayStart.AddDate(0, 0, 1)

	completions, err := CompletionsBetween(j.db.WithContext(ctx), dayStart, dayEnd)
	if err != nil {
		return err
	}

	rows := make([]email.CompletionRow, 0, len(completions))
	for _, completion := range completions {
		rows = append(rows, email.CompletionRow{
			Email:       completion.Email,
			VideoTitle:  completion.VideoTitle,
			CompletedAt: completion.CompletedAt,
		})
	}

	return j.mailer.SendDailyReport(j.recipients, dayStart, rows)
}
