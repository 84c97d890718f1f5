package report

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/internal/features/appuser"
	"github.com/blbu/vr-therapy-server-go/internal/features/progression"
	"github.com/blbu/vr-therapy-server-go/internal/features/watch"
)

// Violation is one integrity incident attached to a completion.
type Violation struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// Completion is one completed viewing in the daily report, flagged when
// the same user and video produced violations that day.
type Completion struct {
	Email       string      `json:"email"`
	UserName    string      `json:"userName"`
	VideoTitle  string      `json:"videoTitle"`
	CompletedAt time.Time   `json:"completedAt"`
	Flagged     bool        `json:"flagged"`
	Violations  []Violation `json:"violations"`
}

// Daily summarizes one calendar day for the therapy team.
type Daily struct {
	Date             string       `json:"date"`
	TotalCompletions int          `json:"totalCompletions"`
	FlaggedCount     int          `json:"flaggedCount"`
	TotalUsers       int          `json:"totalUsers"`
	Completions      []Completion `json:"completions"`
}

// Service assembles integrity reports from the event log and the
// completion records.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// DailyReport builds the report for one UTC calendar day: every completion
// recorded that day, cross-referenced with the day's violation events for
// the same user and video.
func (s *Service) DailyReport(day time.Time) (Daily, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	completions, err := progression.CompletionsBetween(s.db, dayStart, dayEnd)
	if err != nil {
		return Daily{}, err
	}

	violations, err := watch.ViolationsBetween(s.db, dayStart, dayEnd)
	if err != nil {
		return Daily{}, err
	}

	type key struct {
		email   string
		videoID int64
	}
	byUserVideo := make(map[key][]Violation)
	for _, event := range violations {
		if event.VideoID == nil {
			continue
		}
		k := key{email: event.Email, videoID: *event.VideoID}
		byUserVideo[k] = append(byUserVideo[k], Violation{
			Type:      string(event.EventType),
			Timestamp: event.Timestamp,
			Details:   event.Details,
		})
	}

	names := make(map[string]string)

	daily := Daily{
		Date:        dayStart.Format("2006-01-02"),
		Completions: make([]Completion, 0, len(completions)),
	}
	for _, row := range completions {
		userViolations := byUserVideo[key{email: row.Email, videoID: row.VideoID}]
		if userViolations == nil {
			userViolations = []Violation{}
		}

		completion := Completion{
			Email:       row.Email,
			UserName:    s.userName(names, row.Email),
			VideoTitle:  row.VideoTitle,
			CompletedAt: row.CompletedAt,
			Flagged:     len(userViolations) > 0,
			Violations:  userViolations,
		}
		if completion.Flagged {
			daily.FlaggedCount++
		}
		daily.Completions = append(daily.Completions, completion)
	}
	daily.TotalCompletions = len(daily.Completions)

	active, err := appuser.ActiveEmails(s.db)
	if err != nil {
		return Daily{}, err
	}
	daily.TotalUsers = len(active)

	return daily, nil
}

// userName resolves a display name, falling back to the email address.
func (s *Service) userName(cache map[string]string, email string) string {
	if name, ok := cache[email]; ok {
		return name
	}

	name := email
	user, err := appuser.GetByEmail(s.db, email)
	switch {
	case err == nil:
		if full := strings.TrimSpace(user.FirstName + " " + user.LastName); full != "" {
			name = full
		}
	case errors.Is(err, appuser.ErrUserNotFound):
	default:
		s.logger.Warn("failed to resolve user name", slog.String("email", email), slog.String("error", err.Error()))
	}

	cache[email] = name
	return name
}
