package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/internal/features/appuser"
	"github.com/blbu/vr-therapy-server-go/pkg/cache"
	"github.com/blbu/vr-therapy-server-go/pkg/metrics"
)

const dateLayout = "2006-01-02"

const progressCacheTTL = 30 * time.Second

// VideoRef is the curriculum video resolved for a user's current day.
type VideoRef struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Filename     string `json:"filename"`
	StorageURL   string `json:"storageUrl"`
	DisplayOrder int    `json:"displayOrder"`
}

// Progress is the user-facing progression summary.
type Progress struct {
	CompletedDates []string `json:"completedDates"`
	Streak         int      `json:"streak"`
	TotalCompleted int64    `json:"totalCompleted"`
	TodayCompleted bool     `json:"todayCompleted"`
	CurrentDay     int      `json:"currentDay"`
}

// AdvanceResult reports the outcome of recording a completion.
type AdvanceResult struct {
	CurrentDay  int   `json:"currentDay"`
	Completions int64 `json:"completions"`
	Advanced    bool  `json:"advanced"`
}

// Engine computes streaks and drives day-by-day curriculum advancement.
type Engine struct {
	db     *gorm.DB
	cache  cache.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(db *gorm.DB, cacheClient cache.Client, logger *slog.Logger) *Engine {
	return &Engine{
		db:     db,
		cache:  cacheClient,
		logger: logger,
		now:    time.Now,
	}
}

// CompletedDates returns the distinct calendar dates (UTC) on which the
// user completed a video, sorted ascending.
func (e *Engine) CompletedDates(email string) ([]string, error) {
	times, err := CompletionTimes(e.db, email)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(times))
	for _, t := range times {
		seen[t.UTC().Format(dateLayout)] = struct{}{}
	}

	dates := make([]string, 0, len(seen))
	for date := range seen {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Streak counts consecutive completion days ending today or yesterday.
// Missing today does not break the streak until yesterday is also missing:
// a user keeps their streak through the day they have not yet watched.
func (e *Engine) Streak(email string) (int, error) {
	dates, err := e.CompletedDates(email)
	if err != nil {
		return 0, err
	}
	if len(dates) == 0 {
		return 0, nil
	}

	set := make(map[string]struct{}, len(dates))
	for _, date := range dates {
		set[date] = struct{}{}
	}

	day := e.today()
	if _, ok := set[day.Format(dateLayout)]; !ok {
		day = day.AddDate(0, 0, -1)
		if _, ok := set[day.Format(dateLayout)]; !ok {
			return 0, nil
		}
	}

	streak := 0
	for {
		if _, ok := set[day.Format(dateLayout)]; !ok {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak, nil
}

// VideoForUserDay resolves the curriculum video assigned to the user's
// current day. Each video covers two consecutive days.
func (e *Engine) VideoForUserDay(email string) (VideoRef, error) {
	user, err := appuser.GetByEmail(e.db, email)
	if err != nil {
		if errors.Is(err, appuser.ErrUserNotFound) {
			return VideoRef{}, ErrUserNotFound
		}
		return VideoRef{}, err
	}
	return e.videoForDay(e.db, user.CurrentDay)
}

func (e *Engine) videoForDay(db *gorm.DB, currentDay int) (VideoRef, error) {
	order := ((currentDay - 1) / 2) + 1

	var ref VideoRef
	err := db.Table("videos").
		Select("id, title, filename, storage_url, display_order").
		Where("display_order = ?", order).
		Scan(&ref).Error
	if err != nil {
		return VideoRef{}, err
	}
	if ref.ID == 0 {
		return VideoRef{}, fmt.Errorf("%w: display order %d", ErrVideoNotFound, order)
	}
	return ref, nil
}

// errAdvanceConflict signals a lost current_day precondition: the user row
// changed under the transaction. The whole transaction rolls back, including
// the completion insert, and the caller retries once against fresh state.
var errAdvanceConflict = errors.New("concurrent day advancement")

// RecordCompletionAndAdvance appends a completion for the user's currently
// assigned video and advances the day once the completion count for that
// video reaches two. The user row is locked for the transaction, so racing
// completions for the same user serialize and exactly one of them observes
// the advancing count. A lost precondition rolls everything back and the
// call retries once.
func (e *Engine) RecordCompletionAndAdvance(email string) (AdvanceResult, error) {
	result, err := e.recordCompletion(email)
	if errors.Is(err, errAdvanceConflict) {
		result, err = e.recordCompletion(email)
	}
	if err != nil {
		return AdvanceResult{}, err
	}

	metrics.RecordCompletion()
	e.invalidateProgress(email)

	if result.Advanced {
		e.logger.Info("curriculum day advanced",
			slog.String("email", email),
			slog.Int("current_day", result.CurrentDay),
		)
	}
	return result, nil
}

func (e *Engine) recordCompletion(email string) (AdvanceResult, error) {
	var result AdvanceResult

	err := e.db.Transaction(func(tx *gorm.DB) error {
		user, err := appuser.GetByEmailForUpdate(tx, email)
		if err != nil {
			if errors.Is(err, appuser.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		video, err := e.videoForDay(tx, user.CurrentDay)
		if err != nil {
			return err
		}

		completion := VideoCompletion{
			Email:       user.Email,
			VideoID:     video.ID,
			CompletedAt: e.now().UTC(),
		}
		if err := tx.Create(&completion).Error; err != nil {
			return err
		}

		count, err := CountForUserVideo(tx, user.Email, video.ID)
		if err != nil {
			return err
		}

		result = AdvanceResult{CurrentDay: user.CurrentDay, Completions: count}

		// Advancement fires only on the 1 -> 2 transition. The row lock
		// makes the observed count exact, so exactly one caller sees it.
		if count == 2 {
			res := tx.Model(&appuser.AppUser{}).
				Where("email = ? AND current_day = ?", user.Email, user.CurrentDay).
				Update("current_day", user.CurrentDay+1)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errAdvanceConflict
			}
			result.Advanced = true
			result.CurrentDay = user.CurrentDay + 1
		}
		return nil
	})
	if err != nil {
		return AdvanceResult{}, err
	}
	return result, nil
}

// UserCompletions pairs a user with their completed calendar dates, for
// the dashboard's per-user detail view.
type UserCompletions struct {
	User           appuser.AppUser `json:"user"`
	CompletedDates []string        `json:"completedDates"`
}

// CompletionsForUser returns the user together with every date they
// completed a video on.
func (e *Engine) CompletionsForUser(email string) (UserCompletions, error) {
	user, err := appuser.GetByEmail(e.db, email)
	if err != nil {
		if errors.Is(err, appuser.ErrUserNotFound) {
			return UserCompletions{}, ErrUserNotFound
		}
		return UserCompletions{}, err
	}

	dates, err := e.CompletedDates(user.Email)
	if err != nil {
		return UserCompletions{}, err
	}
	return UserCompletions{User: user, CompletedDates: dates}, nil
}

// TodayStatus splits the active users into those who completed a video
// today and those still pending.
type TodayStatus struct {
	Date      string   `json:"date"`
	Completed []string `json:"completed"`
	Pending   []string `json:"pending"`
}

// TodaysCompletionStatus reports which active users have completed a video
// today.
func (e *Engine) TodaysCompletionStatus() (TodayStatus, error) {
	active, err := appuser.ActiveEmails(e.db)
	if err != nil {
		return TodayStatus{}, err
	}

	completedToday, err := CompletedEmailsSince(e.db, e.today())
	if err != nil {
		return TodayStatus{}, err
	}

	done := make(map[string]struct{}, len(completedToday))
	for _, email := range completedToday {
		done[email] = struct{}{}
	}

	status := TodayStatus{
		Date:      e.today().Format(dateLayout),
		Completed: make([]string, 0, len(active)),
		Pending:   make([]string, 0, len(active)),
	}
	for _, email := range active {
		if _, ok := done[email]; ok {
			status.Completed = append(status.Completed, email)
		} else {
			status.Pending = append(status.Pending, email)
		}
	}
	return status, nil
}

// UserProgress assembles the progression summary, served from cache when
// fresh.
func (e *Engine) UserProgress(email string) (Progress, error) {
	ctx := context.Background()

	var cached Progress
	switch err := cache.GetJSON(ctx, e.cache, progressCacheKey(email), &cached); {
	case err == nil:
		return cached, nil
	case !cache.IsMiss(err):
		e.logger.Warn("progress cache read failed", slog.String("error", err.Error()))
	}

	user, err := appuser.GetByEmail(e.db, email)
	if err != nil {
		if errors.Is(err, appuser.ErrUserNotFound) {
			return Progress{}, ErrUserNotFound
		}
		return Progress{}, err
	}

	dates, err := e.CompletedDates(user.Email)
	if err != nil {
		return Progress{}, err
	}
	streak, err := e.Streak(user.Email)
	if err != nil {
		return Progress{}, err
	}
	total, err := TotalForUser(e.db, user.Email)
	if err != nil {
		return Progress{}, err
	}

	today := e.today().Format(dateLayout)
	todayCompleted := false
	for _, date := range dates {
		if date == today {
			todayCompleted = true
			break
		}
	}

	progress := Progress{
		CompletedDates: dates,
		Streak:         streak,
		TotalCompleted: total,
		TodayCompleted: todayCompleted,
		CurrentDay:     user.CurrentDay,
	}

	if err := cache.SetJSON(ctx, e.cache, progressCacheKey(email), progress, progressCacheTTL); err != nil {
		e.logger.Warn("failed to cache progress", slog.String("error", err.Error()))
	}
	return progress, nil
}

func (e *Engine) today() time.Time {
	now := e.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (e *Engine) invalidateProgress(email string) {
	if err := e.cache.Delete(context.Background(), progressCacheKey(email)); err != nil {
		e.logger.Warn("failed to invalidate progress cache", slog.String("error", err.Error()))
	}
}

func progressCacheKey(email string) string {
	return "progress:" + email
}
