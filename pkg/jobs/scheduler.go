package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of periodic background work.
type Job interface {
	Name() string
	Execute(ctx context.Context) error
}

type scheduledJob struct {
	job      Job
	interval time.Duration
}

// Scheduler runs registered jobs on fixed intervals until stopped.
type Scheduler struct {
	jobs   []scheduledJob
	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// AddJob registers a job to run every interval. Must be called before Start.
func (s *Scheduler) AddJob(job Job, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, scheduledJob{job: job, interval: interval})
}

// Start launches one goroutine per job. Each job also runs once at startup.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)

	for _, sj := range s.jobs {
		s.wg.Add(1)
		go s.run(ctx, sj)
	}

	s.logger.Info("job scheduler started", slog.Int("jobs", len(s.jobs)))
}

func (s *Scheduler) run(ctx context.Context, sj scheduledJob) {
	defer s.wg.Done()

	s.execute(ctx, sj.job)

	ticker := time.NewTicker(sj.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, sj.job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Execute(ctx); err != nil {
		s.logger.Error("job failed",
			slog.String("job", job.Name()),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return
	}
	s.logger.Info("job completed",
		slog.String("job", job.Name()),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// Stop cancels all jobs and waits for in-flight executions to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("job scheduler stopped")
}
