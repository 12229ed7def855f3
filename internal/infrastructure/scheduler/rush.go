package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUSH SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// RushExecutor is the application-side port the rush scheduler drives. The
// executor owns all persistence: it commits the final status through the
// repository's compare-and-set, which is what makes concurrent late attempts
// harmless.
type RushExecutor interface {
	// ShouldRush reports whether the course is still worth rushing (the
	// record still carries the pre-registered intent). A false answer
	// cancels the burst before the first attempt.
	ShouldRush(ctx context.Context, courseID int64) bool

	// Attempt performs one enrollment attempt. It returns true when the
	// outcome is durable (seat claimed, or full and moved to monitoring) and
	// false when the attempt should simply be followed by another.
	Attempt(ctx context.Context, courseID int64) (settled bool)

	// Expire records that the burst window closed without a settlement.
	Expire(ctx context.Context, courseID int64)
}

// RushConfig tunes the rush timing.
type RushConfig struct {
	// Lead is how long before the selection window opens the burst starts.
	Lead time.Duration

	// Cadence is the delay between attempt launches. Attempts are launched
	// on the cadence regardless of whether earlier ones have returned.
	Cadence time.Duration

	// Window bounds the burst after the selection window opens.
	Window time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultRushConfig returns the production timing.
func DefaultRushConfig() RushConfig {
	return RushConfig{
		Lead:    30 * time.Second,
		Cadence: 500 * time.Millisecond,
		Window:  5 * time.Minute,
	}
}

// RushScheduler manages one-shot rush jobs, at most one per course id.
// Re-arming a course replaces its pending job; cancelling stops it.
type RushScheduler struct {
	config   RushConfig
	executor RushExecutor
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[int64]*rushJob
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// rushJob is one armed course.
type rushJob struct {
	courseID    int64
	selectStart time.Time
	cancel      context.CancelFunc
}

// NewRushScheduler creates a rush scheduler.
func NewRushScheduler(config RushConfig, executor RushExecutor) *RushScheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Lead <= 0 {
		config.Lead = 30 * time.Second
	}
	if config.Cadence <= 0 {
		config.Cadence = 500 * time.Millisecond
	}
	if config.Window <= 0 {
		config.Window = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RushScheduler{
		config:   config,
		executor: executor,
		logger:   config.Logger,
		jobs:     make(map[int64]*rushJob),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Arm schedules a rush for the course at selectStart−lead. When a job for the
// same course is already pending it is replaced, so repeated bookings of the
// same course keep exactly one live timer.
func (s *RushScheduler) Arm(courseID int64, selectStart time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[courseID]; ok {
		old.cancel()
	}

	jobCtx, jobCancel := context.WithCancel(s.ctx)
	job := &rushJob{
		courseID:    courseID,
		selectStart: selectStart,
		cancel:      jobCancel,
	}
	s.jobs[courseID] = job

	fireAt := selectStart.Add(-s.config.Lead)
	s.logger.Info("rush armed",
		"course_id", courseID,
		"select_start", selectStart,
		"fire_at", fireAt,
	)

	s.wg.Add(1)
	go s.run(jobCtx, job, fireAt)
}

// Cancel stops the pending rush for a course, if any.
func (s *RushScheduler) Cancel(courseID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[courseID]; ok {
		job.cancel()
		delete(s.jobs, courseID)
		s.logger.Info("rush cancelled", "course_id", courseID)
	}
}

// Armed reports whether a rush is pending for the course.
func (s *RushScheduler) Armed(courseID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[courseID]
	return ok
}

// Stop cancels every pending rush and waits for running bursts to unwind.
func (s *RushScheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// run waits until fireAt, then bursts.
func (s *RushScheduler) run(ctx context.Context, job *rushJob, fireAt time.Time) {
	defer s.wg.Done()
	defer s.remove(job)

	if wait := time.Until(fireAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	if !s.executor.ShouldRush(ctx, job.courseID) {
		s.logger.Info("rush skipped, intent withdrawn", "course_id", job.courseID)
		return
	}

	s.burst(ctx, job)
}

// burst launches attempts on the cadence until the first settlement or the
// deadline. Attempts run concurrently; the settled channel has capacity one
// and is written with a non-blocking send, so the first durable outcome stops
// the burst and late results are discarded.
func (s *RushScheduler) burst(ctx context.Context, job *rushJob) {
	deadline := job.selectStart.Add(s.config.Window)
	settled := make(chan struct{}, 1)

	s.logger.Info("rush burst started",
		"course_id", job.courseID,
		"deadline", deadline,
	)

	ticker := time.NewTicker(s.config.Cadence)
	defer ticker.Stop()

	var attempts sync.WaitGroup
	defer attempts.Wait()

	launch := func() {
		attempts.Add(1)
		go func() {
			defer attempts.Done()
			if s.executor.Attempt(ctx, job.courseID) {
				select {
				case settled <- struct{}{}:
				default:
				}
			}
		}()
	}

	launch()
	for {
		select {
		case <-ctx.Done():
			return
		case <-settled:
			s.logger.Info("rush settled", "course_id", job.courseID)
			return
		case now := <-ticker.C:
			if now.After(deadline) {
				s.logger.Warn("rush window closed without settlement",
					"course_id", job.courseID,
				)
				s.executor.Expire(ctx, job.courseID)
				return
			}
			launch()
		}
	}
}

// remove drops the job entry unless it was already replaced by a re-arm.
func (s *RushScheduler) remove(job *rushJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.jobs[job.courseID]; ok && current == job {
		delete(s.jobs, job.courseID)
	}
}
