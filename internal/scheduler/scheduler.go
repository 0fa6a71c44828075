// Package scheduler drives periodic maintenance jobs off the exchange
// calendar: the funded-account daily-reset job (spec §4.6 — every
// funded account's daily P&L and trade count must zero out at the start
// of a new trading day) and any other operator-registered nightly or
// weekly housekeeping.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nitinkhare/tradegateway/internal/market"
)

// JobType categorizes when a job should run.
type JobType string

const (
	// JobTypeDailyReset runs once per calendar-day boundary (§4.6).
	JobTypeDailyReset JobType = "DAILY_RESET"
	// JobTypeWeekly runs only when RunWeeklyJobs is called; Tick never
	// runs it.
	JobTypeWeekly JobType = "WEEKLY"
)

// Job represents a scheduled task.
type Job struct {
	Name    string
	Type    JobType
	RunFunc func(ctx context.Context) error
}

// Scheduler runs registered jobs against the exchange calendar's day
// boundary, polled on Tick.
type Scheduler struct {
	calendar *market.Calendar
	jobs     []Job
	logger   *log.Logger
	lastTick time.Time
}

// New creates a Scheduler. now is the time Tick treats as "the last
// boundary check", typically time.Now() at startup.
func New(calendar *market.Calendar, logger *log.Logger, now time.Time) *Scheduler {
	return &Scheduler{
		calendar: calendar,
		logger:   logger,
		lastTick: now,
	}
}

// RegisterJob adds a job to the scheduler.
func (s *Scheduler) RegisterJob(job Job) {
	s.jobs = append(s.jobs, job)
	s.logger.Printf("[scheduler] registered job: %s (type: %s)", job.Name, job.Type)
}

// Tick checks whether now has crossed a calendar-day boundary since the
// last call and, if so, runs every registered daily-reset job. Call
// periodically (e.g. every minute) from cmd/gateway's main loop.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	if !s.calendar.CrossedDayBoundary(s.lastTick, now) {
		s.lastTick = now
		return nil
	}
	s.lastTick = now

	if !s.calendar.IsTradingDay(now) {
		s.logger.Printf("[scheduler] new day %s is not a trading day, skipping daily-reset jobs",
			now.Format("2006-01-02"))
		return nil
	}

	return s.RunDailyResetJobs(ctx)
}

// RunDailyResetJobs executes all daily-reset jobs in sequence. A failure
// in one job stops the remaining ones so an operator sees the first
// failure clearly rather than a pile of cascading ones.
func (s *Scheduler) RunDailyResetJobs(ctx context.Context) error {
	s.logger.Println("[scheduler] starting daily-reset job cycle")

	for _, job := range s.jobs {
		if job.Type != JobTypeDailyReset {
			continue
		}

		s.logger.Printf("[scheduler] running daily-reset job: %s", job.Name)
		start := time.Now()

		if err := job.RunFunc(ctx); err != nil {
			s.logger.Printf("[scheduler] FAILED daily-reset job %s: %v", job.Name, err)
			return fmt.Errorf("daily-reset job %s failed: %w", job.Name, err)
		}

		s.logger.Printf("[scheduler] completed daily-reset job %s in %v", job.Name, time.Since(start))
	}

	s.logger.Println("[scheduler] daily-reset job cycle complete")
	return nil
}

// RunWeeklyJobs executes weekly maintenance jobs. Failures are logged
// and do not stop the remaining jobs — weekly housekeeping (e.g.
// pruning old acknowledged violations) is best-effort.
func (s *Scheduler) RunWeeklyJobs(ctx context.Context) error {
	s.logger.Println("[scheduler] starting weekly job cycle")

	for _, job := range s.jobs {
		if job.Type != JobTypeWeekly {
			continue
		}

		s.logger.Printf("[scheduler] running weekly job: %s", job.Name)
		if err := job.RunFunc(ctx); err != nil {
			s.logger.Printf("[scheduler] FAILED weekly job %s: %v", job.Name, err)
		}
	}

	s.logger.Println("[scheduler] weekly job cycle complete")
	return nil
}

// Status returns current calendar state information for the operator
// health surface.
func (s *Scheduler) Status(now time.Time) string {
	isTrading := s.calendar.IsTradingDay(now)
	status := fmt.Sprintf("trading_day=%v", isTrading)
	if reason := s.calendar.HolidayReason(now); reason != "" {
		status += fmt.Sprintf(" holiday=%s", reason)
	}
	return status
}
