package scheduler

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/nitinkhare/tradegateway/internal/market"
)

func testCalendar(t *testing.T) *market.Calendar {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return market.NewCalendarFromHolidays(nil, loc)
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[scheduler-test] ", log.LstdFlags)
}

func TestTick_RunsDailyResetOnDayBoundary(t *testing.T) {
	cal := testCalendar(t)
	start := time.Date(2026, 2, 4, 4, 50, 0, 0, time.UTC) // Tuesday 23:50 in New York (EST)
	s := New(cal, testLogger(), start)

	ran := false
	s.RegisterJob(Job{
		Name: "reset-funded-daily-counters",
		Type: JobTypeDailyReset,
		RunFunc: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})

	sameDay := start.Add(5 * time.Minute)
	if err := s.Tick(context.Background(), sameDay); err != nil {
		t.Fatalf("tick within same day: %v", err)
	}
	if ran {
		t.Error("expected daily-reset job not to run within the same calendar day")
	}

	nextDay := start.Add(20 * time.Minute) // crosses into Wednesday
	if err := s.Tick(context.Background(), nextDay); err != nil {
		t.Fatalf("tick across day boundary: %v", err)
	}
	if !ran {
		t.Error("expected daily-reset job to run after crossing the day boundary")
	}
}

func TestTick_SkipsNonTradingDay(t *testing.T) {
	cal := testCalendar(t)
	friday := time.Date(2026, 2, 7, 4, 50, 0, 0, time.UTC) // Friday 23:50 in New York (EST)
	s := New(cal, testLogger(), friday)

	ran := false
	s.RegisterJob(Job{
		Name: "reset-funded-daily-counters",
		Type: JobTypeDailyReset,
		RunFunc: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})

	saturday := friday.Add(20 * time.Minute)
	if err := s.Tick(context.Background(), saturday); err != nil {
		t.Fatalf("tick into Saturday: %v", err)
	}
	if ran {
		t.Error("expected daily-reset job not to run when the new day is not a trading day")
	}
}

func TestRunDailyResetJobs_StopsOnFirstFailure(t *testing.T) {
	cal := testCalendar(t)
	s := New(cal, testLogger(), time.Now())

	var ranSecond bool
	s.RegisterJob(Job{
		Name: "first",
		Type: JobTypeDailyReset,
		RunFunc: func(ctx context.Context) error {
			return errors.New("boom")
		},
	})
	s.RegisterJob(Job{
		Name: "second",
		Type: JobTypeDailyReset,
		RunFunc: func(ctx context.Context) error {
			ranSecond = true
			return nil
		},
	})

	if err := s.RunDailyResetJobs(context.Background()); err == nil {
		t.Fatal("expected an error from the failing job")
	}
	if ranSecond {
		t.Error("expected the second job not to run after the first failed")
	}
}

func TestRunWeeklyJobs_ContinuesOnFailure(t *testing.T) {
	cal := testCalendar(t)
	s := New(cal, testLogger(), time.Now())

	var ranSecond bool
	s.RegisterJob(Job{
		Name: "first",
		Type: JobTypeWeekly,
		RunFunc: func(ctx context.Context) error {
			return errors.New("boom")
		},
	})
	s.RegisterJob(Job{
		Name: "second",
		Type: JobTypeWeekly,
		RunFunc: func(ctx context.Context) error {
			ranSecond = true
			return nil
		},
	})

	if err := s.RunWeeklyJobs(context.Background()); err != nil {
		t.Fatalf("expected weekly jobs to tolerate failures, got %v", err)
	}
	if !ranSecond {
		t.Error("expected the second weekly job to run despite the first failing")
	}
}
