package market

import (
	"testing"
	"time"
)

var newYork *time.Location

func init() {
	var err error
	newYork, err = time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
}

func makeTestCalendar() *Calendar {
	return NewCalendarFromHolidays(map[string]string{
		"2026-01-01": "New Year's Day",
		"2026-07-04": "Independence Day",
		"2026-11-26": "Thanksgiving",
	}, newYork)
}

func TestCalendar_WeekdayIsTradingDay(t *testing.T) {
	cal := makeTestCalendar()
	// Monday, Feb 2, 2026.
	monday := time.Date(2026, 2, 2, 10, 0, 0, 0, newYork)
	if !cal.IsTradingDay(monday) {
		t.Error("expected Monday to be a trading day")
	}
}

func TestCalendar_WeekendIsNotTradingDay(t *testing.T) {
	cal := makeTestCalendar()
	saturday := time.Date(2026, 2, 7, 10, 0, 0, 0, newYork)
	sunday := time.Date(2026, 2, 8, 10, 0, 0, 0, newYork)

	if cal.IsTradingDay(saturday) {
		t.Error("expected Saturday to not be a trading day")
	}
	if cal.IsTradingDay(sunday) {
		t.Error("expected Sunday to not be a trading day")
	}
}

func TestCalendar_HolidayIsNotTradingDay(t *testing.T) {
	cal := makeTestCalendar()
	thanksgiving := time.Date(2026, 11, 26, 10, 0, 0, 0, newYork)

	if cal.IsTradingDay(thanksgiving) {
		t.Error("expected Thanksgiving to not be a trading day")
	}
	if reason := cal.HolidayReason(thanksgiving); reason != "Thanksgiving" {
		t.Errorf("expected 'Thanksgiving', got %q", reason)
	}
}

func TestCalendar_NextTradingDay(t *testing.T) {
	cal := makeTestCalendar()

	// Friday → next trading day is Monday.
	friday := time.Date(2026, 2, 6, 0, 0, 0, 0, newYork)
	next := cal.NextTradingDay(friday)

	if next.Weekday() != time.Monday {
		t.Errorf("expected Monday after Friday, got %s", next.Weekday())
	}
}

func TestCalendar_PreviousTradingDay(t *testing.T) {
	cal := makeTestCalendar()

	// Monday → previous trading day is Friday.
	monday := time.Date(2026, 2, 9, 0, 0, 0, 0, newYork)
	prev := cal.PreviousTradingDay(monday)

	if prev.Weekday() != time.Friday {
		t.Errorf("expected Friday before Monday, got %s", prev.Weekday())
	}
}

func TestCalendar_CrossedDayBoundary(t *testing.T) {
	cal := makeTestCalendar()

	last := time.Date(2026, 2, 2, 23, 50, 0, 0, newYork)
	sameDay := time.Date(2026, 2, 2, 23, 55, 0, 0, newYork)
	nextDay := time.Date(2026, 2, 3, 0, 5, 0, 0, newYork)

	if cal.CrossedDayBoundary(last, sameDay) {
		t.Error("expected no boundary crossing within the same day")
	}
	if !cal.CrossedDayBoundary(last, nextDay) {
		t.Error("expected a boundary crossing into the next day")
	}
}
