// Package market provides exchange-calendar awareness shared by the
// funded-account daily-reset job (spec §4.6) and the operator scheduler
// (internal/scheduler): knowing whether today is a trading day, and
// when the next one starts, independent of broker-specific session
// hours (which live in internal/paper's own session classification).
//
// Design rules (from spec):
//   - System must know if today is a trading day.
//   - Do not rely only on a weekday check; exchange holidays matter too.
//   - One central Calendar module, not one check per caller.
package market

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Calendar provides exchange holiday and trading-day information for a
// single location. It holds no broker-specific session hours — those
// vary per broker and live in internal/paper's session classification.
type Calendar struct {
	loc      *time.Location
	holidays map[string]string // date (YYYY-MM-DD) -> reason
}

// HolidayEntry represents a single exchange holiday.
type HolidayEntry struct {
	Date   string `json:"date"`   // YYYY-MM-DD
	Reason string `json:"reason"` // e.g., "Thanksgiving", "Independence Day"
}

// NewCalendar creates a Calendar from a JSON holiday file, evaluated in
// loc. The file should contain an array of HolidayEntry objects.
func NewCalendar(holidayFilePath string, loc *time.Location) (*Calendar, error) {
	data, err := os.ReadFile(holidayFilePath)
	if err != nil {
		return nil, fmt.Errorf("market calendar: read holidays file: %w", err)
	}

	var entries []HolidayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("market calendar: parse holidays: %w", err)
	}

	holidays := make(map[string]string, len(entries))
	for _, e := range entries {
		holidays[e.Date] = e.Reason
	}

	return &Calendar{loc: loc, holidays: holidays}, nil
}

// NewCalendarFromHolidays creates a Calendar directly from a holiday
// map, evaluated in loc. Useful for testing and for building a Calendar
// without a holiday file on disk.
func NewCalendarFromHolidays(holidays map[string]string, loc *time.Location) *Calendar {
	return &Calendar{loc: loc, holidays: holidays}
}

// IsTradingDay returns true if the given date is a valid trading day: a
// weekday that is not an exchange holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(c.loc)

	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}

	dateStr := d.Format("2006-01-02")
	if _, isHoliday := c.holidays[dateStr]; isHoliday {
		return false
	}

	return true
}

// HolidayReason returns the reason for a holiday, or empty string if
// date is not a holiday.
func (c *Calendar) HolidayReason(date time.Time) string {
	dateStr := date.In(c.loc).Format("2006-01-02")
	return c.holidays[dateStr]
}

// NextTradingDay returns the next trading day after the given date.
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	candidate := date.In(c.loc).AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// PreviousTradingDay returns the most recent trading day before the
// given date.
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	candidate := date.In(c.loc).AddDate(0, 0, -1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate
}

// CrossedDayBoundary reports whether now falls on a different calendar
// day (in loc) than last, the trigger condition the funded-account
// daily-reset job (spec §4.6) polls for.
func (c *Calendar) CrossedDayBoundary(last, now time.Time) bool {
	return last.In(c.loc).Format("2006-01-02") != now.In(c.loc).Format("2006-01-02")
}
