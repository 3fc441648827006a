package timex

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by reminder records.
const DateLayout = "2006-01-02"

var clockLayouts = []string{"3:04 PM", "3:04PM", "15:04", "15:04:05"}

// ParseDate parses a reminder date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}

// ParseClock returns the hour and minute of a "10:00 AM" or "10:00" style time.
func ParseClock(s string) (int, int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("bad time %q", s)
}

// DueAt combines a reminder date and optional time of day. An empty time
// means start of day.
func DueAt(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	if strings.TrimSpace(clock) == "" {
		return d, nil
	}
	h, m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc), nil
}

// AddMonthsClamped adds n months to t, clamping the day to the last day of
// the target month (Jan 31 + 1 month = Feb 28/29).
func AddMonthsClamped(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
