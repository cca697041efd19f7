package util

import (
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

// ParseTime tries YYYY-MM-DD, RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsWeekday reports whether t falls Monday to Friday.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PrevTradingDay returns the latest weekday on or before t.
func PrevTradingDay(t time.Time) time.Time {
	d := Day(t)
	for !IsWeekday(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// TradingDaysBetween counts weekdays strictly after from and on or before to.
// Exchange holidays are not known here; callers prefer counting stored candles.
func TradingDaysBetween(from, to time.Time) int {
	from, to = Day(from), Day(to)
	if !to.After(from) {
		return 0
	}
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsWeekday(d) {
			n++
		}
	}
	return n
}
