package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// PlaceholderShort is shown for a missing clock time on summary cards.
	PlaceholderShort = "--"
	// PlaceholderClock is shown for a missing clock time in tables.
	PlaceholderClock = "--:--"

	DateLayout = "2006-01-02"
)

// ParseWallClock interprets "HH:MM" (or "HH:MM:SS", as returned by TIME columns)
// as that wall-clock time on anchor's calendar day, in anchor's location.
// It reports false for malformed input instead of returning an error; callers
// skip the calculation in that case.
func ParseWallClock(value string, anchor time.Time) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return time.Time{}, false
	}

	hour, ok := parseTwoDigits(parts[0], 23)
	if !ok {
		return time.Time{}, false
	}
	minute, ok := parseTwoDigits(parts[1], 59)
	if !ok {
		return time.Time{}, false
	}
	second := 0
	if len(parts) == 3 {
		second, ok = parseTwoDigits(parts[2], 59)
		if !ok {
			return time.Time{}, false
		}
	}

	return time.Date(anchor.Year(), anchor.Month(), anchor.Day(), hour, minute, second, 0, anchor.Location()), true
}

func parseTwoDigits(s string, max int) (int, bool) {
	if len(s) < 1 || len(s) > 2 {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > max {
		return 0, false
	}
	// Atoi accepts a leading sign
	if s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	return n, true
}

// IsValidWallClock reports whether value parses as a wall-clock time.
func IsValidWallClock(value string) bool {
	_, ok := ParseWallClock(value, time.Time{})
	return ok
}

// NormalizeWallClock rewrites a wall-clock time as zero-padded "HH:MM", or
// "HH:MM:SS" when it has seconds, so stored times order correctly as text.
func NormalizeWallClock(value string) (string, bool) {
	t, ok := ParseWallClock(value, time.Time{})
	if !ok {
		return "", false
	}
	if t.Second() != 0 {
		return t.Format("15:04:05"), true
	}
	return t.Format("15:04"), true
}

// FormatDuration formats minutes as "Nh Mm", "Nh" or "Mm".
func FormatDuration(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	hours := minutes / 60
	mins := minutes % 60
	switch {
	case hours == 0:
		return fmt.Sprintf("%dm", mins)
	case mins == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
}

// FormatClockTime formats t as a 12-hour "HH:MM AM" string. A nil or zero time
// yields placeholder.
func FormatClockTime(t *time.Time, placeholder string) string {
	if t == nil || t.IsZero() {
		return placeholder
	}
	return t.Format("03:04 PM")
}

// FloorMinutes truncates d to whole minutes. Negative durations floor towards
// negative infinity so that callers can clamp consistently.
func FloorMinutes(d time.Duration) int {
	m := d / time.Minute
	if d < 0 && d%time.Minute != 0 {
		m--
	}
	return int(m)
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day, each read in
// its own location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DayBefore reports whether a's calendar day is strictly before b's.
func DayBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
