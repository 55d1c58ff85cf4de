package attendance

import (
	"sort"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/timeutil"
)

// Issue names one way a stored session contradicts the session invariants.
type Issue string

const (
	IssueClockOutBeforeClockIn  Issue = "clock_out_before_clock_in"
	IssueClockOutWithoutClockIn Issue = "clock_out_without_clock_in"
	IssueBreakWithoutClockIn    Issue = "break_without_clock_in"
	IssueBreakEndBeforeStart    Issue = "break_end_before_start"
	IssueMultipleOpenBreaks     Issue = "multiple_open_breaks"
	IssueOverlappingBreaks      Issue = "overlapping_breaks"
)

// ClockIn starts the session at the given instant.
func ClockIn(s Session, at time.Time) (Session, error) {
	if s.ClockIn != nil {
		return s, ErrAlreadyClockedIn
	}
	if s.Status.IsScheduledOff() || s.Status == StatusIncomplete || s.Status == StatusPresent {
		return s, ErrSessionClosed
	}

	next := s.Clone()
	next.ClockIn = &at
	next.Status = StatusActive
	return next, nil
}

// StartBreak opens a new break. The employee must be working and not already
// on a break.
func StartBreak(s Session, at time.Time) (Session, error) {
	if err := requireOpen(s); err != nil {
		return s, err
	}
	if s.OpenBreak() >= 0 {
		return s, ErrBreakAlreadyActive
	}
	if at.Before(*s.ClockIn) {
		return s, ErrBreakBeforeClockIn
	}
	for _, b := range s.Breaks {
		if b.End != nil && at.Before(*b.End) {
			return s, ErrBreakOverlap
		}
	}

	next := s.Clone()
	next.Breaks = append(next.Breaks, BreakInterval{Start: at})
	next.Status = StatusOnBreak
	return next, nil
}

// EndBreak closes the most recent open break.
func EndBreak(s Session, at time.Time) (Session, error) {
	if err := requireOpen(s); err != nil {
		return s, err
	}
	idx := s.OpenBreak()
	if idx < 0 {
		return s, ErrNoActiveBreak
	}
	if at.Before(s.Breaks[idx].Start) {
		return s, ErrBreakEndBeforeStart
	}

	next := s.Clone()
	next.Breaks[idx].End = &at
	next.Status = StatusActive
	return next, nil
}

// ClockOut ends the session. An open break is closed at the same instant.
func ClockOut(s Session, at time.Time) (Session, error) {
	if err := requireOpen(s); err != nil {
		return s, err
	}
	if at.Before(*s.ClockIn) {
		return s, ErrClockOutBeforeClockIn
	}

	next := s.Clone()
	if idx := next.OpenBreak(); idx >= 0 {
		if at.Before(next.Breaks[idx].Start) {
			return s, ErrBreakEndBeforeStart
		}
		next.Breaks[idx].End = &at
	}
	next.ClockOut = &at
	next.Status = StatusPresent
	return next, nil
}

func requireOpen(s Session) error {
	switch {
	case s.ClockIn == nil:
		return ErrNotClockedIn
	case s.ClockOut != nil:
		return ErrAlreadyClockedOut
	case s.Status == StatusIncomplete:
		return ErrSessionClosed
	}
	return nil
}

// CheckConsistency lists every invariant the session violates. A nil result
// means the session is safe to aggregate.
func CheckConsistency(s Session) []Issue {
	var issues []Issue

	if s.ClockOut != nil {
		if s.ClockIn == nil {
			issues = append(issues, IssueClockOutWithoutClockIn)
		} else if s.ClockOut.Before(*s.ClockIn) {
			issues = append(issues, IssueClockOutBeforeClockIn)
		}
	}
	if len(s.Breaks) == 0 {
		return issues
	}
	if s.ClockIn == nil {
		issues = append(issues, IssueBreakWithoutClockIn)
	}

	open := 0
	inverted := false
	for _, b := range s.Breaks {
		if b.End == nil {
			open++
			continue
		}
		if b.End.Before(b.Start) {
			inverted = true
		}
	}
	if inverted {
		issues = append(issues, IssueBreakEndBeforeStart)
	}
	if open > 1 {
		issues = append(issues, IssueMultipleOpenBreaks)
	}
	if breaksOverlap(s.Breaks) {
		issues = append(issues, IssueOverlappingBreaks)
	}

	return issues
}

func breaksOverlap(breaks []BreakInterval) bool {
	ordered := make([]BreakInterval, len(breaks))
	copy(ordered, breaks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start.Before(ordered[j].Start) })

	for i := 1; i < len(ordered); i++ {
		prev := ordered[i-1]
		// an open break followed by any other break never ended before it
		if prev.End == nil || prev.End.After(ordered[i].Start) {
			return true
		}
	}
	return false
}

// Classify returns the status the session has at eval. Open sessions from an
// earlier working day read as incomplete; pre-seeded absent, holiday and
// weekend rows without a clock-in keep their status. Calendar days are judged
// in loc.
func Classify(s Session, eval time.Time, loc *time.Location) Status {
	if s.ClockIn == nil {
		if s.Status.IsScheduledOff() {
			return s.Status
		}
		return StatusNotStarted
	}
	if s.ClockOut != nil {
		return StatusPresent
	}
	if s.Status == StatusIncomplete {
		return StatusIncomplete
	}

	if timeutil.DayBefore(lastWorkingDay(s, loc), eval.In(loc)) {
		return StatusIncomplete
	}
	if s.OpenBreak() >= 0 {
		return StatusOnBreak
	}
	return StatusActive
}

// lastWorkingDay is the last calendar day on which the session may still be
// legitimately open: its own date, or the following day for overnight shifts.
func lastWorkingDay(s Session, loc *time.Location) time.Time {
	var day time.Time
	if s.Date.IsZero() {
		day = timeutil.StartOfDay(s.ClockIn.In(loc))
	} else {
		day = time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, loc)
	}
	if s.Shift != nil && s.Shift.IsOvernight() {
		day = day.AddDate(0, 0, 1)
	}
	return day
}
