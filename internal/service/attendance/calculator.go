package attendance

import (
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/timeutil"
)

// DefaultExpectedWorkHours is used when a session has no usable shift.
const DefaultExpectedWorkHours = 8.0

// Calculator derives shift-relative values for sessions. Wall-clock shift
// times are anchored to calendar days in the calculator's location. It never
// reads the current time; every method that depends on "now" takes it as eval.
type Calculator struct {
	loc *time.Location
}

func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Annotate classifies the session at eval and computes its derived fields.
func (c *Calculator) Annotate(s attendance.Session, eval time.Time) attendance.AnnotatedSession {
	status := attendance.Classify(s, eval, c.loc)

	ann := attendance.DerivedAnnotation{
		ExpectedWorkHours: c.ExpectedWorkHours(s.Shift),
	}
	ann.IsLate, ann.LateMinutes = c.Lateness(s)
	ann.WorkedMinutes, ann.BreakMinutes = c.WorkedAndBreakMinutes(s, eval)

	switch status {
	case attendance.StatusActive, attendance.StatusOnBreak:
		ann.IsInOvertime, ann.OvertimeMinutes = c.Overtime(s, eval)
	case attendance.StatusPresent:
		ann.FinalOvertimeMinutes = c.FinalOvertime(s)
	}

	if issues := attendance.CheckConsistency(s); len(issues) > 0 {
		ann.DataInconsistent = true
		ann.Issues = issues
	}

	return attendance.AnnotatedSession{Session: s, Status: status, Annotation: ann}
}

// Lateness reports whether the clock-in came after the shift start plus grace.
// Minutes are counted from the real start. The shift start is anchored to the
// clock-in's calendar day.
func (c *Calculator) Lateness(s attendance.Session) (bool, int) {
	if s.Shift == nil || s.ClockIn == nil {
		return false, 0
	}
	clockIn := s.ClockIn.In(c.loc)

	start, ok := timeutil.ParseWallClock(s.Shift.StartTime, clockIn)
	if !ok {
		return false, 0
	}

	limit := start.Add(time.Duration(max(s.Shift.GraceMinutes, 0)) * time.Minute)
	if !clockIn.After(limit) {
		return false, 0
	}
	return true, timeutil.FloorMinutes(clockIn.Sub(start))
}

// Overtime reports whether an open session has run past the shift end at eval.
// Day shifts end on eval's calendar day; overnight shifts end on the day after
// the session date.
func (c *Calculator) Overtime(s attendance.Session, eval time.Time) (bool, int) {
	if s.Shift == nil || s.ClockIn == nil || s.ClockOut != nil {
		return false, 0
	}
	eval = eval.In(c.loc)

	anchor := eval
	if s.Shift.IsOvernight() {
		anchor = c.sessionDay(s).AddDate(0, 0, 1)
	}
	end, ok := timeutil.ParseWallClock(s.Shift.EndTime, anchor)
	if !ok {
		return false, 0
	}

	if !eval.After(end) {
		return false, 0
	}
	return true, max(0, timeutil.FloorMinutes(eval.Sub(end)))
}

// FinalOvertime is the overtime a closed session accrued, measured at its
// clock-out.
func (c *Calculator) FinalOvertime(s attendance.Session) int {
	if s.Shift == nil || s.ClockIn == nil || s.ClockOut == nil {
		return 0
	}
	clockOut := s.ClockOut.In(c.loc)

	anchor := clockOut
	if s.Shift.IsOvernight() {
		anchor = c.sessionDay(s).AddDate(0, 0, 1)
	}
	end, ok := timeutil.ParseWallClock(s.Shift.EndTime, anchor)
	if !ok {
		return 0
	}
	return max(0, timeutil.FloorMinutes(clockOut.Sub(end)))
}

// ExpectedWorkHours is the shift length in hours, wrapping past midnight for
// overnight shifts.
func (c *Calculator) ExpectedWorkHours(shift *attendance.Shift) float64 {
	if shift == nil {
		return DefaultExpectedWorkHours
	}
	anchor := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	start, ok := timeutil.ParseWallClock(shift.StartTime, anchor)
	if !ok {
		return DefaultExpectedWorkHours
	}
	end, ok := timeutil.ParseWallClock(shift.EndTime, anchor)
	if !ok {
		return DefaultExpectedWorkHours
	}
	if end.Before(start) {
		end = end.Add(24 * time.Hour)
	}
	return end.Sub(start).Hours()
}

// WorkedAndBreakMinutes returns net worked minutes and total break minutes.
// The session ends at clock-out, or at eval while it is still open; an open
// break is cut off at that same end.
func (c *Calculator) WorkedAndBreakMinutes(s attendance.Session, eval time.Time) (int, int) {
	if s.ClockIn == nil {
		return 0, 0
	}
	end := eval
	if s.ClockOut != nil {
		end = *s.ClockOut
	}

	var breaks time.Duration
	for _, b := range s.Breaks {
		breakEnd := end
		if b.End != nil {
			breakEnd = *b.End
		}
		if d := breakEnd.Sub(b.Start); d > 0 {
			breaks += d
		}
	}

	var total time.Duration
	if d := end.Sub(*s.ClockIn); d > 0 {
		total = d
	}

	return max(0, timeutil.FloorMinutes(total-breaks)), timeutil.FloorMinutes(breaks)
}

func (c *Calculator) sessionDay(s attendance.Session) time.Time {
	if s.Date.IsZero() {
		return timeutil.StartOfDay(s.ClockIn.In(c.loc))
	}
	return time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, c.loc)
}
