package attendance

import (
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/timeutil"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusActive     Status = "active"
	StatusOnBreak    Status = "on_break"
	StatusIncomplete Status = "incomplete"
	StatusPresent    Status = "present"
	StatusAbsent     Status = "absent"
	StatusHoliday    Status = "holiday"
	StatusWeekend    Status = "weekend"
)

var StatusValues = []string{
	string(StatusNotStarted),
	string(StatusActive),
	string(StatusOnBreak),
	string(StatusIncomplete),
	string(StatusPresent),
	string(StatusAbsent),
	string(StatusHoliday),
	string(StatusWeekend),
}

// IsScheduledOff reports whether the status is assigned by the scheduler rather
// than reached through clock commands.
func (s Status) IsScheduledOff() bool {
	return s == StatusAbsent || s == StatusHoliday || s == StatusWeekend
}

// Shift is the wall-clock window an employee is expected to work. StartTime and
// EndTime are "HH:MM" strings without a date; EndTime before StartTime means
// the shift ends on the following day.
type Shift struct {
	ID           string
	CompanyID    string
	Name         string
	StartTime    string
	EndTime      string
	GraceMinutes int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsOvernight reports whether the shift crosses midnight. A shift whose times
// do not parse is never overnight.
func (s Shift) IsOvernight() bool {
	var anchor time.Time
	start, ok := timeutil.ParseWallClock(s.StartTime, anchor)
	if !ok {
		return false
	}
	end, ok := timeutil.ParseWallClock(s.EndTime, anchor)
	if !ok {
		return false
	}
	return end.Before(start)
}

type BreakInterval struct {
	ID    string
	Start time.Time
	End   *time.Time
}

// IsOpen reports whether the break is still running.
func (b BreakInterval) IsOpen() bool {
	return b.End == nil
}

// Session is one employee's attendance record for one calendar day.
type Session struct {
	ID           string
	CompanyID    string
	EmployeeID   string
	EmployeeName string
	Department   string
	Location     string
	Date         time.Time
	ClockIn      *time.Time
	ClockOut     *time.Time
	Breaks       []BreakInterval
	Status       Status
	ShiftID      *string
	Shift        *Shift
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OpenBreak returns the index of the most recent open break, or -1.
func (s Session) OpenBreak() int {
	for i := len(s.Breaks) - 1; i >= 0; i-- {
		if s.Breaks[i].IsOpen() {
			return i
		}
	}
	return -1
}

// IsOpen reports whether the employee clocked in and has not clocked out.
func (s Session) IsOpen() bool {
	return s.ClockIn != nil && s.ClockOut == nil
}

// Clone returns a deep copy so that transitions never mutate a shared snapshot.
func (s Session) Clone() Session {
	c := s
	if s.ClockIn != nil {
		v := *s.ClockIn
		c.ClockIn = &v
	}
	if s.ClockOut != nil {
		v := *s.ClockOut
		c.ClockOut = &v
	}
	if s.Breaks != nil {
		c.Breaks = make([]BreakInterval, len(s.Breaks))
		for i, b := range s.Breaks {
			c.Breaks[i] = b
			if b.End != nil {
				v := *b.End
				c.Breaks[i].End = &v
			}
		}
	}
	return c
}

// DerivedAnnotation holds the values derived from a session, its shift and an
// evaluation instant. It is recomputed on every read and never stored.
type DerivedAnnotation struct {
	IsLate               bool
	LateMinutes          int
	IsInOvertime         bool
	OvertimeMinutes      int
	FinalOvertimeMinutes int
	WorkedMinutes        int
	BreakMinutes         int
	ExpectedWorkHours    float64
	DataInconsistent     bool
	Issues               []Issue
}

// AnnotatedSession pairs a session with its derived state. Status is the
// classified status at the evaluation instant, which may differ from the stored
// one (for example a stale open session reads as incomplete).
type AnnotatedSession struct {
	Session    Session
	Status     Status
	Annotation DerivedAnnotation
}

// LiveFilter narrows the set of sessions considered live. Empty Department or
// Location means "all".
type LiveFilter struct {
	CompanyID  string
	Department string
	Location   string
}

// Key identifies the view for the filter.
func (f LiveFilter) Key() string {
	return f.CompanyID + "|" + f.Department + "|" + f.Location
}

// LiveSnapshot is what the store returns for a live query. EvaluationInstant is
// the store's own clock and is used for every derived calculation.
type LiveSnapshot struct {
	Sessions          []Session
	EvaluationInstant time.Time
}

// Employee is the roster entry a session belongs to. Department and Location
// are the live-view filter dimensions.
type Employee struct {
	ID         string
	CompanyID  string
	FullName   string
	Department string
	Location   string
	ShiftID    *string
}
