package attendance

import "errors"

// Attendance domain errors
var (
	// Transition errors
	ErrAlreadyClockedIn      = errors.New("employee has already clocked in today")
	ErrNotClockedIn          = errors.New("employee has not clocked in yet")
	ErrAlreadyClockedOut     = errors.New("employee has already clocked out")
	ErrBreakAlreadyActive    = errors.New("a break is already active")
	ErrNoActiveBreak         = errors.New("no active break to end")
	ErrClockOutBeforeClockIn = errors.New("clock-out time is before clock-in time")
	ErrBreakBeforeClockIn    = errors.New("break time is before clock-in time")
	ErrBreakEndBeforeStart   = errors.New("break end is before break start")
	ErrBreakOverlap          = errors.New("break overlaps a previous break")
	ErrSessionClosed         = errors.New("session is not open for changes")

	// State errors
	ErrInconsistentSession = errors.New("attendance session data is inconsistent")
	ErrMalformedTime       = errors.New("malformed wall-clock time")

	// General errors
	ErrSessionNotFound  = errors.New("attendance session not found")
	ErrShiftNotFound    = errors.New("shift not found")
	ErrEmployeeNotFound = errors.New("employee not found")
)

// IsTransitionError reports whether err rejects a state change rather than
// signalling a storage failure.
func IsTransitionError(err error) bool {
	for _, target := range []error{
		ErrAlreadyClockedIn,
		ErrNotClockedIn,
		ErrAlreadyClockedOut,
		ErrBreakAlreadyActive,
		ErrNoActiveBreak,
		ErrClockOutBeforeClockIn,
		ErrBreakBeforeClockIn,
		ErrBreakEndBeforeStart,
		ErrBreakOverlap,
		ErrSessionClosed,
		ErrInconsistentSession,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
