package live

import (
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
)

// LiveSummary counts the consistent sessions of one live view by state.
// Inconsistent sessions are excluded from every other counter.
type LiveSummary struct {
	TotalActive       int
	Working           int
	OnBreak           int
	Late              int
	Overtime          int
	Incomplete        int
	Inconsistent      int
	EvaluationInstant time.Time
}

// Merge adds the counters of two partial summaries. The later evaluation
// instant wins.
func (s LiveSummary) Merge(other LiveSummary) LiveSummary {
	merged := LiveSummary{
		TotalActive:       s.TotalActive + other.TotalActive,
		Working:           s.Working + other.Working,
		OnBreak:           s.OnBreak + other.OnBreak,
		Late:              s.Late + other.Late,
		Overtime:          s.Overtime + other.Overtime,
		Incomplete:        s.Incomplete + other.Incomplete,
		Inconsistent:      s.Inconsistent + other.Inconsistent,
		EvaluationInstant: s.EvaluationInstant,
	}
	if other.EvaluationInstant.After(merged.EvaluationInstant) {
		merged.EvaluationInstant = other.EvaluationInstant
	}
	return merged
}

// LiveView is one successfully loaded snapshot with its derived data.
type LiveView struct {
	Filter   attendance.LiveFilter
	Summary  LiveSummary
	Sessions []attendance.AnnotatedSession
}

// LiveViewState is the controller's observable state. Data keeps the last
// successful view while later refreshes fail.
type LiveViewState struct {
	Data        *LiveView
	Loading     bool
	Online      bool
	LastUpdated time.Time
	LastError   error
	Version     uint64
}

// IsConnectedOrFresh reports whether the view can be trusted at now: the
// source is reachable, the last refresh succeeded and it is not older than
// staleAfter.
func (s LiveViewState) IsConnectedOrFresh(now time.Time, staleAfter time.Duration) bool {
	if !s.Online || s.LastError != nil || s.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(s.LastUpdated) <= staleAfter
}

// Notifier receives user-facing messages from interactive refreshes.
type Notifier interface {
	Info(message string)
	Error(err error)
}
