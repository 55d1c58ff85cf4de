package live

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	attendancesvc "github.com/cmlabs-hris/hris-live-attendance/internal/service/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dayShift = &attendance.Shift{ID: "day", StartTime: "09:00", EndTime: "18:00"}
	today    = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	noon     = at(12, 0)
)

func at(hour, minute int) time.Time {
	return today.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func ptr(t time.Time) *time.Time { return &t }

// scenarioSnapshot is a morning of one team: two working (one late), one on
// break, one left open yesterday and one already gone home.
func scenarioSnapshot() attendance.LiveSnapshot {
	yesterday := today.AddDate(0, 0, -1)
	return attendance.LiveSnapshot{
		EvaluationInstant: noon,
		Sessions: []attendance.Session{
			{ID: "s1", EmployeeName: "Ana", Date: today, ClockIn: ptr(at(8, 55)), Status: attendance.StatusActive, Shift: dayShift},
			{ID: "s2", EmployeeName: "Budi", Date: today, ClockIn: ptr(at(9, 17)), Status: attendance.StatusActive, Shift: dayShift},
			{
				ID: "s3", EmployeeName: "Citra", Date: today, ClockIn: ptr(at(8, 58)), Status: attendance.StatusOnBreak, Shift: dayShift,
				Breaks: []attendance.BreakInterval{{Start: at(11, 45)}},
			},
			{ID: "s4", EmployeeName: "Dewi", Date: yesterday, ClockIn: ptr(yesterday.Add(9 * time.Hour)), Status: attendance.StatusActive, Shift: dayShift},
			{ID: "s5", EmployeeName: "Eka", Date: today, ClockIn: ptr(at(8, 50)), ClockOut: ptr(at(11, 30)), Status: attendance.StatusPresent, Shift: dayShift},
		},
	}
}

func annotateAll(snapshot attendance.LiveSnapshot) []attendance.AnnotatedSession {
	calc := attendancesvc.NewCalculator(time.UTC)
	out := make([]attendance.AnnotatedSession, 0, len(snapshot.Sessions))
	for _, s := range snapshot.Sessions {
		out = append(out, calc.Annotate(s, snapshot.EvaluationInstant))
	}
	return out
}

func TestSummarize_Scenario(t *testing.T) {
	got := Summarize(annotateAll(scenarioSnapshot()), noon)

	assert.Equal(t, live.LiveSummary{
		TotalActive:       5,
		Working:           2,
		OnBreak:           1,
		Late:              1,
		Overtime:          0,
		Incomplete:        1,
		EvaluationInstant: noon,
	}, got)
}

func TestSummarize_ExcludesInconsistentSessions(t *testing.T) {
	snapshot := scenarioSnapshot()
	snapshot.Sessions = append(snapshot.Sessions, attendance.Session{
		ID: "bad", Date: today, ClockIn: ptr(at(10, 0)), ClockOut: ptr(at(9, 0)), Status: attendance.StatusPresent, Shift: dayShift,
	})

	got := Summarize(annotateAll(snapshot), noon)

	assert.Equal(t, 5, got.TotalActive)
	assert.Equal(t, 1, got.Inconsistent)
	assert.Equal(t, 2, got.Working)
}

func TestSummarize_Empty(t *testing.T) {
	got := Summarize(nil, noon)
	assert.Equal(t, live.LiveSummary{EvaluationInstant: noon}, got)
}

func TestSummarize_OnBreakIsNeverWorking(t *testing.T) {
	sessions := make([]attendance.AnnotatedSession, 10)
	for i := range sessions {
		sessions[i] = attendance.AnnotatedSession{Status: attendance.StatusOnBreak}
	}

	got := Summarize(sessions, noon)
	assert.Equal(t, 0, got.Working)
	assert.Equal(t, 10, got.OnBreak)
}

func TestSummarize_OrderDoesNotMatter(t *testing.T) {
	sessions := annotateAll(scenarioSnapshot())
	want := Summarize(sessions, noon)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]attendance.AnnotatedSession(nil), sessions...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.Equal(t, want, Summarize(shuffled, noon))
	}
}

func randomSessions(n int, seed int64) []attendance.AnnotatedSession {
	rng := rand.New(rand.NewSource(seed))
	statuses := []attendance.Status{
		attendance.StatusActive, attendance.StatusOnBreak, attendance.StatusIncomplete, attendance.StatusPresent,
	}
	out := make([]attendance.AnnotatedSession, n)
	for i := range out {
		out[i] = attendance.AnnotatedSession{
			Session: attendance.Session{ID: fmt.Sprintf("s%d", i)},
			Status:  statuses[rng.Intn(len(statuses))],
			Annotation: attendance.DerivedAnnotation{
				IsLate:           rng.Intn(3) == 0,
				IsInOvertime:     rng.Intn(4) == 0,
				DataInconsistent: rng.Intn(10) == 0,
			},
		}
	}
	return out
}

func TestSummarizeParallel_MatchesSequential(t *testing.T) {
	sessions := randomSessions(1000, 42)
	want := Summarize(sessions, noon)

	for _, partitions := range []int{0, 1, 3, 8, 100} {
		got, err := SummarizeParallel(context.Background(), sessions, noon, partitions)
		require.NoError(t, err)
		assert.Equal(t, want, got, "partitions=%d", partitions)
	}
}

func TestSummarizeParallel_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SummarizeParallel(ctx, randomSessions(500, 1), noon, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLiveSummary_Merge(t *testing.T) {
	a := live.LiveSummary{TotalActive: 2, Working: 1, Late: 1, EvaluationInstant: at(11, 0)}
	b := live.LiveSummary{TotalActive: 3, OnBreak: 2, Overtime: 1, Inconsistent: 1, EvaluationInstant: noon}

	got := a.Merge(b)
	assert.Equal(t, live.LiveSummary{
		TotalActive: 5, Working: 1, OnBreak: 2, Late: 1, Overtime: 1, Inconsistent: 1, EvaluationInstant: noon,
	}, got)
	assert.Equal(t, got, b.Merge(a))
}

func TestBuildView(t *testing.T) {
	filter := attendance.LiveFilter{CompanyID: "company-1"}
	view, err := BuildView(context.Background(), attendancesvc.NewCalculator(time.UTC), filter, scenarioSnapshot(), DefaultPartitions)
	require.NoError(t, err)

	assert.Equal(t, filter, view.Filter)
	assert.Equal(t, Summarize(annotateAll(scenarioSnapshot()), noon), view.Summary)
	require.Len(t, view.Sessions, 5)
	assert.Equal(t, "Ana", view.Sessions[0].Session.EmployeeName)
	assert.Equal(t, attendance.StatusIncomplete, view.Sessions[3].Status)
	assert.Equal(t, attendance.StatusOnBreak, view.Sessions[2].Status)
}

func TestPartitionBounds(t *testing.T) {
	tests := []struct {
		n, partitions int
		want          [][2]int
	}{
		{0, 4, nil},
		{10, 4, [][2]int{{0, 10}}},
		{130, 4, [][2]int{{0, 44}, {44, 88}, {88, 130}}},
		{256, 4, [][2]int{{0, 64}, {64, 128}, {128, 192}, {192, 256}}},
		{256, 0, [][2]int{{0, 256}}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, partitionBounds(tt.n, tt.partitions), "n=%d partitions=%d", tt.n, tt.partitions)
	}
}
