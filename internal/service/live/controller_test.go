package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/clock"
	attendancesvc "github.com/cmlabs-hris/hris-live-attendance/internal/service/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	calls    int
	snapshot attendance.LiveSnapshot
	err      error
	gate     chan struct{}
	entered  chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{snapshot: scenarioSnapshot()}
}

func (s *fakeSource) FetchLiveSessions(ctx context.Context, filter attendance.LiveFilter) (attendance.LiveSnapshot, error) {
	s.mu.Lock()
	s.calls++
	gate, entered := s.gate, s.entered
	snapshot, err := s.snapshot, s.err
	s.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return attendance.LiveSnapshot{}, ctx.Err()
		}
	}
	return snapshot, err
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type recordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []error
}

func (n *recordingNotifier) Info(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, message)
}

func (n *recordingNotifier) Error(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, err)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.infos), len(n.errors)
}

type controllerFixture struct {
	ctrl     *Controller
	source   *fakeSource
	clock    *clock.FakeClock
	notifier *recordingNotifier

	mu     sync.Mutex
	states []live.LiveViewState
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	f := &controllerFixture{
		source:   newFakeSource(),
		clock:    clock.Fake(time.Date(2026, 3, 16, 12, 0, 5, 0, time.UTC)),
		notifier: &recordingNotifier{},
	}
	f.ctrl = NewController(
		f.source,
		attendancesvc.NewCalculator(time.UTC),
		attendance.LiveFilter{CompanyID: "company-1"},
		ControllerConfig{},
		WithClock(f.clock),
		WithNotifier(f.notifier),
		WithOnChange(func(s live.LiveViewState) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.states = append(f.states, s)
		}),
	)
	t.Cleanup(f.ctrl.Stop)
	return f
}

func (f *controllerFixture) published() []live.LiveViewState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]live.LiveViewState(nil), f.states...)
}

func TestController_InteractiveRefresh(t *testing.T) {
	f := newControllerFixture(t)

	require.NoError(t, f.ctrl.Refresh(context.Background(), false))

	states := f.published()
	require.Len(t, states, 2)
	assert.True(t, states[0].Loading)
	assert.False(t, states[1].Loading)

	state := f.ctrl.State()
	require.NotNil(t, state.Data)
	assert.Equal(t, 5, state.Data.Summary.TotalActive)
	assert.Equal(t, noon, state.Data.Summary.EvaluationInstant)
	assert.Equal(t, f.clock.Now(), state.LastUpdated)
	assert.Equal(t, uint64(2), state.Version)
	assert.NoError(t, state.LastError)
	assert.True(t, f.ctrl.IsConnectedOrFresh())

	infos, errs := f.notifier.counts()
	assert.Equal(t, 1, infos)
	assert.Equal(t, 0, errs)
}

func TestController_SilentRefresh(t *testing.T) {
	f := newControllerFixture(t)

	require.NoError(t, f.ctrl.Refresh(context.Background(), true))

	states := f.published()
	require.Len(t, states, 1)
	assert.False(t, states[0].Loading)

	infos, errs := f.notifier.counts()
	assert.Equal(t, 0, infos)
	assert.Equal(t, 0, errs)
}

func TestController_FailedFetchKeepsPreviousData(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.ctrl.Refresh(context.Background(), true))
	previous := f.ctrl.State().Data

	boom := errors.New("connection reset")
	f.source.SetErr(boom)

	err := f.ctrl.Refresh(context.Background(), true)
	assert.ErrorIs(t, err, live.ErrFetchFailed)
	assert.ErrorIs(t, err, boom)

	state := f.ctrl.State()
	assert.Same(t, previous, state.Data)
	assert.ErrorIs(t, state.LastError, live.ErrFetchFailed)
	assert.False(t, f.ctrl.IsConnectedOrFresh())
	_, errs := f.notifier.counts()
	assert.Equal(t, 0, errs, "silent refresh must not notify")

	err = f.ctrl.Refresh(context.Background(), false)
	assert.ErrorIs(t, err, live.ErrFetchFailed)
	_, errs = f.notifier.counts()
	assert.Equal(t, 1, errs)
	assert.False(t, f.ctrl.State().Loading)

	f.source.SetErr(nil)
	require.NoError(t, f.ctrl.Refresh(context.Background(), true))
	assert.NoError(t, f.ctrl.State().LastError)
}

func TestController_OfflineShortCircuits(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.SetOnline(false)

	state := f.ctrl.State()
	assert.False(t, state.Online)
	assert.ErrorIs(t, state.LastError, live.ErrOffline)
	_, errs := f.notifier.counts()
	assert.Equal(t, 1, errs)

	err := f.ctrl.Refresh(context.Background(), true)
	assert.ErrorIs(t, err, live.ErrOffline)
	assert.Equal(t, 0, f.source.Calls())
	assert.False(t, f.ctrl.IsConnectedOrFresh())
}

func TestController_OnlineDebounce(t *testing.T) {
	f := newControllerFixture(t)
	f.ctrl.SetOnline(false)
	f.ctrl.SetOnline(true)

	assert.Equal(t, 0, f.source.Calls())
	f.clock.Advance(DefaultOnlineDebounce - time.Millisecond)
	assert.Equal(t, 0, f.source.Calls())
	f.clock.Advance(time.Millisecond)
	assert.Equal(t, 1, f.source.Calls())

	state := f.ctrl.State()
	assert.True(t, state.Online)
	assert.NoError(t, state.LastError)
}

func TestController_HiddenTwoMinutesRefreshesOnceWhenShown(t *testing.T) {
	f := newControllerFixture(t)
	f.ctrl.Start()
	require.Equal(t, 1, f.clock.PendingTimers())

	f.ctrl.SetVisible(false)
	assert.Equal(t, 0, f.clock.PendingTimers())

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 0, f.source.Calls())

	f.ctrl.SetVisible(true)
	f.clock.Advance(DefaultVisibleDebounce / 2)
	assert.Equal(t, 0, f.source.Calls())

	f.clock.Advance(DefaultVisibleDebounce / 2)
	assert.Equal(t, 1, f.source.Calls())

	// Only the ticker is left; no catch-up refreshes are queued.
	assert.Equal(t, 1, f.clock.PendingTimers())
	f.clock.Advance(10 * time.Second)
	assert.Equal(t, 1, f.source.Calls())
}

func TestController_VisibilityFlappingReplacesPendingRefresh(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.SetVisible(false)
	f.ctrl.SetVisible(true)
	f.clock.Advance(500 * time.Millisecond)
	f.ctrl.SetVisible(false)
	f.ctrl.SetVisible(true)
	f.ctrl.SetVisible(false)
	f.ctrl.SetVisible(true)

	f.clock.Advance(time.Second)
	assert.Equal(t, 1, f.source.Calls())

	f.clock.Advance(time.Second)
	assert.Equal(t, 1, f.source.Calls())
}

func TestController_PollsWhileVisibleAndOnline(t *testing.T) {
	f := newControllerFixture(t)
	f.ctrl.Start()

	f.clock.Advance(DefaultInterval)
	require.Eventually(t, func() bool { return f.source.Calls() == 1 }, time.Second, 5*time.Millisecond)

	f.clock.Advance(DefaultInterval)
	require.Eventually(t, func() bool { return f.source.Calls() == 2 }, time.Second, 5*time.Millisecond)

	f.ctrl.SetOnline(false)
	f.clock.Advance(5 * DefaultInterval)
	assert.Never(t, func() bool { return f.source.Calls() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestController_SingleFlight(t *testing.T) {
	f := newControllerFixture(t)
	f.source.gate = make(chan struct{})
	f.source.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Refresh(context.Background(), false) }()
	<-f.source.entered

	assert.True(t, f.ctrl.State().Loading)
	err := f.ctrl.Refresh(context.Background(), true)
	assert.ErrorIs(t, err, live.ErrRefreshInProgress)
	assert.Equal(t, 1, f.source.Calls())

	close(f.source.gate)
	require.NoError(t, <-done)
	assert.False(t, f.ctrl.State().Loading)
}

func TestController_Reconnect(t *testing.T) {
	f := newControllerFixture(t)
	f.ctrl.SetOnline(false)

	require.NoError(t, f.ctrl.Reconnect(context.Background()))
	assert.Equal(t, 1, f.source.Calls())
	assert.True(t, f.ctrl.State().Online)
	assert.True(t, f.ctrl.IsConnectedOrFresh())

	infos, _ := f.notifier.counts()
	assert.Equal(t, 1, infos)

	f.clock.Advance(DefaultOnlineDebounce * 2)
	assert.Equal(t, 1, f.source.Calls())
}

func TestController_StaleAfter(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.ctrl.Refresh(context.Background(), true))
	assert.True(t, f.ctrl.IsConnectedOrFresh())

	f.clock.Advance(DefaultStaleAfter)
	assert.True(t, f.ctrl.IsConnectedOrFresh())

	f.clock.Advance(time.Second)
	assert.False(t, f.ctrl.IsConnectedOrFresh())
}

func TestController_Stop(t *testing.T) {
	f := newControllerFixture(t)
	f.ctrl.Start()
	f.ctrl.SetVisible(false)
	f.ctrl.SetVisible(true)
	require.Equal(t, 2, f.clock.PendingTimers())

	f.ctrl.Stop()
	assert.Equal(t, 0, f.clock.PendingTimers())

	f.clock.Advance(5 * time.Minute)
	assert.Equal(t, 0, f.source.Calls())
	assert.Empty(t, f.published())

	assert.ErrorIs(t, f.ctrl.Refresh(context.Background(), false), live.ErrControllerStopped)
	assert.ErrorIs(t, f.ctrl.Reconnect(context.Background()), live.ErrControllerStopped)
	f.ctrl.SetOnline(false)
	assert.True(t, f.ctrl.State().Online)
}

func TestController_StopCancelsRunningFetch(t *testing.T) {
	f := newControllerFixture(t)
	f.source.gate = make(chan struct{})
	f.source.entered = make(chan struct{}, 1)
	f.ctrl.Start()

	f.clock.Advance(DefaultInterval)
	<-f.source.entered

	f.ctrl.Stop()
	assert.Equal(t, live.LiveViewState{Online: true}, f.ctrl.State())
}

func TestLiveViewState_IsConnectedOrFresh(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state live.LiveViewState
		want  bool
	}{
		{"never loaded", live.LiveViewState{Online: true}, false},
		{"fresh", live.LiveViewState{Online: true, LastUpdated: now.Add(-time.Minute)}, true},
		{"stale", live.LiveViewState{Online: true, LastUpdated: now.Add(-2 * time.Minute)}, false},
		{"offline", live.LiveViewState{LastUpdated: now}, false},
		{"last refresh failed", live.LiveViewState{Online: true, LastUpdated: now, LastError: live.ErrFetchFailed}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.IsConnectedOrFresh(now, DefaultStaleAfter))
		})
	}
}
