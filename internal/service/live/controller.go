package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/clock"
)

const (
	DefaultInterval        = 30 * time.Second
	DefaultVisibleDebounce = 1 * time.Second
	DefaultOnlineDebounce  = 2 * time.Second
	DefaultStaleAfter      = 90 * time.Second
)

// SnapshotSource loads the sessions of a live view together with the
// source's own clock.
type SnapshotSource interface {
	FetchLiveSessions(ctx context.Context, filter attendance.LiveFilter) (attendance.LiveSnapshot, error)
}

type ControllerConfig struct {
	Interval        time.Duration
	VisibleDebounce time.Duration
	OnlineDebounce  time.Duration
	StaleAfter      time.Duration
	Partitions      int
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.VisibleDebounce <= 0 {
		c.VisibleDebounce = DefaultVisibleDebounce
	}
	if c.OnlineDebounce <= 0 {
		c.OnlineDebounce = DefaultOnlineDebounce
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.Partitions <= 0 {
		c.Partitions = DefaultPartitions
	}
	return c
}

type ControllerOption func(*Controller)

func WithClock(c clock.Clock) ControllerOption {
	return func(ctrl *Controller) { ctrl.clock = c }
}

func WithNotifier(n live.Notifier) ControllerOption {
	return func(ctrl *Controller) { ctrl.notifier = n }
}

// WithOnChange registers a callback that receives every new state. It runs
// with the controller locked and must not block or call back into it.
func WithOnChange(fn func(live.LiveViewState)) ControllerOption {
	return func(ctrl *Controller) { ctrl.onChange = fn }
}

// Controller keeps one live view refreshed. It polls while the view is
// visible and the source is online, debounces visibility and connectivity
// changes, and never runs two fetches at once.
type Controller struct {
	source    SnapshotSource
	annotator attendance.Annotator
	filter    attendance.LiveFilter
	cfg       ControllerConfig
	clock     clock.Clock
	notifier  live.Notifier
	onChange  func(live.LiveViewState)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        live.LiveViewState
	visible      bool
	started      bool
	stopped      bool
	inFlight     bool
	ticker       *clock.Ticker
	tickerDone   chan struct{}
	visibleTimer *clock.Timer
	onlineTimer  *clock.Timer
}

// NewController creates a controller for one filter. It starts visible and
// online; polling begins with Start.
func NewController(source SnapshotSource, annotator attendance.Annotator, filter attendance.LiveFilter, cfg ControllerConfig, opts ...ControllerOption) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		source:    source,
		annotator: annotator,
		filter:    filter,
		cfg:       cfg.withDefaults(),
		clock:     clock.Real(),
		notifier:  noopNotifier{},
		ctx:       ctx,
		cancel:    cancel,
		visible:   true,
		state:     live.LiveViewState{Online: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Filter() attendance.LiveFilter { return c.filter }

func (c *Controller) Config() ControllerConfig { return c.cfg }

// State returns a copy of the current state.
func (c *Controller) State() live.LiveViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnectedOrFresh evaluates the state's freshness at the controller's clock.
func (c *Controller) IsConnectedOrFresh() bool {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	return state.IsConnectedOrFresh(c.clock.Now(), c.cfg.StaleAfter)
}

// Start begins periodic polling. It does not fetch by itself.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.startTickerLocked()
}

// Stop cancels the ticker, pending timers and any running fetch. No refresh
// or state change happens after Stop returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.stopTickerLocked()
	stopTimer(&c.visibleTimer)
	stopTimer(&c.onlineTimer)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Refresh fetches a new snapshot. A silent refresh only records failures in
// the state; an interactive one also raises the loading flag and reports the
// outcome to the notifier.
func (c *Controller) Refresh(ctx context.Context, silent bool) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return live.ErrControllerStopped
	}
	if !c.state.Online {
		if !errors.Is(c.state.LastError, live.ErrOffline) {
			c.state.LastError = live.ErrOffline
			c.changedLocked()
		}
		c.mu.Unlock()
		if !silent {
			c.notifier.Error(live.ErrOffline)
		}
		return live.ErrOffline
	}
	if c.inFlight {
		c.mu.Unlock()
		return live.ErrRefreshInProgress
	}
	c.inFlight = true
	if !silent {
		c.state.Loading = true
		c.changedLocked()
	}
	c.mu.Unlock()

	view, err := c.load(ctx)

	c.mu.Lock()
	c.inFlight = false
	if c.stopped {
		c.mu.Unlock()
		return live.ErrControllerStopped
	}
	c.state.Loading = false
	if err != nil {
		err = fmt.Errorf("%w: %w", live.ErrFetchFailed, err)
		c.state.LastError = err
		c.changedLocked()
		c.mu.Unlock()

		slog.Warn("Live view refresh failed", "view", c.filter.Key(), "silent", silent, "error", err)
		if !silent {
			c.notifier.Error(err)
		}
		return err
	}

	c.state.Data = view
	c.state.LastUpdated = c.clock.Now()
	c.state.LastError = nil
	c.changedLocked()
	c.mu.Unlock()

	slog.Debug("Live view refreshed",
		"view", c.filter.Key(),
		"sessions", len(view.Sessions),
		"total_active", view.Summary.TotalActive,
		"silent", silent)
	if !silent {
		c.notifier.Info("Live attendance updated")
	}
	return nil
}

func (c *Controller) load(ctx context.Context) (*live.LiveView, error) {
	snapshot, err := c.source.FetchLiveSessions(ctx, c.filter)
	if err != nil {
		return nil, err
	}
	return BuildView(ctx, c.annotator, c.filter, snapshot, c.cfg.Partitions)
}

// SetVisible records whether the view is on screen. Hiding stops polling
// and drops a pending refresh. Showing it again resumes polling and schedules
// one refresh after the visibility debounce.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.visible == visible {
		return
	}
	c.visible = visible

	if !visible {
		stopTimer(&c.visibleTimer)
		c.stopTickerLocked()
		return
	}

	if c.state.Online {
		c.debounceLocked(&c.visibleTimer, c.cfg.VisibleDebounce)
	}
	c.startTickerLocked()
}

// SetOnline records source connectivity. Going offline surfaces ErrOffline at
// once; coming back schedules one refresh after the online debounce.
func (c *Controller) SetOnline(online bool) {
	c.mu.Lock()
	if c.stopped || c.state.Online == online {
		c.mu.Unlock()
		return
	}
	c.state.Online = online

	if !online {
		stopTimer(&c.onlineTimer)
		c.stopTickerLocked()
		c.state.LastError = live.ErrOffline
		c.changedLocked()
		c.mu.Unlock()

		slog.Warn("Live view source offline", "view", c.filter.Key())
		c.notifier.Error(live.ErrOffline)
		return
	}

	c.changedLocked()
	c.debounceLocked(&c.onlineTimer, c.cfg.OnlineDebounce)
	c.startTickerLocked()
	c.mu.Unlock()
}

// Reconnect marks the source online and refreshes interactively right away.
func (c *Controller) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return live.ErrControllerStopped
	}
	stopTimer(&c.onlineTimer)
	if !c.state.Online {
		c.state.Online = true
		c.changedLocked()
		c.startTickerLocked()
	}
	c.mu.Unlock()

	return c.Refresh(ctx, false)
}

// debounceLocked replaces the timer in slot with a new one that runs a silent
// refresh after delay.
func (c *Controller) debounceLocked(slot **clock.Timer, delay time.Duration) {
	stopTimer(slot)

	var timer *clock.Timer
	timer = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.stopped || *slot != timer {
			c.mu.Unlock()
			return
		}
		*slot = nil
		c.wg.Add(1)
		c.mu.Unlock()
		defer c.wg.Done()

		_ = c.Refresh(c.ctx, true)
	})
	*slot = timer
}

func (c *Controller) startTickerLocked() {
	if c.ticker != nil || !c.started || c.stopped || !c.visible || !c.state.Online {
		return
	}

	ticker := c.clock.NewTicker(c.cfg.Interval)
	done := make(chan struct{})
	c.ticker = ticker
	c.tickerDone = done

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.tick()
			}
		}
	}()
}

func (c *Controller) stopTickerLocked() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.tickerDone)
	c.ticker = nil
	c.tickerDone = nil
}

func (c *Controller) tick() {
	c.mu.Lock()
	polling := !c.stopped && c.visible && c.state.Online
	c.mu.Unlock()
	if !polling {
		return
	}
	_ = c.Refresh(c.ctx, true)
}

// changedLocked bumps the version and publishes the state.
func (c *Controller) changedLocked() {
	c.state.Version++
	if c.onChange != nil {
		c.onChange(c.state)
	}
}

func stopTimer(slot **clock.Timer) {
	if *slot != nil {
		(*slot).Stop()
		*slot = nil
	}
}

type noopNotifier struct{}

func (noopNotifier) Info(string) {}
func (noopNotifier) Error(error) {}
