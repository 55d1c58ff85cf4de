package live

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/clock"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/sse"
	"github.com/go-chi/jwtauth/v5"
)

// EventName is the SSE event type of live state updates.
const EventName = "live"

type LiveServiceImpl struct {
	source    SnapshotSource
	annotator attendance.Annotator
	loc       *time.Location
	cfg       ControllerConfig
	clock     clock.Clock
	hub       *sse.Hub

	mu     sync.Mutex
	online bool
	views  map[string]*view
}

type view struct {
	controller  *Controller
	subscribers int
}

// getCompanyID extracts company_id from JWT claims
func (s *LiveServiceImpl) getCompanyID(ctx context.Context) (string, error) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to extract claims from context: %w", err)
	}

	companyID, ok := claims["company_id"].(string)
	if !ok || companyID == "" {
		return "", fmt.Errorf("company_id not found in claims")
	}
	return companyID, nil
}

// GetLive implements live.LiveService.
func (s *LiveServiceImpl) GetLive(ctx context.Context, req live.LiveRequest) (live.LiveStateResponse, error) {
	filter, err := s.filter(ctx, req)
	if err != nil {
		return live.LiveStateResponse{}, err
	}

	if v := s.lookup(filter); v != nil {
		return s.respond(filter, v.controller.State()), nil
	}
	return s.loadOnce(ctx, filter)
}

// Refresh implements live.LiveService.
func (s *LiveServiceImpl) Refresh(ctx context.Context, req live.LiveRequest) (live.LiveStateResponse, error) {
	filter, err := s.filter(ctx, req)
	if err != nil {
		return live.LiveStateResponse{}, err
	}

	v := s.lookup(filter)
	if v == nil {
		return s.loadOnce(ctx, filter)
	}
	if err := v.controller.Refresh(ctx, false); err != nil {
		return live.LiveStateResponse{}, err
	}
	return s.respond(filter, v.controller.State()), nil
}

// Reconnect implements live.LiveService.
func (s *LiveServiceImpl) Reconnect(ctx context.Context, req live.LiveRequest) (live.LiveStateResponse, error) {
	filter, err := s.filter(ctx, req)
	if err != nil {
		return live.LiveStateResponse{}, err
	}

	// Connectivity is shared, so every subscribed view comes back online.
	s.SetOnline(true)

	v := s.lookup(filter)
	if v == nil {
		return s.loadOnce(ctx, filter)
	}
	if err := v.controller.Reconnect(ctx); err != nil {
		return live.LiveStateResponse{}, err
	}
	return s.respond(filter, v.controller.State()), nil
}

// SetVisibility implements live.LiveService.
func (s *LiveServiceImpl) SetVisibility(ctx context.Context, req live.VisibilityRequest) (live.LiveStateResponse, error) {
	if err := req.Validate(); err != nil {
		return live.LiveStateResponse{}, err
	}

	filter, err := s.filter(ctx, req.LiveRequest())
	if err != nil {
		return live.LiveStateResponse{}, err
	}

	v := s.lookup(filter)
	if v == nil {
		return live.LiveStateResponse{}, live.ErrViewNotFound
	}
	v.controller.SetVisible(*req.Visible)

	slog.Debug("Live view visibility changed", "view", filter.Key(), "visible", *req.Visible)
	return s.respond(filter, v.controller.State()), nil
}

// Subscribe implements live.LiveService. The first subscriber of a view starts
// its controller and loads it; the last one to leave stops it.
func (s *LiveServiceImpl) Subscribe(ctx context.Context, req live.LiveRequest) (live.Subscription, error) {
	filter, err := s.filter(ctx, req)
	if err != nil {
		return live.Subscription{}, err
	}
	key := filter.Key()

	s.mu.Lock()
	v, exists := s.views[key]
	if !exists {
		v = &view{controller: s.newController(filter)}
		if !s.online {
			v.controller.SetOnline(false)
		}
		s.views[key] = v
	}
	v.subscribers++
	events, unsubscribe := s.hub.Subscribe(key)
	s.mu.Unlock()

	if !exists {
		v.controller.Start()
		if err := v.controller.Refresh(ctx, true); err != nil {
			slog.Warn("Initial live view load failed", "view", key, "error", err)
		}
		slog.Info("Live view started", "view", key)
	}

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			unsubscribe()
			s.release(key, v)
		})
	}

	return live.Subscription{
		Initial: s.respond(filter, v.controller.State()),
		Events:  events,
		Close:   closeFn,
	}, nil
}

func (s *LiveServiceImpl) release(key string, v *view) {
	s.mu.Lock()
	v.subscribers--
	last := v.subscribers == 0 && s.views[key] == v
	if last {
		delete(s.views, key)
	}
	s.mu.Unlock()

	if last {
		v.controller.Stop()
		slog.Info("Live view stopped", "view", key)
	}
}

// SetOnline implements live.LiveService.
func (s *LiveServiceImpl) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	controllers := make([]*Controller, 0, len(s.views))
	for _, v := range s.views {
		controllers = append(controllers, v.controller)
	}
	s.mu.Unlock()

	if changed {
		slog.Info("Live source connectivity changed", "online", online, "views", len(controllers))
	}
	for _, c := range controllers {
		c.SetOnline(online)
	}
}

// Shutdown implements live.LiveService.
func (s *LiveServiceImpl) Shutdown() {
	s.mu.Lock()
	views := s.views
	s.views = make(map[string]*view)
	s.mu.Unlock()

	for _, v := range views {
		v.controller.Stop()
	}
}

// ViewCount returns the number of views kept refreshed.
func (s *LiveServiceImpl) ViewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

func (s *LiveServiceImpl) filter(ctx context.Context, req live.LiveRequest) (attendance.LiveFilter, error) {
	companyID, err := s.getCompanyID(ctx)
	if err != nil {
		return attendance.LiveFilter{}, err
	}
	return req.Filter(companyID), nil
}

func (s *LiveServiceImpl) lookup(filter attendance.LiveFilter) *view {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[filter.Key()]
}

func (s *LiveServiceImpl) newController(filter attendance.LiveFilter) *Controller {
	key := filter.Key()
	return NewController(s.source, s.annotator, filter, s.cfg,
		WithClock(s.clock),
		WithNotifier(LogNotifier{}),
		WithOnChange(func(state live.LiveViewState) {
			s.hub.Publish(key, sse.Event{
				Event: EventName,
				ID:    strconv.FormatUint(state.Version, 10),
				Data:  s.respond(filter, state),
			})
		}),
	)
}

// loadOnce serves a view nobody subscribes to with a single interactive fetch.
func (s *LiveServiceImpl) loadOnce(ctx context.Context, filter attendance.LiveFilter) (live.LiveStateResponse, error) {
	s.mu.Lock()
	online := s.online
	s.mu.Unlock()
	if !online {
		return live.LiveStateResponse{}, live.ErrOffline
	}

	snapshot, err := s.source.FetchLiveSessions(ctx, filter)
	if err != nil {
		return live.LiveStateResponse{}, fmt.Errorf("%w: %w", live.ErrFetchFailed, err)
	}
	data, err := BuildView(ctx, s.annotator, filter, snapshot, s.cfg.Partitions)
	if err != nil {
		return live.LiveStateResponse{}, err
	}

	return s.respond(filter, live.LiveViewState{
		Data:        data,
		Online:      true,
		LastUpdated: s.clock.Now(),
		Version:     1,
	}), nil
}

func (s *LiveServiceImpl) respond(filter attendance.LiveFilter, state live.LiveViewState) live.LiveStateResponse {
	return live.NewLiveStateResponse(filter, state, s.clock.Now(), s.cfg.StaleAfter, s.loc)
}

func NewLiveService(source SnapshotSource, annotator attendance.Annotator, loc *time.Location, cfg ControllerConfig, hub *sse.Hub, clk clock.Clock) live.LiveService {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &LiveServiceImpl{
		source:    source,
		annotator: annotator,
		loc:       loc,
		cfg:       cfg.withDefaults(),
		clock:     clk,
		hub:       hub,
		online:    true,
		views:     make(map[string]*view),
	}
}
