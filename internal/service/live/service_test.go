package live

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/clock"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/sse"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/validator"
	attendancesvc "github.com/cmlabs-hris/hris-live-attendance/internal/service/attendance"
	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveFixture struct {
	service *LiveServiceImpl
	source  *fakeSource
	hub     *sse.Hub
	clock   *clock.FakeClock
	ctx     context.Context
}

func newLiveFixture(t *testing.T) liveFixture {
	t.Helper()

	tokenAuth := jwtauth.New("HS256", []byte("test-secret"), nil)
	token, _, err := tokenAuth.Encode(map[string]interface{}{"company_id": "company-1"})
	require.NoError(t, err)

	f := liveFixture{
		source: newFakeSource(),
		hub:    sse.NewHub(),
		clock:  clock.Fake(time.Date(2026, 3, 16, 12, 0, 5, 0, time.UTC)),
		ctx:    jwtauth.NewContext(context.Background(), token, nil),
	}
	f.service = NewLiveService(f.source, attendancesvc.NewCalculator(time.UTC), time.UTC, ControllerConfig{}, f.hub, f.clock).(*LiveServiceImpl)
	t.Cleanup(f.service.Shutdown)
	return f
}

func TestLiveService_GetLiveWithoutSubscribersLoadsOnce(t *testing.T) {
	f := newLiveFixture(t)

	resp, err := f.service.GetLive(f.ctx, live.LiveRequest{Department: " Engineering "})
	require.NoError(t, err)

	assert.Equal(t, "Engineering", resp.Department)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 5, resp.Summary.TotalActive)
	assert.Equal(t, 2, resp.Summary.Working)
	assert.Len(t, resp.Sessions, 5)
	assert.True(t, resp.IsConnectedOrFresh)
	assert.Equal(t, 1, f.source.Calls())
	assert.Equal(t, 0, f.service.ViewCount())
}

func TestLiveService_SubscribersShareOneView(t *testing.T) {
	f := newLiveFixture(t)

	first, err := f.service.Subscribe(f.ctx, live.LiveRequest{})
	require.NoError(t, err)
	require.NotNil(t, first.Initial.Summary)
	assert.Equal(t, 5, first.Initial.Summary.TotalActive)
	assert.Equal(t, 1, f.source.Calls())

	select {
	case ev := <-first.Events:
		assert.Equal(t, EventName, ev.Event)
		assert.Equal(t, "1", ev.ID)
	default:
		t.Fatal("expected the initial load to be published")
	}

	second, err := f.service.Subscribe(f.ctx, live.LiveRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.source.Calls())
	assert.Equal(t, 1, f.service.ViewCount())
	assert.Equal(t, first.Initial.Version, second.Initial.Version)

	resp, err := f.service.GetLive(f.ctx, live.LiveRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.source.Calls(), "subscribed views are served from the controller")
	assert.Equal(t, uint64(1), resp.Version)

	first.Close()
	first.Close()
	assert.Equal(t, 1, f.service.ViewCount())

	second.Close()
	assert.Equal(t, 0, f.service.ViewCount())
	assert.Equal(t, 0, f.hub.TotalSubscribers())
	assert.Equal(t, 0, f.clock.PendingTimers())
}

func TestLiveService_RefreshPublishes(t *testing.T) {
	f := newLiveFixture(t)
	sub, err := f.service.Subscribe(f.ctx, live.LiveRequest{})
	require.NoError(t, err)
	defer sub.Close()
	<-sub.Events

	resp, err := f.service.Refresh(f.ctx, live.LiveRequest{})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), resp.Version)
	assert.False(t, resp.Loading)

	loading := <-sub.Events
	done := <-sub.Events
	assert.True(t, loading.Data.(live.LiveStateResponse).Loading)
	assert.Equal(t, "3", done.ID)
}

func TestLiveService_Visibility(t *testing.T) {
	f := newLiveFixture(t)

	visible := false
	_, err := f.service.SetVisibility(f.ctx, live.VisibilityRequest{Visible: &visible})
	assert.ErrorIs(t, err, live.ErrViewNotFound)

	_, err = f.service.SetVisibility(f.ctx, live.VisibilityRequest{})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.ToMap(), "visible")

	sub, err := f.service.Subscribe(f.ctx, live.LiveRequest{})
	require.NoError(t, err)
	defer sub.Close()
	require.Equal(t, 1, f.clock.PendingTimers())

	_, err = f.service.SetVisibility(f.ctx, live.VisibilityRequest{Visible: &visible})
	require.NoError(t, err)
	assert.Equal(t, 0, f.clock.PendingTimers())

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, f.source.Calls())

	visible = true
	_, err = f.service.SetVisibility(f.ctx, live.VisibilityRequest{Visible: &visible})
	require.NoError(t, err)
	f.clock.Advance(DefaultVisibleDebounce)
	assert.Equal(t, 2, f.source.Calls())
}

func TestLiveService_SetOnlineReachesEveryView(t *testing.T) {
	f := newLiveFixture(t)
	a, err := f.service.Subscribe(f.ctx, live.LiveRequest{Department: "Engineering"})
	require.NoError(t, err)
	defer a.Close()
	b, err := f.service.Subscribe(f.ctx, live.LiveRequest{Location: "HQ"})
	require.NoError(t, err)
	defer b.Close()

	f.service.SetOnline(false)

	for _, sub := range []live.Subscription{a, b} {
		var last live.LiveStateResponse
		for len(sub.Events) > 0 {
			last = (<-sub.Events).Data.(live.LiveStateResponse)
		}
		assert.False(t, last.Online)
		require.NotNil(t, last.LastError)
		assert.Equal(t, live.ErrOffline.Error(), *last.LastError)
	}

	_, err = f.service.GetLive(f.ctx, live.LiveRequest{Department: "Sales"})
	assert.ErrorIs(t, err, live.ErrOffline)

	_, err = f.service.Refresh(f.ctx, live.LiveRequest{Department: "Engineering"})
	assert.ErrorIs(t, err, live.ErrOffline)

	resp, err := f.service.Reconnect(f.ctx, live.LiveRequest{Department: "Engineering"})
	require.NoError(t, err)
	assert.True(t, resp.Online)
	assert.Nil(t, resp.LastError)
}

func TestLiveService_ReconnectBringsEveryViewOnline(t *testing.T) {
	f := newLiveFixture(t)
	a, err := f.service.Subscribe(f.ctx, live.LiveRequest{Department: "Engineering"})
	require.NoError(t, err)
	defer a.Close()
	b, err := f.service.Subscribe(f.ctx, live.LiveRequest{Location: "HQ"})
	require.NoError(t, err)
	defer b.Close()
	require.Equal(t, 2, f.source.Calls())

	f.service.SetOnline(false)

	_, err = f.service.Reconnect(f.ctx, live.LiveRequest{Department: "Engineering"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.source.Calls())

	other, err := f.service.GetLive(f.ctx, live.LiveRequest{Location: "HQ"})
	require.NoError(t, err)
	assert.True(t, other.Online)

	f.clock.Advance(DefaultOnlineDebounce)
	require.Eventually(t, func() bool { return f.source.Calls() == 4 }, time.Second, 5*time.Millisecond)

	other, err = f.service.GetLive(f.ctx, live.LiveRequest{Location: "HQ"})
	require.NoError(t, err)
	assert.Nil(t, other.LastError)
}

func TestLiveService_NewViewWhileOfflineStartsOffline(t *testing.T) {
	f := newLiveFixture(t)
	f.service.SetOnline(false)

	sub, err := f.service.Subscribe(f.ctx, live.LiveRequest{})
	require.NoError(t, err)
	defer sub.Close()

	assert.False(t, sub.Initial.Online)
	assert.Nil(t, sub.Initial.Summary)
	assert.Equal(t, 0, f.source.Calls())

	f.service.SetOnline(true)
	f.clock.Advance(DefaultOnlineDebounce)
	assert.Equal(t, 1, f.source.Calls())
}

func TestLiveService_RequiresCompanyClaim(t *testing.T) {
	f := newLiveFixture(t)

	_, err := f.service.GetLive(context.Background(), live.LiveRequest{})
	assert.Error(t, err)
	_, err = f.service.Subscribe(context.Background(), live.LiveRequest{})
	assert.Error(t, err)
	assert.Equal(t, 0, f.source.Calls())
}
