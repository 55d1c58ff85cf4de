package live

import (
	"context"

	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/sse"
)

// LiveService serves live attendance views. One view exists per company,
// department and location; it is kept refreshed while it has subscribers.
type LiveService interface {
	// GetLive returns the current state of the view, loading it once if no
	// subscriber keeps it refreshed.
	GetLive(ctx context.Context, req LiveRequest) (LiveStateResponse, error)

	// Refresh runs an interactive refresh of the view.
	Refresh(ctx context.Context, req LiveRequest) (LiveStateResponse, error)

	// Reconnect marks the source online and refreshes the view.
	Reconnect(ctx context.Context, req LiveRequest) (LiveStateResponse, error)

	// SetVisibility records whether the view is shown on screen. Hidden views
	// stop polling.
	SetVisibility(ctx context.Context, req VisibilityRequest) (LiveStateResponse, error)

	// Subscribe streams state changes of the view until the subscription is
	// closed.
	Subscribe(ctx context.Context, req LiveRequest) (Subscription, error)

	// SetOnline propagates store connectivity to every view.
	SetOnline(online bool)

	// Shutdown stops every view.
	Shutdown()
}

// Subscription is a live stream of state events. Initial is the state at the
// time of subscribing; events carry later states in Version order.
type Subscription struct {
	Initial LiveStateResponse
	Events  <-chan sse.Event
	Close   func()
}
