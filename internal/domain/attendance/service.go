package attendance

import (
	"context"
	"time"
)

// SessionService defines the clock commands and annotated lookups for
// attendance sessions. The company is taken from the caller's token claims.
type SessionService interface {
	// ClockIn opens today's session for the employee at the store's clock.
	ClockIn(ctx context.Context, req ClockInRequest) (SessionResponse, error)

	// StartBreak opens a break on the employee's open session.
	StartBreak(ctx context.Context, req BreakRequest) (SessionResponse, error)

	// EndBreak closes the running break on the employee's open session.
	EndBreak(ctx context.Context, req BreakRequest) (SessionResponse, error)

	// ClockOut closes the employee's open session, ending any running break.
	ClockOut(ctx context.Context, req ClockOutRequest) (SessionResponse, error)

	// GetSession returns the session of one employee on one day, annotated at
	// the store's clock.
	GetSession(ctx context.Context, req GetSessionRequest) (SessionResponse, error)
}

// Annotator derives the live annotation of a session. Implementations never
// read the wall clock; eval is always supplied.
type Annotator interface {
	Annotate(session Session, eval time.Time) AnnotatedSession
}
