package attendance

import (
	"context"
	"time"
)

// SessionRepository defines data access methods for attendance sessions.
// All methods include companyID to prevent cross-company data access.
type SessionRepository interface {
	// FetchLiveSessions returns every session of the store's current day plus
	// open sessions of earlier days, together with the store's clock.
	FetchLiveSessions(ctx context.Context, filter LiveFilter) (LiveSnapshot, error)

	// GetByEmployeeAndDate returns ErrSessionNotFound when the employee has no
	// session on date.
	GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time, companyID string) (Session, error)

	// GetOpenSession returns the latest session that is clocked in and not
	// clocked out, or ErrSessionNotFound.
	GetOpenSession(ctx context.Context, employeeID string, companyID string) (Session, error)

	// Create inserts a session for an existing employee. Employee name,
	// department, location and shift are filled from the roster.
	Create(ctx context.Context, session Session) (Session, error)

	// Update persists clock times, status and breaks.
	Update(ctx context.Context, session Session) error

	// MarkIncomplete marks open sessions dated before day as incomplete and
	// returns how many rows changed.
	MarkIncomplete(ctx context.Context, day time.Time) (int64, error)

	// Now returns the store's clock.
	Now(ctx context.Context) (time.Time, error)

	Ping(ctx context.Context) error
}

type ShiftRepository interface {
	GetByID(ctx context.Context, id string, companyID string) (Shift, error)
	Upsert(ctx context.Context, shift Shift) (Shift, error)
}

type EmployeeRepository interface {
	GetByID(ctx context.Context, id string, companyID string) (Employee, error)
	Upsert(ctx context.Context, employee Employee) (Employee, error)
}
