package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type sessionRepository struct {
	db  *database.DB
	loc *time.Location
}

// NewSessionRepository returns a PostgreSQL session store. loc decides which
// calendar day is "today" for live queries.
func NewSessionRepository(db *database.DB, loc *time.Location) attendance.SessionRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &sessionRepository{db: db, loc: loc}
}

const sessionSelect = `
	SELECT a.id, a.company_id, a.employee_id, e.full_name, e.department, e.location,
		   a.date, a.clock_in, a.clock_out, a.status, a.created_at, a.updated_at,
		   sh.id, sh.name, to_char(sh.start_time, 'HH24:MI'), to_char(sh.end_time, 'HH24:MI'), sh.grace_minutes
	FROM attendance_sessions a
	JOIN employees e ON e.id = a.employee_id
	LEFT JOIN shifts sh ON sh.id = a.shift_id`

func scanSession(row pgx.Row) (attendance.Session, error) {
	var (
		s                    attendance.Session
		status               string
		shiftID, shiftName   *string
		shiftStart, shiftEnd *string
		shiftGrace           *int
	)
	err := row.Scan(
		&s.ID, &s.CompanyID, &s.EmployeeID, &s.EmployeeName, &s.Department, &s.Location,
		&s.Date, &s.ClockIn, &s.ClockOut, &status, &s.CreatedAt, &s.UpdatedAt,
		&shiftID, &shiftName, &shiftStart, &shiftEnd, &shiftGrace,
	)
	if err != nil {
		return attendance.Session{}, err
	}
	s.Status = attendance.Status(status)

	if shiftID != nil {
		s.ShiftID = shiftID
		s.Shift = &attendance.Shift{ID: *shiftID, CompanyID: s.CompanyID}
		if shiftName != nil {
			s.Shift.Name = *shiftName
		}
		if shiftStart != nil {
			s.Shift.StartTime = *shiftStart
		}
		if shiftEnd != nil {
			s.Shift.EndTime = *shiftEnd
		}
		if shiftGrace != nil {
			s.Shift.GraceMinutes = *shiftGrace
		}
	}
	return s, nil
}

// FetchLiveSessions implements attendance.SessionRepository. The snapshot is
// read in one repeatable-read transaction, so NOW() and both queries see the
// same instant.
func (r *sessionRepository) FetchLiveSessions(ctx context.Context, filter attendance.LiveFilter) (attendance.LiveSnapshot, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return attendance.LiveSnapshot{}, fmt.Errorf("begin live snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	var now time.Time
	if err := tx.QueryRow(ctx, `SELECT NOW()`).Scan(&now); err != nil {
		return attendance.LiveSnapshot{}, fmt.Errorf("read store clock: %w", err)
	}
	localNow := now.In(r.loc)
	today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	where := `
	WHERE a.company_id = $1
	  AND a.clock_in IS NOT NULL
	  AND (a.date = $2 OR (a.date = $3 AND a.clock_out IS NULL))
	  AND ($4::text = '' OR e.department = $4::text)
	  AND ($5::text = '' OR e.location = $5::text)`
	args := []any{filter.CompanyID, today, yesterday, filter.Department, filter.Location}

	rows, err := tx.Query(ctx, sessionSelect+where+` ORDER BY e.full_name, a.date`, args...)
	if err != nil {
		return attendance.LiveSnapshot{}, fmt.Errorf("query live sessions: %w", err)
	}

	var sessions []attendance.Session
	index := make(map[string]int)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return attendance.LiveSnapshot{}, fmt.Errorf("scan live session: %w", err)
		}
		index[s.ID] = len(sessions)
		sessions = append(sessions, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return attendance.LiveSnapshot{}, fmt.Errorf("iterate live sessions: %w", err)
	}

	breakRows, err := tx.Query(ctx, `
	SELECT b.id, b.session_id, b.break_start, b.break_end
	FROM attendance_breaks b
	JOIN attendance_sessions a ON a.id = b.session_id
	JOIN employees e ON e.id = a.employee_id`+where+`
	ORDER BY b.break_start`, args...)
	if err != nil {
		return attendance.LiveSnapshot{}, fmt.Errorf("query live breaks: %w", err)
	}
	defer breakRows.Close()

	for breakRows.Next() {
		var (
			b         attendance.BreakInterval
			sessionID string
		)
		if err := breakRows.Scan(&b.ID, &sessionID, &b.Start, &b.End); err != nil {
			return attendance.LiveSnapshot{}, fmt.Errorf("scan live break: %w", err)
		}
		if i, ok := index[sessionID]; ok {
			sessions[i].Breaks = append(sessions[i].Breaks, b)
		}
	}
	if err := breakRows.Err(); err != nil {
		return attendance.LiveSnapshot{}, fmt.Errorf("iterate live breaks: %w", err)
	}

	return attendance.LiveSnapshot{Sessions: sessions, EvaluationInstant: now}, nil
}

func (r *sessionRepository) loadBreaks(ctx context.Context, q database.Querier, s *attendance.Session) error {
	rows, err := q.Query(ctx,
		`SELECT id, break_start, break_end FROM attendance_breaks WHERE session_id = $1 ORDER BY break_start`,
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("query breaks: %w", err)
	}
	defer rows.Close()

	s.Breaks = nil
	for rows.Next() {
		var b attendance.BreakInterval
		if err := rows.Scan(&b.ID, &b.Start, &b.End); err != nil {
			return fmt.Errorf("scan break: %w", err)
		}
		s.Breaks = append(s.Breaks, b)
	}
	return rows.Err()
}

func (r *sessionRepository) getOne(ctx context.Context, where string, args ...any) (attendance.Session, error) {
	q := GetQuerier(ctx, r.db)

	s, err := scanSession(q.QueryRow(ctx, sessionSelect+" "+where+" LIMIT 1", args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Session{}, attendance.ErrSessionNotFound
		}
		return attendance.Session{}, fmt.Errorf("get session: %w", err)
	}
	if err := r.loadBreaks(ctx, q, &s); err != nil {
		return attendance.Session{}, err
	}
	return s, nil
}

// GetByEmployeeAndDate implements attendance.SessionRepository.
func (r *sessionRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time, companyID string) (attendance.Session, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	return r.getOne(ctx,
		`WHERE a.employee_id = $1 AND a.date = $2 AND a.company_id = $3`,
		employeeID, date, companyID,
	)
}

// GetOpenSession implements attendance.SessionRepository.
func (r *sessionRepository) GetOpenSession(ctx context.Context, employeeID string, companyID string) (attendance.Session, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	return r.getOne(ctx,
		`WHERE a.employee_id = $1 AND a.company_id = $2
		   AND a.clock_in IS NOT NULL AND a.clock_out IS NULL AND a.status <> 'incomplete'
		 ORDER BY a.date DESC`,
		employeeID, companyID,
	)
}

// Create implements attendance.SessionRepository.
func (r *sessionRepository) Create(ctx context.Context, session attendance.Session) (attendance.Session, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if session.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return attendance.Session{}, fmt.Errorf("generate session id: %w", err)
		}
		session.ID = id.String()
	}
	if session.Status == "" {
		session.Status = attendance.StatusNotStarted
	}

	err := WithTransaction(ctx, r.db, func(ctx context.Context) error {
		q := GetQuerier(ctx, r.db)

		var shiftID *string
		err := q.QueryRow(ctx,
			`SELECT shift_id FROM employees WHERE id = $1 AND company_id = $2`,
			session.EmployeeID, session.CompanyID,
		).Scan(&shiftID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return attendance.ErrEmployeeNotFound
			}
			return fmt.Errorf("get employee shift: %w", err)
		}
		if session.ShiftID != nil {
			shiftID = session.ShiftID
		}

		_, err = q.Exec(ctx, `
			INSERT INTO attendance_sessions (id, company_id, employee_id, date, shift_id, clock_in, clock_out, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			session.ID, session.CompanyID, session.EmployeeID, session.Date, shiftID,
			session.ClockIn, session.ClockOut, string(session.Status),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return attendance.ErrAlreadyClockedIn
			}
			return fmt.Errorf("insert session: %w", err)
		}

		return insertBreaks(ctx, q, session.ID, session.Breaks)
	})
	if err != nil {
		return attendance.Session{}, err
	}

	return r.getOne(ctx, `WHERE a.id = $1`, session.ID)
}

// Update implements attendance.SessionRepository.
func (r *sessionRepository) Update(ctx context.Context, session attendance.Session) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	return WithTransaction(ctx, r.db, func(ctx context.Context) error {
		q := GetQuerier(ctx, r.db)

		tag, err := q.Exec(ctx, `
			UPDATE attendance_sessions
			SET clock_in = $1, clock_out = $2, status = $3, updated_at = NOW()
			WHERE id = $4 AND company_id = $5`,
			session.ClockIn, session.ClockOut, string(session.Status), session.ID, session.CompanyID,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return attendance.ErrSessionNotFound
		}

		if _, err := q.Exec(ctx, `DELETE FROM attendance_breaks WHERE session_id = $1`, session.ID); err != nil {
			return fmt.Errorf("clear breaks: %w", err)
		}
		return insertBreaks(ctx, q, session.ID, session.Breaks)
	})
}

func insertBreaks(ctx context.Context, q database.Querier, sessionID string, breaks []attendance.BreakInterval) error {
	for _, b := range breaks {
		id := b.ID
		if id == "" {
			generated, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("generate break id: %w", err)
			}
			id = generated.String()
		}
		_, err := q.Exec(ctx,
			`INSERT INTO attendance_breaks (id, session_id, break_start, break_end) VALUES ($1, $2, $3, $4)`,
			id, sessionID, b.Start, b.End,
		)
		if err != nil {
			return fmt.Errorf("insert break: %w", err)
		}
	}
	return nil
}

// MarkIncomplete implements attendance.SessionRepository. Overnight sessions
// from the day before are still running and are left alone.
func (r *sessionRepository) MarkIncomplete(ctx context.Context, day time.Time) (int64, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	q := GetQuerier(ctx, r.db)
	tag, err := q.Exec(ctx, `
		UPDATE attendance_sessions a
		SET status = 'incomplete', updated_at = NOW()
		WHERE a.clock_in IS NOT NULL
		  AND a.clock_out IS NULL
		  AND a.status <> 'incomplete'
		  AND a.date < $1
		  AND NOT EXISTS (
			SELECT 1 FROM shifts sh
			WHERE sh.id = a.shift_id
			  AND sh.end_time < sh.start_time
			  AND a.date = $2
		  )`,
		day, day.AddDate(0, 0, -1),
	)
	if err != nil {
		return 0, fmt.Errorf("mark incomplete sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Now implements attendance.SessionRepository.
func (r *sessionRepository) Now(ctx context.Context) (time.Time, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var now time.Time
	if err := GetQuerier(ctx, r.db).QueryRow(ctx, `SELECT NOW()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("read store clock: %w", err)
	}
	return now, nil
}

// Ping implements attendance.SessionRepository.
func (r *sessionRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	return r.db.Pool.Ping(ctx)
}
