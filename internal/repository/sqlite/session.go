package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/google/uuid"
)

type sessionRepository struct {
	store *Store
}

func NewSessionRepository(store *Store) attendance.SessionRepository {
	return &sessionRepository{store: store}
}

const sessionColumns = `
	a.id, a.company_id, a.employee_id, e.full_name, e.department, e.location,
	a.date, a.clock_in, a.clock_out, a.status, a.created_at, a.updated_at,
	sh.id, sh.name, sh.start_time, sh.end_time, sh.grace_minutes`

const sessionJoins = `
	FROM attendance_sessions a
	JOIN employees e ON e.id = a.employee_id
	LEFT JOIN shifts sh ON sh.id = a.shift_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (attendance.Session, error) {
	var (
		s                    attendance.Session
		date                 string
		clockIn, clockOut    sql.NullString
		status               string
		createdAt, updatedAt string
		shiftID, shiftName   sql.NullString
		shiftStart, shiftEnd sql.NullString
		shiftGrace           sql.NullInt64
	)

	err := row.Scan(
		&s.ID, &s.CompanyID, &s.EmployeeID, &s.EmployeeName, &s.Department, &s.Location,
		&date, &clockIn, &clockOut, &status, &createdAt, &updatedAt,
		&shiftID, &shiftName, &shiftStart, &shiftEnd, &shiftGrace,
	)
	if err != nil {
		return attendance.Session{}, err
	}

	if s.Date, err = time.Parse(dateLayout, date); err != nil {
		return attendance.Session{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	if s.ClockIn, err = parseNullTimestamp(clockIn); err != nil {
		return attendance.Session{}, err
	}
	if s.ClockOut, err = parseNullTimestamp(clockOut); err != nil {
		return attendance.Session{}, err
	}
	s.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
	s.UpdatedAt, _ = time.Parse(timestampLayout, updatedAt)
	s.Status = attendance.Status(status)

	if shiftID.Valid {
		s.ShiftID = &shiftID.String
		s.Shift = &attendance.Shift{
			ID:           shiftID.String,
			CompanyID:    s.CompanyID,
			Name:         shiftName.String,
			StartTime:    shiftStart.String,
			EndTime:      shiftEnd.String,
			GraceMinutes: int(shiftGrace.Int64),
		}
	}
	return s, nil
}

// FetchLiveSessions implements attendance.SessionRepository.
func (r *sessionRepository) FetchLiveSessions(ctx context.Context, filter attendance.LiveFilter) (attendance.LiveSnapshot, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	now, err := r.store.Now(ctx)
	if err != nil {
		return attendance.LiveSnapshot{}, err
	}
	today := r.store.today(now)
	yesterday := now.In(r.store.loc).AddDate(0, 0, -1).Format(dateLayout)

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return attendance.LiveSnapshot{}, fmt.Errorf("begin live snapshot: %w", err)
	}
	defer tx.Rollback()

	where := `
	WHERE a.company_id = ?
	  AND a.clock_in IS NOT NULL
	  AND (a.date = ? OR (a.date = ? AND a.clock_out IS NULL))
	  AND (? = '' OR e.department = ?)
	  AND (? = '' OR e.location = ?)`
	args := []any{
		filter.CompanyID, today, yesterday,
		filter.Department, filter.Department,
		filter.Location, filter.Location,
	}

	rows, err := tx.QueryContext(ctx, `SELECT `+sessionColumns+sessionJoins+where+` ORDER BY e.full_name, a.date`, args...)
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
	if err := rows.Err(); err != nil {
		rows.Close()
		return attendance.LiveSnapshot{}, fmt.Errorf("iterate live sessions: %w", err)
	}
	rows.Close()

	breakRows, err := tx.QueryContext(ctx, `
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
		sessionID, b, err := scanBreak(breakRows)
		if err != nil {
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

func scanBreak(row rowScanner) (string, attendance.BreakInterval, error) {
	var (
		b          attendance.BreakInterval
		sessionID  string
		start      string
		end        sql.NullString
		parseError error
	)
	if err := row.Scan(&b.ID, &sessionID, &start, &end); err != nil {
		return "", b, err
	}
	if b.Start, parseError = time.Parse(timestampLayout, start); parseError != nil {
		return "", b, fmt.Errorf("parse break start %q: %w", start, parseError)
	}
	if b.End, parseError = parseNullTimestamp(end); parseError != nil {
		return "", b, parseError
	}
	return sessionID, b, nil
}

func (r *sessionRepository) loadBreaks(ctx context.Context, s *attendance.Session) error {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT id, session_id, break_start, break_end FROM attendance_breaks WHERE session_id = ? ORDER BY break_start`,
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("query breaks: %w", err)
	}
	defer rows.Close()

	s.Breaks = nil
	for rows.Next() {
		_, b, err := scanBreak(rows)
		if err != nil {
			return fmt.Errorf("scan break: %w", err)
		}
		s.Breaks = append(s.Breaks, b)
	}
	return rows.Err()
}

func (r *sessionRepository) getOne(ctx context.Context, where string, args ...any) (attendance.Session, error) {
	row := r.store.db.QueryRowContext(ctx, `SELECT `+sessionColumns+sessionJoins+` `+where+` LIMIT 1`, args...)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Session{}, attendance.ErrSessionNotFound
		}
		return attendance.Session{}, fmt.Errorf("get session: %w", err)
	}
	if err := r.loadBreaks(ctx, &s); err != nil {
		return attendance.Session{}, err
	}
	return s, nil
}

// GetByEmployeeAndDate implements attendance.SessionRepository.
func (r *sessionRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time, companyID string) (attendance.Session, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	return r.getOne(ctx,
		`WHERE a.employee_id = ? AND a.date = ? AND a.company_id = ?`,
		employeeID, date.Format(dateLayout), companyID,
	)
}

// GetOpenSession implements attendance.SessionRepository.
func (r *sessionRepository) GetOpenSession(ctx context.Context, employeeID string, companyID string) (attendance.Session, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	return r.getOne(ctx,
		`WHERE a.employee_id = ? AND a.company_id = ?
		   AND a.clock_in IS NOT NULL AND a.clock_out IS NULL AND a.status != 'incomplete'
		 ORDER BY a.date DESC`,
		employeeID, companyID,
	)
}

// Create implements attendance.SessionRepository.
func (r *sessionRepository) Create(ctx context.Context, session attendance.Session) (attendance.Session, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	var shiftID sql.NullString
	err := r.store.db.QueryRowContext(ctx,
		`SELECT shift_id FROM employees WHERE id = ? AND company_id = ?`,
		session.EmployeeID, session.CompanyID,
	).Scan(&shiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Session{}, attendance.ErrEmployeeNotFound
		}
		return attendance.Session{}, fmt.Errorf("get employee shift: %w", err)
	}
	if session.ShiftID != nil {
		shiftID = sql.NullString{String: *session.ShiftID, Valid: true}
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = attendance.StatusNotStarted
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return attendance.Session{}, fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, company_id, employee_id, date, shift_id, clock_in, clock_out, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.CompanyID, session.EmployeeID, session.Date.Format(dateLayout), shiftID,
		formatNullTimestamp(session.ClockIn), formatNullTimestamp(session.ClockOut), string(session.Status),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return attendance.Session{}, attendance.ErrAlreadyClockedIn
		}
		return attendance.Session{}, fmt.Errorf("insert session: %w", err)
	}

	if err := insertBreaks(ctx, tx, session.ID, session.Breaks); err != nil {
		return attendance.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return attendance.Session{}, fmt.Errorf("commit create session: %w", err)
	}

	return r.getOne(ctx, `WHERE a.id = ?`, session.ID)
}

// Update implements attendance.SessionRepository.
func (r *sessionRepository) Update(ctx context.Context, session attendance.Session) error {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update session: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET clock_in = ?, clock_out = ?, status = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ? AND company_id = ?`,
		formatNullTimestamp(session.ClockIn), formatNullTimestamp(session.ClockOut), string(session.Status),
		session.ID, session.CompanyID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrSessionNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_breaks WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("clear breaks: %w", err)
	}
	if err := insertBreaks(ctx, tx, session.ID, session.Breaks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update session: %w", err)
	}
	return nil
}

func insertBreaks(ctx context.Context, tx *sql.Tx, sessionID string, breaks []attendance.BreakInterval) error {
	for _, b := range breaks {
		id := b.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attendance_breaks (id, session_id, break_start, break_end) VALUES (?, ?, ?, ?)`,
			id, sessionID, formatTimestamp(b.Start), formatNullTimestamp(b.End),
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
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	today := day.Format(dateLayout)
	yesterday := day.AddDate(0, 0, -1).Format(dateLayout)

	res, err := r.store.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET status = 'incomplete', updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE clock_in IS NOT NULL
		  AND clock_out IS NULL
		  AND status != 'incomplete'
		  AND date < ?
		  AND id NOT IN (
			SELECT a.id FROM attendance_sessions a
			JOIN shifts sh ON sh.id = a.shift_id
			WHERE a.date = ? AND sh.end_time < sh.start_time
		  )`,
		today, yesterday,
	)
	if err != nil {
		return 0, fmt.Errorf("mark incomplete sessions: %w", err)
	}
	return res.RowsAffected()
}

// Now implements attendance.SessionRepository.
func (r *sessionRepository) Now(ctx context.Context) (time.Time, error) {
	return r.store.Now(ctx)
}

// Ping implements attendance.SessionRepository.
func (r *sessionRepository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
