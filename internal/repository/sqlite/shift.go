package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/timeutil"
	"github.com/google/uuid"
)

type shiftRepository struct {
	store *Store
}

func NewShiftRepository(store *Store) attendance.ShiftRepository {
	return &shiftRepository{store: store}
}

// GetByID implements attendance.ShiftRepository.
func (r *shiftRepository) GetByID(ctx context.Context, id string, companyID string) (attendance.Shift, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	var (
		shift                attendance.Shift
		createdAt, updatedAt string
	)
	err := r.store.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, start_time, end_time, grace_minutes, created_at, updated_at
		FROM shifts WHERE id = ? AND company_id = ?`,
		id, companyID,
	).Scan(&shift.ID, &shift.CompanyID, &shift.Name, &shift.StartTime, &shift.EndTime, &shift.GraceMinutes, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Shift{}, attendance.ErrShiftNotFound
		}
		return attendance.Shift{}, fmt.Errorf("get shift %s: %w", id, err)
	}
	shift.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
	shift.UpdatedAt, _ = time.Parse(timestampLayout, updatedAt)
	return shift, nil
}

// Upsert implements attendance.ShiftRepository.
func (r *shiftRepository) Upsert(ctx context.Context, shift attendance.Shift) (attendance.Shift, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	if shift.ID == "" {
		shift.ID = uuid.NewString()
	}
	start, end, err := normalizeShiftTimes(shift)
	if err != nil {
		return attendance.Shift{}, err
	}
	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO shifts (id, company_id, name, start_time, end_time, grace_minutes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			grace_minutes = excluded.grace_minutes,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		shift.ID, shift.CompanyID, shift.Name, start, end, shift.GraceMinutes,
	)
	if err != nil {
		return attendance.Shift{}, fmt.Errorf("upsert shift %s: %w", shift.ID, err)
	}
	return r.GetByID(ctx, shift.ID, shift.CompanyID)
}

// normalizeShiftTimes pads shift times so the overnight check in
// MarkIncomplete can compare them as text.
func normalizeShiftTimes(shift attendance.Shift) (string, string, error) {
	start, ok := timeutil.NormalizeWallClock(shift.StartTime)
	if !ok {
		return "", "", fmt.Errorf("shift %s start %q: %w", shift.ID, shift.StartTime, attendance.ErrMalformedTime)
	}
	end, ok := timeutil.NormalizeWallClock(shift.EndTime)
	if !ok {
		return "", "", fmt.Errorf("shift %s end %q: %w", shift.ID, shift.EndTime, attendance.ErrMalformedTime)
	}
	return start, end, nil
}

type employeeRepository struct {
	store *Store
}

func NewEmployeeRepository(store *Store) attendance.EmployeeRepository {
	return &employeeRepository{store: store}
}

// GetByID implements attendance.EmployeeRepository.
func (r *employeeRepository) GetByID(ctx context.Context, id string, companyID string) (attendance.Employee, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	var (
		emp     attendance.Employee
		shiftID sql.NullString
	)
	err := r.store.db.QueryRowContext(ctx, `
		SELECT id, company_id, full_name, department, location, shift_id
		FROM employees WHERE id = ? AND company_id = ?`,
		id, companyID,
	).Scan(&emp.ID, &emp.CompanyID, &emp.FullName, &emp.Department, &emp.Location, &shiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Employee{}, attendance.ErrEmployeeNotFound
		}
		return attendance.Employee{}, fmt.Errorf("get employee %s: %w", id, err)
	}
	if shiftID.Valid {
		emp.ShiftID = &shiftID.String
	}
	return emp, nil
}

// Upsert implements attendance.EmployeeRepository.
func (r *employeeRepository) Upsert(ctx context.Context, emp attendance.Employee) (attendance.Employee, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	var shiftID sql.NullString
	if emp.ShiftID != nil {
		shiftID = sql.NullString{String: *emp.ShiftID, Valid: true}
	}
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO employees (id, company_id, full_name, department, location, shift_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			department = excluded.department,
			location = excluded.location,
			shift_id = excluded.shift_id`,
		emp.ID, emp.CompanyID, emp.FullName, emp.Department, emp.Location, shiftID,
	)
	if err != nil {
		return attendance.Employee{}, fmt.Errorf("upsert employee %s: %w", emp.ID, err)
	}
	return r.GetByID(ctx, emp.ID, emp.CompanyID)
}
