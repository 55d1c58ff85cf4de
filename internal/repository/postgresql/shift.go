package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/database"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/timeutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type shiftRepository struct {
	db *database.DB
}

func NewShiftRepository(db *database.DB) attendance.ShiftRepository {
	return &shiftRepository{db: db}
}

// GetByID implements attendance.ShiftRepository.
func (r *shiftRepository) GetByID(ctx context.Context, id string, companyID string) (attendance.Shift, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, company_id, name, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
			   grace_minutes, created_at, updated_at
		FROM shifts
		WHERE id = $1 AND company_id = $2
	`

	var shift attendance.Shift
	err := q.QueryRow(ctx, query, id, companyID).Scan(
		&shift.ID, &shift.CompanyID, &shift.Name, &shift.StartTime, &shift.EndTime,
		&shift.GraceMinutes, &shift.CreatedAt, &shift.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Shift{}, attendance.ErrShiftNotFound
		}
		return attendance.Shift{}, fmt.Errorf("failed to get shift: %w", err)
	}
	return shift, nil
}

// Upsert implements attendance.ShiftRepository.
func (r *shiftRepository) Upsert(ctx context.Context, shift attendance.Shift) (attendance.Shift, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if shift.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return attendance.Shift{}, fmt.Errorf("generate shift id: %w", err)
		}
		shift.ID = id.String()
	}
	for _, value := range []string{shift.StartTime, shift.EndTime} {
		if !timeutil.IsValidWallClock(value) {
			return attendance.Shift{}, fmt.Errorf("shift %s time %q: %w", shift.ID, value, attendance.ErrMalformedTime)
		}
	}

	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO shifts (id, company_id, name, start_time, end_time, grace_minutes)
		VALUES ($1, $2, $3, $4::time, $5::time, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			grace_minutes = EXCLUDED.grace_minutes,
			updated_at = NOW()
		RETURNING id, company_id, name, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
			grace_minutes, created_at, updated_at
	`

	var saved attendance.Shift
	err := q.QueryRow(ctx, query,
		shift.ID, shift.CompanyID, shift.Name, shift.StartTime, shift.EndTime, shift.GraceMinutes,
	).Scan(
		&saved.ID, &saved.CompanyID, &saved.Name, &saved.StartTime, &saved.EndTime,
		&saved.GraceMinutes, &saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		return attendance.Shift{}, fmt.Errorf("failed to upsert shift: %w", err)
	}
	return saved, nil
}

type employeeRepository struct {
	db *database.DB
}

func NewEmployeeRepository(db *database.DB) attendance.EmployeeRepository {
	return &employeeRepository{db: db}
}

// GetByID implements attendance.EmployeeRepository.
func (r *employeeRepository) GetByID(ctx context.Context, id string, companyID string) (attendance.Employee, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	q := GetQuerier(ctx, r.db)

	var emp attendance.Employee
	err := q.QueryRow(ctx, `
		SELECT id, company_id, full_name, department, location, shift_id
		FROM employees
		WHERE id = $1 AND company_id = $2`,
		id, companyID,
	).Scan(&emp.ID, &emp.CompanyID, &emp.FullName, &emp.Department, &emp.Location, &emp.ShiftID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Employee{}, attendance.ErrEmployeeNotFound
		}
		return attendance.Employee{}, fmt.Errorf("failed to get employee: %w", err)
	}
	return emp, nil
}

// Upsert implements attendance.EmployeeRepository.
func (r *employeeRepository) Upsert(ctx context.Context, emp attendance.Employee) (attendance.Employee, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if emp.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return attendance.Employee{}, fmt.Errorf("generate employee id: %w", err)
		}
		emp.ID = id.String()
	}

	q := GetQuerier(ctx, r.db)

	var saved attendance.Employee
	err := q.QueryRow(ctx, `
		INSERT INTO employees (id, company_id, full_name, department, location, shift_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			department = EXCLUDED.department,
			location = EXCLUDED.location,
			shift_id = EXCLUDED.shift_id
		RETURNING id, company_id, full_name, department, location, shift_id`,
		emp.ID, emp.CompanyID, emp.FullName, emp.Department, emp.Location, emp.ShiftID,
	).Scan(&saved.ID, &saved.CompanyID, &saved.FullName, &saved.Department, &saved.Location, &saved.ShiftID)
	if err != nil {
		return attendance.Employee{}, fmt.Errorf("failed to upsert employee: %w", err)
	}
	return saved, nil
}
