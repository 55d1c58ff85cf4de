package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/timeutil"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/validator"
	"gopkg.in/yaml.v3"
)

// Catalog is the shift and roster file loaded at startup. It lets a store be
// seeded without the employee service.
//
//	companies:
//	  - id: company-1
//	    shifts:
//	      - {id: day, name: Day, start: "09:00", end: "18:00", grace_minutes: 5}
//	    employees:
//	      - {id: e1, name: Ana, department: Engineering, location: HQ, shift: day}
type Catalog struct {
	Companies []CatalogCompany `yaml:"companies"`
}

type CatalogCompany struct {
	ID        string            `yaml:"id"`
	Shifts    []CatalogShift    `yaml:"shifts"`
	Employees []CatalogEmployee `yaml:"employees"`
}

type CatalogShift struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Start        string `yaml:"start"`
	End          string `yaml:"end"`
	GraceMinutes int    `yaml:"grace_minutes"`
}

type CatalogEmployee struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Department string `yaml:"department"`
	Location   string `yaml:"location"`
	Shift      string `yaml:"shift"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shift catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog document. Unknown keys are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse shift catalog: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (c *Catalog) Validate() error {
	var errs validator.ValidationErrors

	for i, company := range c.Companies {
		prefix := fmt.Sprintf("companies[%d]", i)
		if !validator.IsValidIdentifier(company.ID) {
			errs = append(errs, validator.ValidationError{
				Field:   prefix + ".id",
				Message: "id must be 1-64 letters, digits, '.', '_' or '-'",
			})
		}

		shiftIDs := make(map[string]bool, len(company.Shifts))
		for j, shift := range company.Shifts {
			field := fmt.Sprintf("%s.shifts[%d]", prefix, j)
			if !validator.IsValidIdentifier(shift.ID) {
				errs = append(errs, validator.ValidationError{
					Field:   field + ".id",
					Message: "id must be 1-64 letters, digits, '.', '_' or '-'",
				})
			} else if shiftIDs[shift.ID] {
				errs = append(errs, validator.ValidationError{
					Field:   field + ".id",
					Message: "duplicate shift id " + shift.ID,
				})
			}
			shiftIDs[shift.ID] = true

			if !timeutil.IsValidWallClock(shift.Start) {
				errs = append(errs, validator.ValidationError{
					Field:   field + ".start",
					Message: "start must be in HH:MM format",
				})
			}
			if !timeutil.IsValidWallClock(shift.End) {
				errs = append(errs, validator.ValidationError{
					Field:   field + ".end",
					Message: "end must be in HH:MM format",
				})
			}
			if shift.GraceMinutes < 0 {
				errs = append(errs, validator.ValidationError{
					Field:   field + ".grace_minutes",
					Message: "grace_minutes must not be negative",
				})
			}
		}

		for j, emp := range company.Employees {
			field := fmt.Sprintf("%s.employees[%d]", prefix, j)
			if !validator.IsValidIdentifier(emp.ID) {
				errs = append(errs, validator.ValidationError{
					Field:   field + ".id",
					Message: "id must be 1-64 letters, digits, '.', '_' or '-'",
				})
			}
			if validator.IsEmpty(emp.Name) {
				errs = append(errs, validator.ValidationError{
					Field:   field + ".name",
					Message: "name is required",
				})
			}
			if emp.Shift != "" && !shiftIDs[emp.Shift] {
				errs = append(errs, validator.ValidationError{
					Field:   field + ".shift",
					Message: "unknown shift " + emp.Shift,
				})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Seed upserts every shift and employee of the catalog.
func (c *Catalog) Seed(ctx context.Context, shifts attendance.ShiftRepository, employees attendance.EmployeeRepository) error {
	var shiftCount, employeeCount int

	for _, company := range c.Companies {
		for _, s := range company.Shifts {
			_, err := shifts.Upsert(ctx, attendance.Shift{
				ID:           s.ID,
				CompanyID:    company.ID,
				Name:         s.Name,
				StartTime:    s.Start,
				EndTime:      s.End,
				GraceMinutes: s.GraceMinutes,
			})
			if err != nil {
				return fmt.Errorf("failed to seed shift %s: %w", s.ID, err)
			}
			shiftCount++
		}

		for _, e := range company.Employees {
			emp := attendance.Employee{
				ID:         e.ID,
				CompanyID:  company.ID,
				FullName:   e.Name,
				Department: e.Department,
				Location:   e.Location,
			}
			if e.Shift != "" {
				shiftID := e.Shift
				emp.ShiftID = &shiftID
			}
			if _, err := employees.Upsert(ctx, emp); err != nil {
				return fmt.Errorf("failed to seed employee %s: %w", e.ID, err)
			}
			employeeCount++
		}
	}

	slog.Info("Shift catalog seeded", "companies", len(c.Companies), "shifts", shiftCount, "employees", employeeCount)
	return nil
}
