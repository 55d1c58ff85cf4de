package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/go-chi/jwtauth/v5"
)

type SessionServiceImpl struct {
	attendance.SessionRepository
	calculator *Calculator
}

// transition applies one clock command to a session snapshot.
type transition func(attendance.Session, time.Time) (attendance.Session, error)

// getCompanyID extracts company_id from JWT claims
func (s *SessionServiceImpl) getCompanyID(ctx context.Context) (string, error) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to extract claims from context: %w", err)
	}

	companyID, ok := claims["company_id"].(string)
	if !ok || companyID == "" {
		return "", fmt.Errorf("company_id claim is missing or invalid")
	}
	return companyID, nil
}

// ClockIn implements attendance.SessionService.
func (s *SessionServiceImpl) ClockIn(ctx context.Context, req attendance.ClockInRequest) (attendance.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.SessionResponse{}, err
	}

	companyID, err := s.getCompanyID(ctx)
	if err != nil {
		return attendance.SessionResponse{}, err
	}

	now, err := s.SessionRepository.Now(ctx)
	if err != nil {
		return attendance.SessionResponse{}, fmt.Errorf("failed to read store clock: %w", err)
	}

	// an overnight session still running blocks a new one; a stale one does not
	open, err := s.SessionRepository.GetOpenSession(ctx, req.EmployeeID, companyID)
	switch {
	case err == nil:
		status := attendance.Classify(open, now, s.calculator.Location())
		if status == attendance.StatusActive || status == attendance.StatusOnBreak {
			return attendance.SessionResponse{}, attendance.ErrAlreadyClockedIn
		}
	case !errors.Is(err, attendance.ErrSessionNotFound):
		return attendance.SessionResponse{}, fmt.Errorf("failed to get open session: %w", err)
	}

	date := calendarDate(now, s.calculator.Location())

	existing, err := s.SessionRepository.GetByEmployeeAndDate(ctx, req.EmployeeID, date, companyID)
	if err != nil {
		if !errors.Is(err, attendance.ErrSessionNotFound) {
			return attendance.SessionResponse{}, fmt.Errorf("failed to get session: %w", err)
		}

		next, err := attendance.ClockIn(attendance.Session{
			CompanyID:  companyID,
			EmployeeID: req.EmployeeID,
			Date:       date,
			Status:     attendance.StatusNotStarted,
		}, now)
		if err != nil {
			return attendance.SessionResponse{}, err
		}

		created, err := s.SessionRepository.Create(ctx, next)
		if err != nil {
			if errors.Is(err, attendance.ErrEmployeeNotFound) {
				return attendance.SessionResponse{}, attendance.ErrEmployeeNotFound
			}
			return attendance.SessionResponse{}, fmt.Errorf("failed to create session: %w", err)
		}

		slog.Info("Employee clocked in", "company_id", companyID, "employee_id", req.EmployeeID, "session_id", created.ID)
		return s.respond(created, now), nil
	}

	next, err := attendance.ClockIn(existing, now)
	if err != nil {
		return attendance.SessionResponse{}, err
	}
	if err := s.SessionRepository.Update(ctx, next); err != nil {
		return attendance.SessionResponse{}, fmt.Errorf("failed to update session: %w", err)
	}

	slog.Info("Employee clocked in", "company_id", companyID, "employee_id", req.EmployeeID, "session_id", next.ID)
	return s.respond(next, now), nil
}

// StartBreak implements attendance.SessionService.
func (s *SessionServiceImpl) StartBreak(ctx context.Context, req attendance.BreakRequest) (attendance.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.SessionResponse{}, err
	}
	return s.applyToOpenSession(ctx, req.EmployeeID, "break_start", attendance.StartBreak)
}

// EndBreak implements attendance.SessionService.
func (s *SessionServiceImpl) EndBreak(ctx context.Context, req attendance.BreakRequest) (attendance.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.SessionResponse{}, err
	}
	return s.applyToOpenSession(ctx, req.EmployeeID, "break_end", attendance.EndBreak)
}

// ClockOut implements attendance.SessionService.
func (s *SessionServiceImpl) ClockOut(ctx context.Context, req attendance.ClockOutRequest) (attendance.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.SessionResponse{}, err
	}
	return s.applyToOpenSession(ctx, req.EmployeeID, "clock_out", attendance.ClockOut)
}

func (s *SessionServiceImpl) applyToOpenSession(ctx context.Context, employeeID, action string, apply transition) (attendance.SessionResponse, error) {
	companyID, err := s.getCompanyID(ctx)
	if err != nil {
		return attendance.SessionResponse{}, err
	}

	open, err := s.SessionRepository.GetOpenSession(ctx, employeeID, companyID)
	if err != nil {
		if errors.Is(err, attendance.ErrSessionNotFound) {
			return attendance.SessionResponse{}, attendance.ErrNotClockedIn
		}
		return attendance.SessionResponse{}, fmt.Errorf("failed to get open session: %w", err)
	}

	if issues := attendance.CheckConsistency(open); len(issues) > 0 {
		slog.Warn("Refusing to modify inconsistent session", "session_id", open.ID, "issues", issues)
		return attendance.SessionResponse{}, attendance.ErrInconsistentSession
	}

	now, err := s.SessionRepository.Now(ctx)
	if err != nil {
		return attendance.SessionResponse{}, fmt.Errorf("failed to read store clock: %w", err)
	}

	if attendance.Classify(open, now, s.calculator.Location()) == attendance.StatusIncomplete {
		return attendance.SessionResponse{}, attendance.ErrSessionClosed
	}

	next, err := apply(open, now)
	if err != nil {
		return attendance.SessionResponse{}, err
	}
	if err := s.SessionRepository.Update(ctx, next); err != nil {
		return attendance.SessionResponse{}, fmt.Errorf("failed to update session: %w", err)
	}

	slog.Info("Attendance session updated", "action", action, "company_id", companyID, "employee_id", employeeID, "session_id", next.ID)
	return s.respond(next, now), nil
}

// GetSession implements attendance.SessionService.
func (s *SessionServiceImpl) GetSession(ctx context.Context, req attendance.GetSessionRequest) (attendance.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.SessionResponse{}, err
	}

	companyID, err := s.getCompanyID(ctx)
	if err != nil {
		return attendance.SessionResponse{}, err
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return attendance.SessionResponse{}, fmt.Errorf("failed to parse date: %w", err)
	}

	session, err := s.SessionRepository.GetByEmployeeAndDate(ctx, req.EmployeeID, date, companyID)
	if err != nil {
		if errors.Is(err, attendance.ErrSessionNotFound) {
			return attendance.SessionResponse{}, attendance.ErrSessionNotFound
		}
		return attendance.SessionResponse{}, fmt.Errorf("failed to get session: %w", err)
	}

	now, err := s.SessionRepository.Now(ctx)
	if err != nil {
		return attendance.SessionResponse{}, fmt.Errorf("failed to read store clock: %w", err)
	}

	return s.respond(session, now), nil
}

func (s *SessionServiceImpl) respond(session attendance.Session, eval time.Time) attendance.SessionResponse {
	return attendance.NewSessionResponse(s.calculator.Annotate(session, eval), s.calculator.Location())
}

// calendarDate returns t's calendar day in loc as a UTC midnight, the form
// DATE columns are read back in.
func calendarDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func NewSessionService(sessionRepo attendance.SessionRepository, calculator *Calculator) attendance.SessionService {
	return &SessionServiceImpl{
		SessionRepository: sessionRepo,
		calculator:        calculator,
	}
}
