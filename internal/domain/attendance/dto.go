package attendance

import (
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/timeutil"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/validator"
)

// ========================================
// SESSION COMMAND DTOs
// ========================================

type ClockInRequest struct {
	EmployeeID string `json:"employee_id"`
}

func (r *ClockInRequest) Validate() error {
	return validateEmployeeID(r.EmployeeID)
}

type BreakRequest struct {
	EmployeeID string `json:"employee_id"`
}

func (r *BreakRequest) Validate() error {
	return validateEmployeeID(r.EmployeeID)
}

type ClockOutRequest struct {
	EmployeeID string `json:"employee_id"`
}

func (r *ClockOutRequest) Validate() error {
	return validateEmployeeID(r.EmployeeID)
}

func validateEmployeeID(employeeID string) error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(employeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type GetSessionRequest struct {
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date"` // YYYY-MM-DD
}

func (r *GetSessionRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}

	if validator.IsEmpty(r.Date) {
		errs = append(errs, validator.ValidationError{
			Field:   "date",
			Message: "date is required",
		})
	} else if _, valid := validator.IsValidDate(r.Date); !valid {
		errs = append(errs, validator.ValidationError{
			Field:   "date",
			Message: "date must be in YYYY-MM-DD format",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ========================================
// SESSION RESPONSE DTOs
// ========================================

type ShiftResponse struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	StartTime         string  `json:"start_time"`
	EndTime           string  `json:"end_time"`
	GraceMinutes      int     `json:"grace_minutes"`
	IsOvernight       bool    `json:"is_overnight"`
	ExpectedWorkHours float64 `json:"expected_work_hours"`
}

type BreakResponse struct {
	Start        string  `json:"start"`
	End          *string `json:"end,omitempty"`
	StartDisplay string  `json:"start_display"`
	EndDisplay   string  `json:"end_display"`
}

type SessionResponse struct {
	ID           string `json:"id"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Department   string `json:"department"`
	Location     string `json:"location"`
	Date         string `json:"date"`
	Status       string `json:"status"`

	ClockInTime     *string `json:"clock_in_time,omitempty"`
	ClockOutTime    *string `json:"clock_out_time,omitempty"`
	ClockInDisplay  string  `json:"clock_in_display"`
	ClockOutDisplay string  `json:"clock_out_display"`

	Shift  *ShiftResponse  `json:"shift,omitempty"`
	Breaks []BreakResponse `json:"breaks"`

	IsLate               bool    `json:"is_late"`
	LateMinutes          int     `json:"late_minutes"`
	IsInOvertime         bool    `json:"is_in_overtime"`
	OvertimeMinutes      int     `json:"overtime_minutes"`
	FinalOvertimeMinutes int     `json:"final_overtime_minutes"`
	WorkedMinutes        int     `json:"worked_minutes"`
	BreakMinutes         int     `json:"break_minutes"`
	ExpectedWorkHours    float64 `json:"expected_work_hours"`
	WorkedDisplay        string  `json:"worked_display"`
	BreakDisplay         string  `json:"break_display"`
	OvertimeDisplay      string  `json:"overtime_display"`

	DataInconsistent bool     `json:"data_inconsistent"`
	Issues           []string `json:"issues,omitempty"`
}

// NewSessionResponse renders an annotated session. Display times are shown in
// loc.
func NewSessionResponse(a AnnotatedSession, loc *time.Location) SessionResponse {
	s := a.Session
	ann := a.Annotation

	resp := SessionResponse{
		ID:                   s.ID,
		EmployeeID:           s.EmployeeID,
		EmployeeName:         s.EmployeeName,
		Department:           s.Department,
		Location:             s.Location,
		Date:                 s.Date.Format(timeutil.DateLayout),
		Status:               string(a.Status),
		ClockInTime:          rfc3339(s.ClockIn),
		ClockOutTime:         rfc3339(s.ClockOut),
		ClockInDisplay:       timeutil.FormatClockTime(inLocation(s.ClockIn, loc), timeutil.PlaceholderShort),
		ClockOutDisplay:      timeutil.FormatClockTime(inLocation(s.ClockOut, loc), timeutil.PlaceholderShort),
		Breaks:               make([]BreakResponse, 0, len(s.Breaks)),
		IsLate:               ann.IsLate,
		LateMinutes:          ann.LateMinutes,
		IsInOvertime:         ann.IsInOvertime,
		OvertimeMinutes:      ann.OvertimeMinutes,
		FinalOvertimeMinutes: ann.FinalOvertimeMinutes,
		WorkedMinutes:        ann.WorkedMinutes,
		BreakMinutes:         ann.BreakMinutes,
		ExpectedWorkHours:    ann.ExpectedWorkHours,
		WorkedDisplay:        timeutil.FormatDuration(ann.WorkedMinutes),
		BreakDisplay:         timeutil.FormatDuration(ann.BreakMinutes),
		OvertimeDisplay:      timeutil.FormatDuration(max(ann.OvertimeMinutes, ann.FinalOvertimeMinutes)),
		DataInconsistent:     ann.DataInconsistent,
	}

	if s.Shift != nil {
		resp.Shift = &ShiftResponse{
			ID:                s.Shift.ID,
			Name:              s.Shift.Name,
			StartTime:         s.Shift.StartTime,
			EndTime:           s.Shift.EndTime,
			GraceMinutes:      s.Shift.GraceMinutes,
			IsOvernight:       s.Shift.IsOvernight(),
			ExpectedWorkHours: ann.ExpectedWorkHours,
		}
	}

	for _, b := range s.Breaks {
		start := b.Start
		resp.Breaks = append(resp.Breaks, BreakResponse{
			Start:        start.Format(time.RFC3339),
			End:          rfc3339(b.End),
			StartDisplay: timeutil.FormatClockTime(inLocation(&start, loc), timeutil.PlaceholderClock),
			EndDisplay:   timeutil.FormatClockTime(inLocation(b.End, loc), timeutil.PlaceholderClock),
		})
	}

	for _, issue := range ann.Issues {
		resp.Issues = append(resp.Issues, string(issue))
	}

	return resp
}

func rfc3339(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}

func inLocation(t *time.Time, loc *time.Location) *time.Time {
	if t == nil || loc == nil {
		return t
	}
	local := t.In(loc)
	return &local
}
