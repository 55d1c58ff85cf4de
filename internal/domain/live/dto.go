package live

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/validator"
)

// ========================================
// LIVE VIEW REQUESTS
// ========================================

type LiveRequest struct {
	Department string `json:"department"`
	Location   string `json:"location"`
}

// Filter builds the store filter for the caller's company.
func (r LiveRequest) Filter(companyID string) attendance.LiveFilter {
	return attendance.LiveFilter{
		CompanyID:  companyID,
		Department: strings.TrimSpace(r.Department),
		Location:   strings.TrimSpace(r.Location),
	}
}

type VisibilityRequest struct {
	Department string `json:"department"`
	Location   string `json:"location"`
	Visible    *bool  `json:"visible"`
}

func (r *VisibilityRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.Visible == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "visible",
			Message: "visible is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r VisibilityRequest) LiveRequest() LiveRequest {
	return LiveRequest{Department: r.Department, Location: r.Location}
}

// ========================================
// LIVE VIEW RESPONSES
// ========================================

type LiveSummaryResponse struct {
	TotalActive  int `json:"total_active"`
	Working      int `json:"working"`
	OnBreak      int `json:"on_break"`
	Late         int `json:"late"`
	Overtime     int `json:"overtime"`
	Incomplete   int `json:"incomplete"`
	Inconsistent int `json:"inconsistent"`
}

type LiveStateResponse struct {
	Department         string                       `json:"department"`
	Location           string                       `json:"location"`
	Summary            *LiveSummaryResponse         `json:"summary"`
	Sessions           []attendance.SessionResponse `json:"sessions"`
	EvaluationInstant  *string                      `json:"evaluation_instant"`
	Loading            bool                         `json:"loading"`
	Online             bool                         `json:"online"`
	LastUpdated        *string                      `json:"last_updated"`
	LastError          *string                      `json:"last_error"`
	Version            uint64                       `json:"version"`
	IsConnectedOrFresh bool                         `json:"is_connected_or_fresh"`
}

// NewLiveStateResponse renders the state as seen at now. Session display times
// are shown in loc.
func NewLiveStateResponse(filter attendance.LiveFilter, state LiveViewState, now time.Time, staleAfter time.Duration, loc *time.Location) LiveStateResponse {
	resp := LiveStateResponse{
		Department:         filter.Department,
		Location:           filter.Location,
		Sessions:           []attendance.SessionResponse{},
		Loading:            state.Loading,
		Online:             state.Online,
		Version:            state.Version,
		IsConnectedOrFresh: state.IsConnectedOrFresh(now, staleAfter),
	}

	if !state.LastUpdated.IsZero() {
		updated := state.LastUpdated.Format(time.RFC3339)
		resp.LastUpdated = &updated
	}
	if state.LastError != nil {
		msg := state.LastError.Error()
		resp.LastError = &msg
	}

	if state.Data != nil {
		sum := state.Data.Summary
		resp.Summary = &LiveSummaryResponse{
			TotalActive:  sum.TotalActive,
			Working:      sum.Working,
			OnBreak:      sum.OnBreak,
			Late:         sum.Late,
			Overtime:     sum.Overtime,
			Incomplete:   sum.Incomplete,
			Inconsistent: sum.Inconsistent,
		}
		if !sum.EvaluationInstant.IsZero() {
			eval := sum.EvaluationInstant.Format(time.RFC3339)
			resp.EvaluationInstant = &eval
		}
		for _, s := range state.Data.Sessions {
			resp.Sessions = append(resp.Sessions, attendance.NewSessionResponse(s, loc))
		}
	}

	return resp
}

// StreamTokenResponse carries a short-lived token for the EventSource stream.
type StreamTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
