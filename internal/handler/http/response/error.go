package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Auth errors
	case errors.Is(err, jwt.ErrInvalidToken):
		Unauthorized(w, "Invalid token")

	// Attendance domain errors
	case errors.Is(err, attendance.ErrSessionNotFound):
		NotFound(w, "Attendance session not found")
	case errors.Is(err, attendance.ErrEmployeeNotFound):
		NotFound(w, "Employee not found")
	case errors.Is(err, attendance.ErrShiftNotFound):
		NotFound(w, "Shift not found")
	case errors.Is(err, attendance.ErrMalformedTime):
		BadRequest(w, err.Error(), nil)
	case attendance.IsTransitionError(err):
		Conflict(w, err.Error())

	// Live view errors
	case errors.Is(err, live.ErrViewNotFound):
		NotFound(w, "Live view has no subscribers")
	case errors.Is(err, live.ErrRefreshInProgress):
		Conflict(w, "A refresh is already in progress")
	case errors.Is(err, live.ErrOffline):
		ServiceUnavailable(w, "Attendance store is offline")
	case errors.Is(err, live.ErrControllerStopped):
		ServiceUnavailable(w, "Live view is shutting down")
	case errors.Is(err, live.ErrFetchFailed):
		slog.Warn("Live fetch failed", "error", err)
		BadGateway(w, "Failed to load live attendance")

	// Default
	default:
		slog.Error("Unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}
