package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
)

type AttendanceJobs struct {
	sessionRepo attendance.SessionRepository
	loc         *time.Location
}

func NewAttendanceJobs(sessionRepo attendance.SessionRepository, loc *time.Location) *AttendanceJobs {
	if loc == nil {
		loc = time.UTC
	}
	return &AttendanceJobs{
		sessionRepo: sessionRepo,
		loc:         loc,
	}
}

func (j *AttendanceJobs) RegisterJobs(scheduler *Scheduler, interval time.Duration) {
	scheduler.AddJob("mark_incomplete_sessions", interval, j.MarkIncompleteSessions)
}

// MarkIncompleteSessions persists the incomplete status of sessions that were
// left open on an earlier day. Overnight sessions from yesterday stay open.
func (j *AttendanceJobs) MarkIncompleteSessions(ctx context.Context) error {
	now, err := j.sessionRepo.Now(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store clock: %w", err)
	}

	local := now.In(j.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	count, err := j.sessionRepo.MarkIncomplete(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to mark incomplete sessions: %w", err)
	}

	if count > 0 {
		slog.Info("Cron: Marked sessions incomplete", "count", count, "before", today.Format("2006-01-02"))
	}
	return nil
}
