package cron

import (
	"context"
	"log/slog"
	"time"
)

// Pinger checks that the session store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OnlineSetter receives the probe outcome.
type OnlineSetter interface {
	SetOnline(online bool)
}

type ConnectivityJobs struct {
	pinger Pinger
	target OnlineSetter
}

func NewConnectivityJobs(pinger Pinger, target OnlineSetter) *ConnectivityJobs {
	return &ConnectivityJobs{
		pinger: pinger,
		target: target,
	}
}

func (j *ConnectivityJobs) RegisterJobs(scheduler *Scheduler, interval time.Duration) {
	scheduler.AddJob("store_connectivity_probe", interval, j.ProbeStore)
}

// ProbeStore pings the store and reports the result to the live views. A
// failed ping is an expected outcome, not a job failure.
func (j *ConnectivityJobs) ProbeStore(ctx context.Context) error {
	err := j.pinger.Ping(ctx)
	if err != nil {
		slog.Warn("Cron: Session store unreachable", "error", err)
	}
	j.target.SetOnline(err == nil)
	return nil
}
