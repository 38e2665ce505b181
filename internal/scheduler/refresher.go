package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher is the part of the rates service the scheduler drives.
type Refresher interface {
	RefreshIfStale(ctx context.Context) (bool, error)
}

// Scheduler keeps the cache file warm while the HTTP server runs, so request
// handlers rarely pay for a fetch.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	logger    *logrus.Logger
	timeout   time.Duration
}

// New creates a scheduler running refresher on schedule, a cron expression or
// descriptor such as "@every 1h".
func New(schedule string, refresher Refresher, logger *logrus.Logger, timeout time.Duration) (*Scheduler, error) {
	scheduler := &Scheduler{
		cron:      cron.New(),
		refresher: refresher,
		logger:    logger,
		timeout:   timeout,
	}
	if _, err := scheduler.cron.AddFunc(schedule, scheduler.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return scheduler, nil
}

// Start runs one refresh immediately and then follows the schedule.
func (scheduler *Scheduler) Start() {
	go scheduler.RunOnce()
	scheduler.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish or ctx to end.
func (scheduler *Scheduler) Stop(ctx context.Context) {
	done := scheduler.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce refreshes the cache if it is stale.
func (scheduler *Scheduler) RunOnce() {
	ctx := context.Background()
	if scheduler.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scheduler.timeout)
		defer cancel()
	}

	refreshed, err := scheduler.refresher.RefreshIfStale(ctx)
	if err != nil {
		scheduler.logger.Warnf("scheduled refresh failed: %v", err)
		return
	}
	scheduler.logger.WithField("refreshed", refreshed).Debug("scheduled refresh finished")
}
