// Package jobs runs the router's background maintenance.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/metrics"
	"github.com/zhouzirui/commerce-router/internal/store"
)

const purgeTimeout = 30 * time.Second

// SessionCleanup periodically deletes sessions idle for longer than the
// retention period. Lapsed sessions are already invisible to routing; this
// only reclaims storage.
type SessionCleanup struct {
	purger    store.SessionPurger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
	scheduler gocron.Scheduler
	logger    *logrus.Entry
}

// NewSessionCleanup creates the job. It does nothing until Start is called.
func NewSessionCleanup(purger store.SessionPurger, retention, interval time.Duration, m *metrics.Metrics) (*SessionCleanup, error) {
	if retention <= 0 || interval <= 0 {
		return nil, fmt.Errorf("session cleanup: retention and interval must be positive")
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &SessionCleanup{
		purger:    purger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		metrics:   m,
		scheduler: scheduler,
		logger:    logging.For("session-cleanup"),
	}, nil
}

// Start registers the purge job and starts the scheduler.
func (c *SessionCleanup) Start() error {
	_, err := c.scheduler.NewJob(
		gocron.DurationJob(c.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
			defer cancel()
			c.RunOnce(ctx)
		}),
		gocron.WithName("purge-expired-sessions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}

	c.scheduler.Start()
	c.logger.WithFields(logrus.Fields{
		"interval":  c.interval.String(),
		"retention": c.retention.String(),
	}).Info("session cleanup scheduled")
	return nil
}

// Stop waits for a running purge to finish and stops the scheduler.
func (c *SessionCleanup) Stop() error {
	return c.scheduler.Shutdown()
}

// RunOnce purges sessions last active before now minus retention.
func (c *SessionCleanup) RunOnce(ctx context.Context) int64 {
	cutoff := c.now().Add(-c.retention)
	n, err := c.purger.Purge(ctx, cutoff)
	if err != nil {
		c.metrics.StoreError("purge")
		c.logger.WithError(err).Warn("session purge failed")
		return 0
	}
	c.metrics.Purged(n)
	if n > 0 {
		c.logger.WithField("purged", n).Info("expired sessions removed")
	}
	return n
}
