package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cleaner periodically drops relay envelopes that outlived the purge window.
type Cleaner struct {
	cron    *cron.Cron
	signals expiredPurger
	timeout time.Duration
	log     *slog.Logger
}

func NewCleaner(signals expiredPurger, schedule string, lg *slog.Logger) (*Cleaner, error) {
	if lg == nil {
		lg = slog.Default()
	}
	cl := cron.PrintfLogger(slog.NewLogLogger(lg.Handler(), slog.LevelDebug))
	c := &Cleaner{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		signals: signals,
		timeout: 30 * time.Second,
		log:     lg,
	}
	if _, err := c.cron.AddFunc(schedule, c.tick); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cleaner) Start() { c.cron.Start() }

// Stop waits for a running sweep or ctx, whichever comes first.
func (c *Cleaner) Stop(ctx context.Context) {
	done := c.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (c *Cleaner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if _, err := c.RunOnce(ctx); err != nil {
		c.log.Warn("signal cleanup failed", "err", err)
	}
}

func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	n, err := c.signals.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.Debug("signal cleanup", "purged", n)
	}
	return n, nil
}
