package cron

import (
	"context"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/go-co-op/gocron"

	"github.com/dockpage/dockpage/collector"
	"github.com/dockpage/dockpage/config"
	"github.com/dockpage/dockpage/page"
	"github.com/dockpage/dockpage/system"
)

const ErrCycleRunning = errors.Sentinel("cron: cycle already running")

var o system.AtomicBool

// Scheduler configures the refresh job for dockpage and returns the scheduler
// instance to the caller. This should only be called once per application
// lifecycle, additional calls will result in an error being returned.
func Scheduler(ctx context.Context, c *collector.Collector, s *page.Synchronizer) (*gocron.Scheduler, error) {
	if !o.SwapIf(true) {
		return nil, errors.New("cron: cannot call scheduler more than once in application lifecycle")
	}

	cycle := refreshCycle{
		mu:        system.NewAtomicBool(false),
		collector: c,
		page:      s,
	}

	sched := gocron.NewScheduler(time.UTC)
	_, _ = sched.Tag("refresh").Every(config.Get().RefreshInterval).StartImmediately().Do(func() {
		if err := cycle.Run(ctx); err != nil {
			if errors.Is(err, ErrCycleRunning) {
				log.WithField("cron", "refresh").Warn("cron: cycle is already running, skipping...")
			} else {
				log.WithField("error", err).Error("cron: refresh cycle failed")
			}
		}
	})

	return sched, nil
}
