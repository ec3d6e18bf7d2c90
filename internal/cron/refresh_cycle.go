package cron

import (
	"context"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/dockpage/dockpage/collector"
	"github.com/dockpage/dockpage/page"
	"github.com/dockpage/dockpage/system"
)

type refreshCycle struct {
	mu        *system.AtomicBool
	collector *collector.Collector
	page      *page.Synchronizer
}

// Run executes one full collect-then-sync pass. If a previous cycle is still
// in flight the call returns ErrCycleRunning instead of racing it: two
// concurrent cycles would fight over the pending block handle and either
// delete a block the other just created or leak a duplicate.
func (rc *refreshCycle) Run(ctx context.Context) error {
	if !rc.mu.SwapIf(true) {
		return errors.WithStack(ErrCycleRunning)
	}
	defer rc.mu.Store(false)

	l := log.WithField("cycle", uuid.New().String()[:8])

	stats, err := rc.collector.Collect(ctx)
	if err != nil {
		return errors.WrapIf(err, "cron: failed to list running containers")
	}
	l.WithField("containers", len(stats)).Debug("collected container stats")

	if err := rc.page.Sync(ctx, stats); err != nil {
		return err
	}
	l.WithField("containers", len(stats)).Info("refreshed stats block on destination page")

	return nil
}
