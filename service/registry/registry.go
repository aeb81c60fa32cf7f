package registry

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/pandodao/wallet-core/core"
	"golang.org/x/sync/semaphore"
)

// Registry owns the single service instance slot of the process and hands
// out access views to it.
type Registry struct {
	open   core.Opener
	logger *slog.Logger

	sem     *semaphore.Weighted
	bg      core.Background
	running atomic.Bool
}

func New(open core.Opener, logger *slog.Logger) *Registry {
	return &Registry{
		open:   open,
		logger: logger.With("service", "registry"),
		sem:    semaphore.NewWeighted(maxWeight),
	}
}

// Start opens the instance stored under path and installs it.
func (r *Registry) Start(ctx context.Context, path string) error {
	if err := r.acquire(ctx, viewWrite); err != nil {
		return err
	}
	defer r.sem.Release(maxWeight)

	if r.bg != nil {
		return core.ErrAlreadyRunning
	}

	bg, err := r.open(ctx, path)
	if err != nil {
		r.logger.Error("registry.Start", "path", path, "err", err)
		return core.BackgroundError(err)
	}

	r.bg = bg
	r.running.Store(true)
	runningGauge.Set(1)

	r.logger.Info("service started", "path", path)
	return nil
}

// Stop waits for in-flight views, closes the instance and clears the slot.
// The slot is cleared even when Close fails.
func (r *Registry) Stop(ctx context.Context) error {
	if err := r.acquire(ctx, viewWrite); err != nil {
		return err
	}
	defer r.sem.Release(maxWeight)

	if r.bg == nil {
		return core.ErrNotRunning
	}

	bg := r.bg
	r.bg = nil
	r.running.Store(false)
	runningGauge.Set(0)

	if err := bg.Close(); err != nil {
		r.logger.Error("registry.Stop", "err", err)
		return core.BackgroundError(err)
	}

	r.logger.Info("service stopped")
	return nil
}

// IsRunning never blocks.
func (r *Registry) IsRunning() bool {
	return r.running.Load()
}
