package registry

import (
	"context"
	"errors"
	"time"

	"github.com/pandodao/wallet-core/core"
)

// maxWeight bounds concurrent read views. A write view acquires all of it.
const maxWeight = 1 << 20

type viewKind uint8

const (
	viewRead viewKind = iota
	viewWrite
)

func (k viewKind) String() string {
	if k == viewWrite {
		return "write"
	}

	return "read"
}

func (k viewKind) weight() int64 {
	if k == viewWrite {
		return maxWeight
	}

	return 1
}

// errBusy is the cause of a rejected TryWrite.
var errBusy = errors.New("another view is active")

func (r *Registry) acquire(ctx context.Context, kind viewKind) error {
	start := time.Now()
	if err := r.sem.Acquire(ctx, kind.weight()); err != nil {
		return core.CoreAccessError(err)
	}

	viewWaitSeconds.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	return nil
}

func (r *Registry) with(kind viewKind, fn func(core.Background) error) error {
	defer r.sem.Release(kind.weight())

	if r.bg == nil {
		return core.ErrNotRunning
	}

	return fn(r.bg)
}

// Read runs fn under a shared view. Any number of read views may be active
// at once. Views are not reentrant and fn must not retain bg.
func (r *Registry) Read(ctx context.Context, fn func(bg core.Background) error) error {
	if err := r.acquire(ctx, viewRead); err != nil {
		return err
	}

	return r.with(viewRead, fn)
}

// Write runs fn under an exclusive view, waiting for active views to end.
func (r *Registry) Write(ctx context.Context, fn func(bg core.Background) error) error {
	if err := r.acquire(ctx, viewWrite); err != nil {
		return err
	}

	return r.with(viewWrite, fn)
}

// TryWrite is Write but fails with CoreAccess instead of waiting.
func (r *Registry) TryWrite(ctx context.Context, fn func(bg core.Background) error) error {
	if err := ctx.Err(); err != nil {
		return core.CoreAccessError(err)
	}

	if !r.sem.TryAcquire(maxWeight) {
		viewRejectedTotal.Inc()
		return core.CoreAccessError(errBusy)
	}

	return r.with(viewWrite, fn)
}

// ReadWallet resolves walletIndex under a read view before calling fn.
func (r *Registry) ReadWallet(ctx context.Context, walletIndex int, fn func(bg core.Background, wallet *core.Wallet) error) error {
	return r.Read(ctx, func(bg core.Background) error {
		wallet, err := walletAt(bg, walletIndex)
		if err != nil {
			return err
		}

		return fn(bg, wallet)
	})
}

// WriteWallet resolves walletIndex under a write view before calling fn.
func (r *Registry) WriteWallet(ctx context.Context, walletIndex int, fn func(bg core.Background, wallet *core.Wallet) error) error {
	return r.Write(ctx, func(bg core.Background) error {
		wallet, err := walletAt(bg, walletIndex)
		if err != nil {
			return err
		}

		return fn(bg, wallet)
	})
}

func walletAt(bg core.Background, index int) (*core.Wallet, error) {
	wallet, err := bg.Wallet(index)
	if err != nil || wallet == nil {
		return nil, core.WalletAccessError(index)
	}

	return wallet, nil
}
