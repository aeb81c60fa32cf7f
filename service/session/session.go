package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pandodao/wallet-core/core"
)

// Guard is the part of the registry the resolver needs.
type Guard interface {
	ReadWallet(ctx context.Context, walletIndex int, fn func(bg core.Background, wallet *core.Wallet) error) error
}

var errUnknownUnlock = errors.New("unknown unlock method")

type attemptState struct {
	failed      int
	lockedUntil time.Time
}

// Resolver turns a password or a session token into wallet seed bytes.
type Resolver struct {
	guard  Guard
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	attempts map[int]*attemptState
}

func New(guard Guard, logger *slog.Logger) *Resolver {
	return &Resolver{
		guard:    guard,
		logger:   logger.With("service", "session"),
		now:      time.Now,
		attempts: map[int]*attemptState{},
	}
}

// Resolve returns the seed of the wallet at walletIndex. Exactly one unlock
// path runs; a failed session is never retried with a password. The caller
// must wipe the seed, or use With.
func (r *Resolver) Resolve(ctx context.Context, walletIndex int, unlock core.Unlock) (*core.Seed, error) {
	switch u := unlock.(type) {
	case *core.PasswordUnlock:
		if u == nil {
			return nil, core.BackgroundError(core.ErrPasswordRequired)
		}

		defer clear(u.Password)
		seed, session, err := r.password(ctx, walletIndex, u.Password, u.Devices)
		clear(session)
		return seed, err
	case *core.SessionUnlock:
		if u == nil {
			return nil, core.DecodeSessionError(errors.New("empty session"))
		}

		return r.session(ctx, walletIndex, u.Token, u.Devices)
	default:
		return nil, core.BackgroundError(errUnknownUnlock)
	}
}

// With resolves the seed and scrubs it once fn returns, on every path.
func (r *Resolver) With(ctx context.Context, walletIndex int, unlock core.Unlock, fn func(seed *core.Seed) error) error {
	seed, err := r.Resolve(ctx, walletIndex, unlock)
	if err != nil {
		return err
	}

	return core.UseSeed(seed, fn)
}

// Login checks password and returns a fresh session token bound to devices.
func (r *Resolver) Login(ctx context.Context, walletIndex int, password []byte, devices []string) (core.SessionToken, error) {
	defer clear(password)

	seed, session, err := r.password(ctx, walletIndex, password, devices)
	if err != nil {
		return "", err
	}
	seed.Wipe()

	token := core.EncodeSession(session)
	clear(session)
	return token, nil
}

func (r *Resolver) session(ctx context.Context, walletIndex int, token core.SessionToken, devices []string) (*core.Seed, error) {
	session, err := core.DecodeSession(token)
	if err != nil {
		return nil, err
	}
	defer clear(session)

	var seed *core.Seed
	err = r.guard.ReadWallet(ctx, walletIndex, func(bg core.Background, _ *core.Wallet) error {
		seed, err = bg.UnlockWithSession(ctx, session, devices, walletIndex)
		return err
	})

	if err != nil {
		seed.Wipe()
		r.logger.Debug("session unlock failed", "wallet", walletIndex, "err", err)
		return nil, core.BackgroundError(err)
	}

	return seed, nil
}

func (r *Resolver) password(ctx context.Context, walletIndex int, password []byte, devices []string) (*core.Seed, []byte, error) {
	if len(password) == 0 {
		return nil, nil, core.BackgroundError(core.ErrPasswordRequired)
	}

	if err := r.checkLocked(walletIndex); err != nil {
		return nil, nil, err
	}

	var (
		seed    *core.Seed
		session []byte
	)

	err := r.guard.ReadWallet(ctx, walletIndex, func(bg core.Background, _ *core.Wallet) error {
		var err error
		seed, session, err = bg.UnlockWithPassword(ctx, password, devices, walletIndex)
		return err
	})

	if err != nil {
		seed.Wipe()
		if errors.Is(err, core.ErrInvalidPassword) {
			r.recordFailure(walletIndex)
		}

		r.logger.Debug("password unlock failed", "wallet", walletIndex, "err", err)
		return nil, nil, core.BackgroundError(err)
	}

	r.resetAttempts(walletIndex)
	return seed, session, nil
}

func (r *Resolver) checkLocked(walletIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.attempts[walletIndex]
	if ok && r.now().Before(state.lockedUntil) {
		return core.BackgroundError(core.ErrPasswordLocked)
	}

	return nil
}

func (r *Resolver) recordFailure(walletIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.attempts[walletIndex]
	if !ok {
		state = &attemptState{}
		r.attempts[walletIndex] = state
	}

	state.failed++
	state.lockedUntil = r.now().Add(failedAttemptBackoff(state.failed))
}

func (r *Resolver) resetAttempts(walletIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, walletIndex)
}

func failedAttemptBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	// 1s, 2s, 4s... up to 32s
	shift := min(attempt-1, 5)
	return time.Second * time.Duration(1<<shift)
}
