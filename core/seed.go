package core

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
)

// Seed holds transient secret material for one privileged operation.
// It must be wiped before it goes out of scope; Wipe is idempotent.
type Seed struct {
	mu sync.Mutex
	b  []byte
}

// NewSeed takes ownership of b.
func NewSeed(b []byte) *Seed {
	return &Seed{b: b}
}

// Bytes returns the live buffer, or nil once wiped. Callers must not keep it.
func (s *Seed) Bytes() []byte {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b
}

func (s *Seed) Len() int {
	return len(s.Bytes())
}

func (s *Seed) Wiped() bool {
	return s.Bytes() == nil
}

func (s *Seed) Wipe() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.b)
	s.b = nil
}

func (s *Seed) LogValue() slog.Value {
	return slog.StringValue("[redacted]")
}

// UseSeed runs fn with seed and wipes it on every exit path, panics included.
func UseSeed(seed *Seed, fn func(*Seed) error) error {
	defer seed.Wipe()
	return fn(seed)
}

// SessionToken is the hex encoding of an opaque session blob produced by a
// password unlock. Its internal structure belongs to the wallet service.
type SessionToken string

func EncodeSession(b []byte) SessionToken {
	return SessionToken(hex.EncodeToString(b))
}

func DecodeSession(token SessionToken) ([]byte, error) {
	if token == "" {
		return nil, DecodeSessionError(errors.New("empty session"))
	}

	b, err := hex.DecodeString(string(token))
	if err != nil {
		return nil, DecodeSessionError(err)
	}

	return b, nil
}

func (t SessionToken) LogValue() slog.Value {
	return slog.StringValue("[redacted]")
}
