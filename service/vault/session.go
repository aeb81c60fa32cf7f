package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/pandodao/wallet-core/core"
	"github.com/zyedidia/generic/mapset"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sessionVersion  = 1
	sessionInfo     = "wallet-core/session/v1"
	sessionSecretSz = 32
)

// NewSessionSecret returns per wallet key material for sealing sessions.
func NewSessionSecret() ([]byte, error) {
	b := make([]byte, sessionSecretSz)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}

	return b, nil
}

// DevicesDigest hashes the device identifier set. Order and duplicates do
// not matter.
func DevicesDigest(devices []string) []byte {
	set := mapset.New[string]()
	for _, d := range devices {
		set.Put(d)
	}

	ids := make([]string, 0, set.Size())
	set.Each(func(id string) {
		ids = append(ids, id)
	})
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}

	return h.Sum(nil)
}

// MatchDevices compares devices against an enrolled digest. An empty
// enrolled digest accepts any set.
func MatchDevices(enrolled []byte, devices []string) bool {
	if len(enrolled) == 0 {
		return true
	}

	return subtle.ConstantTimeCompare(enrolled, DevicesDigest(devices)) == 1
}

func sessionKey(secret []byte, devices []string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, secret, DevicesDigest(devices), []byte(sessionInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}

	return key, nil
}

// SealSession binds seed to the wallet and device set. The layout is
// version | nonce | seal(issued_at | seed).
func SealSession(secret []byte, walletID string, devices []string, seed *core.Seed, now time.Time) ([]byte, error) {
	key, err := sessionKey(secret, devices)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, 8, 8+seed.Len())
	binary.BigEndian.PutUint64(plain, uint64(now.Unix()))
	plain = append(plain, seed.Bytes()...)
	defer clear(plain)

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plain)+aead.Overhead())
	out[0] = sessionVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}

	return aead.Seal(out, out[1:], plain, []byte(walletID)), nil
}

// OpenSession recovers the seed sealed by SealSession. A zero ttl never
// expires.
func OpenSession(secret []byte, walletID string, devices []string, session []byte, ttl time.Duration, now time.Time) (*core.Seed, error) {
	const header = 1 + chacha20poly1305.NonceSizeX
	if len(session) < header+8+chacha20poly1305.Overhead || session[0] != sessionVersion {
		return nil, core.ErrInvalidSession
	}

	key, err := sessionKey(secret, devices)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(nil, session[1:header], session[header:], []byte(walletID))
	if err != nil {
		return nil, core.ErrInvalidSession
	}

	issuedAt := time.Unix(int64(binary.BigEndian.Uint64(plain[:8])), 0)
	if ttl > 0 && now.Sub(issuedAt) > ttl {
		clear(plain)
		return nil, core.ErrSessionExpired
	}

	seed := make([]byte, len(plain)-8)
	copy(seed, plain[8:])
	clear(plain)
	return core.NewSeed(seed), nil
}
