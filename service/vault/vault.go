package vault

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/pandodao/wallet-core/core"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	kdfArgon2id     = "argon2id"
	saltSize        = 16
)

// Params are the argon2id costs used for new envelopes. Existing envelopes
// keep the costs they were sealed with.
type Params struct {
	Time     uint32 `mapstructure:"time"`
	MemoryKB uint32 `mapstructure:"memory_kb"`
	Threads  uint8  `mapstructure:"threads"`
}

var DefaultParams = Params{
	Time:     2,
	MemoryKB: 64 * 1024,
	Threads:  1,
}

// Envelope is the persisted form of a password protected wallet secret.
type Envelope struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Time       uint32 `json:"kdf_time"`
	MemoryKB   uint32 `json:"kdf_memory_kb"`
	Threads    uint8  `json:"kdf_threads"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func ParseEnvelope(raw json.RawMessage) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}

	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}

	if env.KDF != kdfArgon2id {
		return nil, fmt.Errorf("unsupported kdf: %s", env.KDF)
	}

	return &env, nil
}

func (env *Envelope) Marshal() (json.RawMessage, error) {
	return json.Marshal(env)
}

type Vault struct {
	params Params
}

func New(params Params) *Vault {
	if params.Time == 0 || params.MemoryKB == 0 || params.Threads == 0 {
		params = DefaultParams
	}

	return &Vault{params: params}
}

// Create derives a seed from password and seals secret under it. The
// caller owns the returned seed.
func (v *Vault) Create(password, secret []byte) (*Envelope, *core.Seed, error) {
	if len(password) == 0 {
		return nil, nil, core.ErrPasswordRequired
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}

	env := &Envelope{
		Version:  envelopeVersion,
		KDF:      kdfArgon2id,
		Time:     v.params.Time,
		MemoryKB: v.params.MemoryKB,
		Threads:  v.params.Threads,
		Salt:     salt,
	}

	seed := env.derive(password)
	aead, err := chacha20poly1305.NewX(seed.Bytes())
	if err != nil {
		seed.Wipe()
		return nil, nil, err
	}

	env.Nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(env.Nonce); err != nil {
		seed.Wipe()
		return nil, nil, err
	}

	env.Ciphertext = aead.Seal(nil, env.Nonce, secret, nil)
	return env, seed, nil
}

func (env *Envelope) derive(password []byte) *core.Seed {
	key := argon2.IDKey(password, env.Salt, env.Time, env.MemoryKB, env.Threads, chacha20poly1305.KeySize)
	return core.NewSeed(key)
}

// Unlock derives the seed for password and checks it against the envelope.
func (env *Envelope) Unlock(password []byte) (*core.Seed, error) {
	if len(password) == 0 {
		return nil, core.ErrPasswordRequired
	}

	seed := env.derive(password)
	secret, err := env.Open(seed)
	if err != nil {
		seed.Wipe()
		return nil, err
	}

	clear(secret)
	return seed, nil
}

// Open returns the sealed secret. The caller must clear it after use.
func (env *Envelope) Open(seed *core.Seed) ([]byte, error) {
	if seed.Len() != chacha20poly1305.KeySize {
		return nil, core.ErrInvalidPassword
	}

	aead, err := chacha20poly1305.NewX(seed.Bytes())
	if err != nil {
		return nil, err
	}

	secret, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, core.ErrInvalidPassword
	}

	return secret, nil
}
