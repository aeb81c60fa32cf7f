package vault

import (
	"testing"
	"time"

	"github.com/pandodao/wallet-core/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap costs keep the tests fast
var testParams = Params{Time: 1, MemoryKB: 64, Threads: 1}

func TestEnvelope(t *testing.T) {
	v := New(testParams)
	secret := []byte("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about")

	env, seed, err := v.Create([]byte("test_password"), secret)
	require.NoError(t, err)
	defer seed.Wipe()

	raw, err := env.Marshal()
	require.NoError(t, err)

	parsed, err := ParseEnvelope(raw)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"correct password", "test_password", nil},
		{"wrong password", "wrong_password", core.ErrInvalidPassword},
		{"empty password", "", core.ErrPasswordRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unlocked, err := parsed.Unlock([]byte(tt.password))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			defer unlocked.Wipe()
			assert.Equal(t, seed.Bytes(), unlocked.Bytes())

			got, err := parsed.Open(unlocked)
			require.NoError(t, err)
			assert.Equal(t, secret, got)
		})
	}
}

func TestParseEnvelopeRejectsUnknown(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"version":2,"kdf":"argon2id"}`))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`{"version":1,"kdf":"scrypt"}`))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestDevicesDigest(t *testing.T) {
	a := DevicesDigest([]string{"phone", "laptop"})
	b := DevicesDigest([]string{"laptop", "phone", "phone"})
	c := DevicesDigest([]string{"laptop"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	assert.True(t, MatchDevices(a, []string{"phone", "laptop"}))
	assert.False(t, MatchDevices(a, []string{"laptop"}))
	assert.True(t, MatchDevices(nil, []string{"anything"}))
}

func TestSession(t *testing.T) {
	secret, err := NewSessionSecret()
	require.NoError(t, err)

	devices := []string{"device-a"}
	now := time.Unix(1_700_000_000, 0)
	seed := core.NewSeed([]byte("0123456789abcdef0123456789abcdef"))

	session, err := SealSession(secret, "wallet-1", devices, seed, now)
	require.NoError(t, err)

	tests := []struct {
		name     string
		walletID string
		devices  []string
		session  []byte
		ttl      time.Duration
		at       time.Time
		wantErr  error
	}{
		{"valid", "wallet-1", devices, session, time.Hour, now.Add(time.Minute), nil},
		{"no expiry", "wallet-1", devices, session, 0, now.Add(1000 * time.Hour), nil},
		{"expired", "wallet-1", devices, session, time.Hour, now.Add(2 * time.Hour), core.ErrSessionExpired},
		{"other device", "wallet-1", []string{"device-b"}, session, time.Hour, now, core.ErrInvalidSession},
		{"other wallet", "wallet-2", devices, session, time.Hour, now, core.ErrInvalidSession},
		{"truncated", "wallet-1", devices, session[:10], time.Hour, now, core.ErrInvalidSession},
		{"bad version", "wallet-1", devices, append([]byte{9}, session[1:]...), time.Hour, now, core.ErrInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OpenSession(secret, tt.walletID, tt.devices, tt.session, tt.ttl, tt.at)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, seed.Bytes(), got.Bytes())
		})
	}
}
