package balancer

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/pandodao/wallet-core/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	core.ChainClient

	mu        sync.Mutex
	calls     int
	addresses [][]string
}

func (c *fakeClient) Balances(_ context.Context, token *core.Token, addresses []string) ([]*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.addresses = append(c.addresses, addresses)

	out := make([]*big.Int, len(addresses))
	for i := range addresses {
		out[i] = big.NewInt(int64(token.Decimals) * int64(i+1))
	}
	return out, nil
}

type fakeBackground struct {
	core.Background

	wallets []*core.Wallet
	client  *fakeClient
	updates int
}

func (f *fakeBackground) Wallets() []*core.Wallet { return f.wallets }

func (f *fakeBackground) ChainClient(context.Context, uint64) (core.ChainClient, error) {
	return f.client, nil
}

func (f *fakeBackground) SetTokenBalances(_ context.Context, walletIndex, tokenIndex int, balances map[int]string) error {
	f.updates++
	f.wallets[walletIndex].Tokens[tokenIndex].Balances = balances
	return nil
}

type fakeGuard struct {
	mu sync.Mutex
	bg *fakeBackground
}

func (g *fakeGuard) Read(_ context.Context, fn func(core.Background) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.bg)
}

func (g *fakeGuard) WriteWallet(_ context.Context, walletIndex int, fn func(core.Background, *core.Wallet) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.bg, g.bg.wallets[walletIndex])
}

func TestBalancer(t *testing.T) {
	ctx := context.Background()

	wallet := &core.Wallet{
		ID: "w0",
		Accounts: []*core.Account{
			{Address: "0xa", ChainID: 56},
			{Address: "zil1b", ChainID: 1},
			{Address: "0xc", ChainID: 56},
		},
		Tokens: []*core.Token{
			{Symbol: "BNB", Decimals: 18, ChainID: 56, Native: true},
			{Symbol: "ZIL", Decimals: 12, ChainID: 1, Native: true},
			{Symbol: "ETH", Decimals: 18, ChainID: 1337},
		},
	}

	client := &fakeClient{}
	bg := &fakeBackground{wallets: []*core.Wallet{wallet}, client: client}
	w := New(&fakeGuard{bg: bg}, Config{Interval: time.Minute}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, w.run(ctx))
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, 2, bg.updates)
	assert.Equal(t, map[int]string{0: "18", 2: "36"}, wallet.Tokens[0].Balances)
	assert.Equal(t, map[int]string{1: "12"}, wallet.Tokens[1].Balances)
	assert.Nil(t, wallet.Tokens[2].Balances)

	// unchanged balances are not written again
	require.NoError(t, w.run(ctx))
	assert.Equal(t, 4, client.calls)
	assert.Equal(t, 2, bg.updates)
}

func TestNewRequiresInterval(t *testing.T) {
	assert.Panics(t, func() {
		New(&fakeGuard{}, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})
}

func TestUnchanged(t *testing.T) {
	tests := []struct {
		name string
		prev map[int]string
		next map[int]string
		want bool
	}{
		{"empty prev", nil, map[int]string{0: "1"}, false},
		{"same", map[int]string{0: "1", 1: "2"}, map[int]string{0: "1"}, true},
		{"leading zero", map[int]string{0: "01"}, map[int]string{0: "1"}, true},
		{"changed", map[int]string{0: "1"}, map[int]string{0: "2"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unchanged(tt.prev, tt.next))
		})
	}
}
