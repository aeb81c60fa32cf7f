package confirmer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/pandodao/wallet-core/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	core.ChainClient

	mu       sync.Mutex
	statuses map[string]core.TransactionStatus
	queried  []string
}

func (c *fakeClient) TransactionStatus(_ context.Context, hash string) (core.TransactionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queried = append(c.queried, hash)
	status, ok := c.statuses[hash]
	if !ok {
		return 0, errors.New("node unavailable")
	}
	return status, nil
}

func (c *fakeClient) Balances(context.Context, *core.Token, []string) ([]*big.Int, error) {
	return nil, nil
}

type fakeBackground struct {
	core.Background

	wallets []*core.Wallet
	client  *fakeClient
	updates int
}

func (f *fakeBackground) Wallets() []*core.Wallet { return f.wallets }

func (f *fakeBackground) PendingHistory(_ context.Context, limit int) ([]*core.HistoricalTransaction, error) {
	var txs []*core.HistoricalTransaction
	for _, w := range f.wallets {
		for _, tx := range w.History {
			if tx.Status == core.TransactionStatusPending && len(txs) < limit {
				txs = append(txs, tx)
			}
		}
	}
	return txs, nil
}

func (f *fakeBackground) ChainClient(context.Context, uint64) (core.ChainClient, error) {
	return f.client, nil
}

func (f *fakeBackground) UpdateHistoryStatus(_ context.Context, walletIndex int, hash string, status core.TransactionStatus) error {
	f.updates++
	for _, tx := range f.wallets[walletIndex].History {
		if tx.Hash == hash {
			tx.Status = status
		}
	}
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

	if walletIndex >= len(g.bg.wallets) {
		return core.WalletAccessError(walletIndex)
	}
	return fn(g.bg, g.bg.wallets[walletIndex])
}

func TestConfirmer(t *testing.T) {
	ctx := context.Background()

	history := []*core.HistoricalTransaction{
		{WalletID: "w0", Hash: "0x1", ChainID: 56, Status: core.TransactionStatusPending},
		{WalletID: "w0", Hash: "0x2", ChainID: 56, Status: core.TransactionStatusPending},
		{WalletID: "w0", Hash: "0x3", ChainID: 56, Status: core.TransactionStatusConfirmed},
		{WalletID: "w0", Hash: "0x4", ChainID: 56, Status: core.TransactionStatusPending},
	}

	client := &fakeClient{statuses: map[string]core.TransactionStatus{
		"0x1": core.TransactionStatusConfirmed,
		"0x2": core.TransactionStatusPending,
		"0x3": core.TransactionStatusRejected,
	}}

	bg := &fakeBackground{
		wallets: []*core.Wallet{{ID: "w0", History: history}},
		client:  client,
	}

	w := New(&fakeGuard{bg: bg}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := w.run(ctx)
	require.Error(t, err, "0x4 lookup fails")

	assert.ElementsMatch(t, []string{"0x1", "0x2", "0x4"}, client.queried)
	assert.Equal(t, 1, bg.updates)
	assert.Equal(t, core.TransactionStatusConfirmed, history[0].Status)
	assert.Equal(t, core.TransactionStatusPending, history[1].Status)
	assert.Equal(t, core.TransactionStatusConfirmed, history[2].Status)
	assert.Equal(t, core.TransactionStatusPending, history[3].Status)
}

func TestConfirmerSkipsUnknownWallet(t *testing.T) {
	client := &fakeClient{statuses: map[string]core.TransactionStatus{"0x1": core.TransactionStatusConfirmed}}
	bg := &fakeBackground{
		wallets: []*core.Wallet{{ID: "w0", History: []*core.HistoricalTransaction{
			{WalletID: "gone", Hash: "0x1", ChainID: 56, Status: core.TransactionStatusPending},
		}}},
		client: client,
	}

	w := New(&fakeGuard{bg: bg}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, w.run(context.Background()), "nothing to settle")
	assert.Empty(t, client.queried)
	assert.Zero(t, bg.updates)
}

func TestConfirmerDry(t *testing.T) {
	bg := &fakeBackground{wallets: []*core.Wallet{{ID: "w0"}}, client: &fakeClient{}}
	w := New(&fakeGuard{bg: bg}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, w.run(context.Background()))
	assert.Zero(t, bg.updates)
}
