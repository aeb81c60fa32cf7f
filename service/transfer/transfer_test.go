package transfer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/keychain"
	"github.com/pandodao/wallet-core/service/registry"
	"github.com/pandodao/wallet-core/service/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const evmRecipient = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"

var (
	bsc = &core.Provider{ChainID: 56, Name: "BSC", Kind: core.ChainKindEVM, Symbol: "BNB", Decimals: 18, Slip44: 60}
	zil = &core.Provider{ChainID: 1, Name: "Zilliqa", Kind: core.ChainKindScilla, Symbol: "ZIL", Decimals: 12, Slip44: 313}
)

type fakeClient struct {
	reg       *registry.Registry
	chainID   uint64
	hash      string
	estimates int
	broadcast int
	// lockFree records whether a write view was available during Broadcast.
	lockFree bool
	// estimating and during run inside EstimateGasBatch and Broadcast.
	estimating func()
	during     func()
}

func (c *fakeClient) ChainID() uint64 { return c.chainID }

func (c *fakeClient) EstimateGasBatch(_ context.Context, _ *core.TransactionRequest, _ string, probes int, _ *core.GasOverride) (*core.GasEstimate, error) {
	c.estimates++
	if c.estimating != nil {
		c.estimating()
	}
	return &core.GasEstimate{Nonce: 7, GasLimit: 21000, GasPrice: big.NewInt(5_000_000_000), Probes: probes}, nil
}

func (c *fakeClient) Broadcast(ctx context.Context, receipts ...*core.SignedReceipt) ([]*core.HistoricalTransaction, error) {
	c.broadcast++
	c.lockFree = c.reg.TryWrite(ctx, func(core.Background) error { return nil }) == nil
	if c.during != nil {
		c.during()
	}

	if c.hash == "" {
		return nil, nil
	}

	out := make([]*core.HistoricalTransaction, 0, len(receipts))
	for _, r := range receipts {
		out = append(out, core.NewHistoricalTransaction(r, c.hash, time.Now()))
	}
	return out, nil
}

func (c *fakeClient) TransactionStatus(context.Context, string) (core.TransactionStatus, error) {
	return core.TransactionStatusPending, nil
}

func (c *fakeClient) Balances(context.Context, *core.Token, []string) ([]*big.Int, error) {
	return nil, nil
}

type fakeBackground struct {
	core.Background

	wallets   []*core.Wallet
	client    *fakeClient
	signErr   error
	appendErr error
	signed    int
	sessions  int
	lastSign  *core.TransactionRequest
	// storages maps a storage path to the instance opened there.
	storages map[string]*fakeBackground
}

func (f *fakeBackground) Wallet(index int) (*core.Wallet, error) {
	if index < 0 || index >= len(f.wallets) {
		return nil, core.WalletAccessError(index)
	}

	return f.wallets[index], nil
}

func (f *fakeBackground) Close() error { return nil }

func (f *fakeBackground) Provider(chainID uint64) (*core.Provider, error) {
	for _, p := range []*core.Provider{bsc, zil} {
		if p.ChainID == chainID {
			return p, nil
		}
	}

	return nil, core.BackgroundError(core.ErrChainNotFound)
}

func (f *fakeBackground) ChainClient(_ context.Context, chainID uint64) (core.ChainClient, error) {
	f.client.chainID = chainID
	return f.client, nil
}

func (f *fakeBackground) UnlockWithSession(_ context.Context, session []byte, _ []string, _ int) (*core.Seed, error) {
	f.sessions++
	if hex.EncodeToString(session) != "cafe" {
		return nil, core.BackgroundError(core.ErrInvalidSession)
	}

	return core.NewSeed([]byte("seed")), nil
}

func (f *fakeBackground) SignTransaction(_ context.Context, req *core.TransactionRequest, _, _ int, seed *core.Seed, _ string) (*core.SignedReceipt, error) {
	if seed.Wiped() {
		return nil, errors.New("seed already wiped")
	}

	if f.signErr != nil {
		return nil, f.signErr
	}

	if req.NeedsEstimate() {
		return nil, core.TransactionError(core.ErrMissingNonce)
	}

	f.signed++
	f.lastSign = req
	return &core.SignedReceipt{
		Kind:     req.Kind(),
		ChainID:  req.Metadata.ChainID,
		Hash:     "local",
		Sender:   f.wallets[0].Accounts[0].Address,
		Metadata: req.Metadata,
	}, nil
}

func (f *fakeBackground) AppendHistory(_ context.Context, walletIndex int, txs ...*core.HistoricalTransaction) error {
	if f.appendErr != nil {
		return core.BackgroundError(f.appendErr)
	}

	f.wallets[walletIndex].History = append(f.wallets[walletIndex].History, txs...)
	return nil
}

func scillaAddress(t *testing.T, b byte) string {
	t.Helper()

	raw := make([]byte, 20)
	raw[19] = b
	addr, err := keychain.EncodeScillaAddress(raw)
	require.NoError(t, err)
	return addr
}

func newTestBuilder(t *testing.T) (*Builder, *fakeBackground) {
	t.Helper()

	wallet := &core.Wallet{
		ID:       "w0",
		Kind:     core.WalletKindSecretKey,
		Settings: core.WalletSettings{GasMultiplier: 150},
		Accounts: []*core.Account{
			{Name: "bsc", Address: evmRecipient, ChainID: bsc.ChainID},
			{Name: "zil", Address: scillaAddress(t, 1), ChainID: zil.ChainID},
		},
		Tokens: []*core.Token{
			{Symbol: "BNB", Decimals: 18, Native: true, ChainID: bsc.ChainID},
			{Symbol: "USDT", Decimals: 6, Address: "0x55d398326f99059fF775485246999027B3197955", ChainID: bsc.ChainID},
			{Symbol: "ZIL", Decimals: 12, Native: true, ChainID: zil.ChainID},
			{Symbol: "XSGD", Decimals: 6, Address: scillaAddress(t, 2), ChainID: zil.ChainID},
		},
	}

	bg := &fakeBackground{wallets: []*core.Wallet{wallet}, storages: map[string]*fakeBackground{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	open := func(_ context.Context, path string) (core.Background, error) {
		if other, ok := bg.storages[path]; ok {
			return other, nil
		}
		return bg, nil
	}

	reg := registry.New(open, logger)
	require.NoError(t, reg.Start(context.Background(), t.TempDir()))
	t.Cleanup(func() { _ = reg.Stop(context.Background()) })

	bg.client = &fakeClient{reg: reg, hash: "0xabc"}
	return New(reg, session.New(reg, logger), Config{Probes: 3}, logger), bg
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	t.Run("evm native", func(t *testing.T) {
		req, err := b.Build(ctx, TransferParams{AccountIndex: 0, TokenIndex: 0, Recipient: evmRecipient, Amount: "1.5"})
		require.NoError(t, err)

		p, ok := req.Evm()
		require.True(t, ok)
		assert.Equal(t, common.HexToAddress(evmRecipient), *p.To)
		assert.Equal(t, "1500000000000000000", p.Value.ToInt().String())
		assert.Equal(t, int64(56), p.ChainID.ToInt().Int64())
		assert.Nil(t, req.Metadata.Token)
		assert.Equal(t, "Send BNB", req.Metadata.Title)
		assert.True(t, req.NeedsEstimate())
	})

	t.Run("erc20", func(t *testing.T) {
		req, err := b.Build(ctx, TransferParams{AccountIndex: 0, TokenIndex: 1, Recipient: evmRecipient, Amount: "2", Title: "rent"})
		require.NoError(t, err)

		p, ok := req.Evm()
		require.True(t, ok)
		assert.Equal(t, common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"), *p.To)
		assert.Zero(t, p.Value.ToInt().Sign())
		assert.Equal(t, "a9059cbb", hex.EncodeToString(p.Data[:4]))
		assert.Equal(t, big.NewInt(2_000_000), new(big.Int).SetBytes(p.Data[36:68]))

		require.NotNil(t, req.Metadata.Token)
		assert.Equal(t, "USDT", req.Metadata.Token.Symbol)
		assert.Equal(t, "2000000", req.Metadata.Token.Value.String())
		assert.Equal(t, evmRecipient, req.Metadata.Token.Recipient)
		assert.Equal(t, "rent", req.Metadata.Title)
	})

	t.Run("scilla native", func(t *testing.T) {
		to := scillaAddress(t, 3)
		req, err := b.Build(ctx, TransferParams{AccountIndex: 1, TokenIndex: 2, Recipient: to, Amount: "0.000000000001"})
		require.NoError(t, err)

		p, ok := req.Scilla()
		require.True(t, ok)
		assert.Equal(t, to, p.ToAddr)
		assert.Equal(t, int64(1), p.Amount.Int64())
		assert.Equal(t, uint16(1), p.ChainID)
		assert.Empty(t, p.Data)
	})

	t.Run("scilla token", func(t *testing.T) {
		to := scillaAddress(t, 3)
		req, err := b.Build(ctx, TransferParams{AccountIndex: 1, TokenIndex: 3, Recipient: to, Amount: "10"})
		require.NoError(t, err)

		p, ok := req.Scilla()
		require.True(t, ok)
		assert.Equal(t, scillaAddress(t, 2), p.ToAddr)
		assert.Zero(t, p.Amount.Sign())

		var call scillaCall
		require.NoError(t, json.Unmarshal([]byte(p.Data), &call))
		assert.Equal(t, "Transfer", call.Tag)
		require.Len(t, call.Params, 2)
		assert.Equal(t, "0x0000000000000000000000000000000000000003", call.Params[0].Value)
		assert.Equal(t, "10000000", call.Params[1].Value)
	})

	tests := []struct {
		name   string
		params TransferParams
		want   error
	}{
		{"unknown wallet", TransferParams{WalletIndex: 3, Recipient: evmRecipient, Amount: "1"}, core.ErrWalletAccess},
		{"unknown account", TransferParams{AccountIndex: 9, Recipient: evmRecipient, Amount: "1"}, core.ErrAccountAccess},
		{"unknown token", TransferParams{TokenIndex: 9, Recipient: evmRecipient, Amount: "1"}, core.ErrTokenNotExists},
		{"bad recipient", TransferParams{Recipient: "zil1nope", Amount: "1"}, core.ErrAddress},
		{"bad amount", TransferParams{Recipient: evmRecipient, Amount: "abc"}, core.ErrInvalidAmount},
		{"negative amount", TransferParams{Recipient: evmRecipient, Amount: "-1"}, core.ErrInvalidAmount},
		{"zero amount", TransferParams{Recipient: evmRecipient, Amount: "0"}, core.ErrInvalidAmount},
		{"too precise", TransferParams{TokenIndex: 1, Recipient: evmRecipient, Amount: "0.0000001"}, core.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(ctx, tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEstimateFee(t *testing.T) {
	ctx := context.Background()
	b, bg := newTestBuilder(t)

	req, err := b.Build(ctx, TransferParams{Recipient: evmRecipient, Amount: "1"})
	require.NoError(t, err)

	est, err := b.EstimateFee(ctx, EstimateParams{Request: req})
	require.NoError(t, err)
	assert.Equal(t, 3, est.Probes)
	assert.Equal(t, uint64(56), bg.client.chainID)

	_, err = b.EstimateFee(ctx, EstimateParams{Request: &core.TransactionRequest{}})
	assert.ErrorIs(t, err, core.ErrInvalidPayload)
}

func sessionUnlock() core.Unlock {
	return &core.SessionUnlock{Token: core.SessionToken("cafe")}
}

func TestSignAndSend(t *testing.T) {
	ctx := context.Background()
	b, bg := newTestBuilder(t)

	req, err := b.Build(ctx, TransferParams{TokenIndex: 1, Recipient: evmRecipient, Amount: "3"})
	require.NoError(t, err)

	tx, err := b.SignAndSend(ctx, SendParams{Request: req, Unlock: sessionUnlock()})
	require.NoError(t, err)

	assert.Equal(t, "0xabc", tx.Hash)
	assert.Equal(t, core.TransactionStatusPending, tx.Status)
	assert.Equal(t, "USDT", tx.Token.Symbol)
	assert.Equal(t, 1, bg.client.estimates)
	assert.True(t, bg.client.lockFree)
	assert.Len(t, bg.wallets[0].History, 1)

	require.NotNil(t, bg.lastSign)
	p, _ := bg.lastSign.Evm()
	assert.Equal(t, uint64(7), uint64(*p.Nonce))
	assert.Equal(t, uint64(31500), uint64(*p.Gas))
	assert.True(t, req.NeedsEstimate(), "caller's request is not filled in")
}

func TestSignAndSendFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid payload", func(t *testing.T) {
		b, bg := newTestBuilder(t)
		_, err := b.SignAndSend(ctx, SendParams{Request: &core.TransactionRequest{Payload: (*core.EvmPayload)(nil)}, Unlock: sessionUnlock()})
		assert.ErrorIs(t, err, core.ErrInvalidPayload)
		assert.Zero(t, bg.sessions)
		assert.Zero(t, bg.signed)
	})

	t.Run("bad session", func(t *testing.T) {
		b, bg := newTestBuilder(t)
		req, err := b.Build(ctx, TransferParams{Recipient: evmRecipient, Amount: "1"})
		require.NoError(t, err)

		_, err = b.SignAndSend(ctx, SendParams{Request: req, Unlock: &core.SessionUnlock{Token: "beef"}})
		assert.ErrorIs(t, err, core.ErrInvalidSession)
		assert.Zero(t, bg.signed)
		assert.Zero(t, bg.client.broadcast)
		assert.Empty(t, bg.wallets[0].History)
	})

	t.Run("signing failure", func(t *testing.T) {
		b, bg := newTestBuilder(t)
		bg.signErr = core.InvalidSecretMaterialError(errors.New("address mismatch"))

		req, err := b.Build(ctx, TransferParams{Recipient: evmRecipient, Amount: "1"})
		require.NoError(t, err)

		_, err = b.SignAndSend(ctx, SendParams{Request: req, Unlock: sessionUnlock()})
		assert.ErrorIs(t, err, core.ErrInvalidSecretMaterial)
		assert.Zero(t, bg.client.broadcast)
		assert.Empty(t, bg.wallets[0].History)
	})

	t.Run("empty hash", func(t *testing.T) {
		b, bg := newTestBuilder(t)
		bg.client.hash = ""

		req, err := b.Build(ctx, TransferParams{Recipient: evmRecipient, Amount: "1"})
		require.NoError(t, err)

		_, err = b.SignAndSend(ctx, SendParams{Request: req, Unlock: sessionUnlock()})
		assert.ErrorIs(t, err, core.ErrInvalidTxHash)
		assert.Equal(t, 1, bg.signed)
		assert.Empty(t, bg.wallets[0].History)
	})

	t.Run("history write fails", func(t *testing.T) {
		b, bg := newTestBuilder(t)
		bg.appendErr = errors.New("disk full")

		req, err := b.Build(ctx, TransferParams{Recipient: evmRecipient, Amount: "1"})
		require.NoError(t, err)

		tx, err := b.SignAndSend(ctx, SendParams{Request: req, Unlock: sessionUnlock()})
		assert.ErrorIs(t, err, core.ErrNotRecorded)
		assert.ErrorIs(t, err, core.ErrTransaction)
		require.NotNil(t, tx)
		assert.Equal(t, "0xabc", tx.Hash)
		assert.Equal(t, 1, bg.client.broadcast)
		assert.Empty(t, bg.wallets[0].History)
		assert.Equal(t, "transaction error: transaction was broadcast but not recorded", core.Message(err))
	})

	t.Run("restarted during broadcast", func(t *testing.T) {
		b, bg := newTestBuilder(t)

		other := &fakeBackground{
			wallets: []*core.Wallet{{ID: "elsewhere", Accounts: bg.wallets[0].Accounts}},
			client:  bg.client,
		}
		bg.storages["/other"] = other
		bg.client.during = func() {
			require.NoError(t, bg.client.reg.Stop(ctx))
			require.NoError(t, bg.client.reg.Start(ctx, "/other"))
		}

		req, err := b.Build(ctx, TransferParams{Recipient: evmRecipient, Amount: "1"})
		require.NoError(t, err)

		tx, err := b.SignAndSend(ctx, SendParams{Request: req, Unlock: sessionUnlock()})
		assert.ErrorIs(t, err, core.ErrNotRecorded)
		assert.ErrorIs(t, err, core.ErrWalletAccess)
		require.NotNil(t, tx)
		assert.Empty(t, bg.wallets[0].History)
		assert.Empty(t, other.wallets[0].History)
	})

	t.Run("stopped during broadcast", func(t *testing.T) {
		b, bg := newTestBuilder(t)
		bg.client.during = func() {
			require.NoError(t, bg.client.reg.Stop(ctx))
		}

		req, err := b.Build(ctx, TransferParams{Recipient: evmRecipient, Amount: "1"})
		require.NoError(t, err)

		_, err = b.SignAndSend(ctx, SendParams{Request: req, Unlock: sessionUnlock()})
		assert.ErrorIs(t, err, core.ErrNotRecorded)
		assert.ErrorIs(t, err, core.ErrNotRunning)
		assert.Empty(t, bg.wallets[0].History)
	})

	t.Run("restarted before signing", func(t *testing.T) {
		b, bg := newTestBuilder(t)

		other := &fakeBackground{
			wallets: []*core.Wallet{{ID: "elsewhere", Accounts: bg.wallets[0].Accounts}},
			client:  bg.client,
		}
		bg.storages["/other"] = other
		bg.client.estimating = func() {
			require.NoError(t, bg.client.reg.Stop(ctx))
			require.NoError(t, bg.client.reg.Start(ctx, "/other"))
		}

		req, err := b.Build(ctx, TransferParams{Recipient: evmRecipient, Amount: "1"})
		require.NoError(t, err)

		tx, err := b.SignAndSend(ctx, SendParams{Request: req, Unlock: sessionUnlock()})
		assert.ErrorIs(t, err, core.ErrWalletAccess)
		assert.NotErrorIs(t, err, core.ErrNotRecorded)
		assert.Nil(t, tx)
		assert.Zero(t, bg.signed)
		assert.Zero(t, other.signed)
		assert.Zero(t, bg.client.broadcast)
	})
}
