package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/chain"
	"github.com/pandodao/wallet-core/service/keychain"
	"github.com/shopspring/decimal"
)

// Guard is the part of the registry the builder needs.
type Guard interface {
	ReadWallet(ctx context.Context, walletIndex int, fn func(bg core.Background, wallet *core.Wallet) error) error
	WriteWallet(ctx context.Context, walletIndex int, fn func(bg core.Background, wallet *core.Wallet) error) error
}

// SeedResolver is implemented by session.Resolver.
type SeedResolver interface {
	With(ctx context.Context, walletIndex int, unlock core.Unlock, fn func(seed *core.Seed) error) error
}

type Config struct {
	// Probes is the number of fee samples taken when a request needs an estimate.
	Probes int `mapstructure:"probes"`
}

type Builder struct {
	guard  Guard
	seeds  SeedResolver
	cfg    Config
	logger *slog.Logger
}

func New(guard Guard, seeds SeedResolver, cfg Config, logger *slog.Logger) *Builder {
	if cfg.Probes <= 0 {
		cfg.Probes = 4
	}

	return &Builder{
		guard:  guard,
		seeds:  seeds,
		cfg:    cfg,
		logger: logger.With("service", "transfer"),
	}
}

type TransferParams struct {
	WalletIndex  int
	AccountIndex int
	TokenIndex   int
	Recipient    string
	// Amount in display units of the token, e.g. "1.5".
	Amount string
	Title  string
}

// Build turns a token transfer into a chain payload for the account's
// network. Nonce and fees are left for estimation.
func (b *Builder) Build(ctx context.Context, params TransferParams) (*core.TransactionRequest, error) {
	var req *core.TransactionRequest

	err := b.guard.ReadWallet(ctx, params.WalletIndex, func(bg core.Background, wallet *core.Wallet) error {
		account, err := wallet.Account(params.AccountIndex)
		if err != nil {
			return core.AccountAccessError(params.AccountIndex, params.WalletIndex)
		}

		token, err := wallet.Token(params.TokenIndex)
		if err != nil {
			return core.TransactionError(err)
		}

		provider, err := bg.Provider(account.ChainID)
		if err != nil {
			return err
		}

		req, err = buildRequest(provider, token, params)
		return err
	})

	return req, err
}

func buildRequest(provider *core.Provider, token *core.Token, params TransferParams) (*core.TransactionRequest, error) {
	recipient, err := keychain.ParseAddress(provider.Kind, params.Recipient)
	if err != nil {
		return nil, err
	}

	value, err := baseUnits(params.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}

	meta := core.TransactionMetadata{
		ChainID: provider.ChainID,
		Title:   params.Title,
		Icon:    token.Logo,
	}

	if meta.Title == "" {
		meta.Title = fmt.Sprintf("Send %s", token.Symbol)
	}

	if !token.Native {
		meta.Token = &core.TokenContext{
			Value:     decimal.NewFromBigInt(value, 0),
			Symbol:    token.Symbol,
			Decimals:  token.Decimals,
			Address:   token.Address,
			Recipient: recipient,
		}
	}

	var payload core.ChainPayload
	switch provider.Kind {
	case core.ChainKindEVM:
		payload, err = evmTransfer(provider, token, recipient, value)
	case core.ChainKindScilla:
		payload, err = scillaTransfer(provider, token, recipient, value)
	default:
		err = core.TransactionError(core.ErrChainNotFound)
	}

	if err != nil {
		return nil, err
	}

	return core.NewTransactionRequest(meta, payload)
}

// baseUnits shifts a display amount into the token's integer base units.
func baseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil || !d.IsPositive() {
		return nil, core.TransactionError(core.ErrInvalidAmount)
	}

	d = d.Shift(int32(decimals))
	if !d.Equal(d.Truncate(0)) {
		return nil, core.TransactionError(core.ErrInvalidAmount)
	}

	return d.BigInt(), nil
}

func evmTransfer(provider *core.Provider, token *core.Token, recipient string, value *big.Int) (*core.EvmPayload, error) {
	chainID := (*hexutil.Big)(new(big.Int).SetUint64(provider.ChainID))
	to := common.HexToAddress(recipient)

	if token.Native {
		return &core.EvmPayload{
			To:      &to,
			Value:   (*hexutil.Big)(value),
			ChainID: chainID,
		}, nil
	}

	data, err := chain.PackERC20Transfer(to, value)
	if err != nil {
		return nil, core.TransactionError(err)
	}

	contract := common.HexToAddress(token.Address)
	return &core.EvmPayload{
		To:      &contract,
		Value:   (*hexutil.Big)(new(big.Int)),
		Data:    data,
		ChainID: chainID,
	}, nil
}

type scillaParam struct {
	VName string `json:"vname"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type scillaCall struct {
	Tag    string        `json:"_tag"`
	Params []scillaParam `json:"params"`
}

func scillaTransfer(provider *core.Provider, token *core.Token, recipient string, value *big.Int) (*core.ScillaPayload, error) {
	if token.Native {
		return &core.ScillaPayload{
			ChainID: uint16(provider.ChainID),
			ToAddr:  recipient,
			Amount:  value,
		}, nil
	}

	to, err := keychain.ScillaBase16(recipient)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(scillaCall{
		Tag: "Transfer",
		Params: []scillaParam{
			{VName: "to", Type: "ByStr20", Value: "0x" + to},
			{VName: "amount", Type: "Uint128", Value: value.String()},
		},
	})
	if err != nil {
		return nil, core.TransactionError(err)
	}

	return &core.ScillaPayload{
		ChainID: uint16(provider.ChainID),
		ToAddr:  token.Address,
		Amount:  new(big.Int),
		Data:    string(data),
	}, nil
}

type EstimateParams struct {
	WalletIndex  int
	AccountIndex int
	Request      *core.TransactionRequest
	Probes       int
	Override     *core.GasOverride
}

type target struct {
	walletID   string
	client     core.ChainClient
	from       string
	multiplier uint32
}

// resolve picks the chain client and sender under a read view. Network
// calls on the result happen after the view is released.
func (b *Builder) resolve(ctx context.Context, walletIndex, accountIndex int) (*target, error) {
	var t target

	err := b.guard.ReadWallet(ctx, walletIndex, func(bg core.Background, wallet *core.Wallet) error {
		account, err := wallet.Account(accountIndex)
		if err != nil {
			return core.AccountAccessError(accountIndex, walletIndex)
		}

		client, err := bg.ChainClient(ctx, account.ChainID)
		if err != nil {
			return err
		}

		t = target{
			walletID:   wallet.ID,
			client:     client,
			from:       account.Address,
			multiplier: wallet.Settings.GasMultiplier,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return &t, nil
}

// EstimateFee probes nonce and fees for the request from the given account.
func (b *Builder) EstimateFee(ctx context.Context, params EstimateParams) (*core.GasEstimate, error) {
	if err := params.Request.Validate(); err != nil {
		return nil, err
	}

	t, err := b.resolve(ctx, params.WalletIndex, params.AccountIndex)
	if err != nil {
		return nil, err
	}

	probes := params.Probes
	if probes <= 0 {
		probes = b.cfg.Probes
	}

	return t.client.EstimateGasBatch(ctx, params.Request, t.from, probes, params.Override)
}

type SendParams struct {
	WalletIndex  int
	AccountIndex int
	// Request is left untouched; estimated fields go into a copy.
	Request    *core.TransactionRequest
	Unlock     core.Unlock
	Passphrase string
	Override   *core.GasOverride
}

// SignAndSend fills missing fees, signs with the unlocked seed, broadcasts,
// and records exactly one pending history entry. History is untouched if
// any step before the broadcast fails.
//
// Every view re-checks that the wallet at WalletIndex is the one resolved
// first. When the record cannot be written after a successful broadcast the
// transaction is returned along with an error matching core.ErrNotRecorded.
func (b *Builder) SignAndSend(ctx context.Context, params SendParams) (*core.HistoricalTransaction, error) {
	if err := params.Request.Validate(); err != nil {
		return nil, err
	}

	req := params.Request.Clone()

	t, err := b.resolve(ctx, params.WalletIndex, params.AccountIndex)
	if err != nil {
		return nil, err
	}

	if req.NeedsEstimate() {
		est, err := t.client.EstimateGasBatch(ctx, req, t.from, b.cfg.Probes, params.Override)
		if err != nil {
			return nil, err
		}

		req.ApplyEstimate(est, t.multiplier)
	}

	var receipt *core.SignedReceipt
	err = b.seeds.With(ctx, params.WalletIndex, params.Unlock, func(seed *core.Seed) error {
		return b.guard.WriteWallet(ctx, params.WalletIndex, func(bg core.Background, wallet *core.Wallet) error {
			if wallet.ID != t.walletID {
				return core.WalletAccessError(params.WalletIndex)
			}

			var err error
			receipt, err = bg.SignTransaction(ctx, req, params.WalletIndex, params.AccountIndex, seed, params.Passphrase)
			return err
		})
	})

	if err != nil {
		return nil, err
	}

	txs, err := t.client.Broadcast(ctx, receipt)
	if err != nil {
		b.logger.Error("broadcast failed", "wallet", params.WalletIndex, "chain", receipt.ChainID, "err", err)
		return nil, core.TransactionError(err)
	}

	if len(txs) == 0 || txs[0].Hash == "" {
		return nil, core.TransactionError(core.ErrInvalidTxHash)
	}

	tx := txs[0]
	err = b.guard.WriteWallet(ctx, params.WalletIndex, func(bg core.Background, wallet *core.Wallet) error {
		if wallet.ID != t.walletID {
			return core.WalletAccessError(params.WalletIndex)
		}

		return bg.AppendHistory(ctx, params.WalletIndex, tx)
	})

	if err != nil {
		b.logger.Error("record history", "wallet", t.walletID, "chain", tx.ChainID, "hash", tx.Hash, "err", err)
		return tx, core.NotRecordedError(err)
	}

	b.logger.Info("transaction sent", "wallet", params.WalletIndex, "chain", tx.ChainID, "hash", tx.Hash)
	return tx, nil
}
