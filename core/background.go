package core

import "context"

// Background is a running wallet service instance: wallets, providers and
// settings persisted under one storage directory.
//
// Implementations are not safe for concurrent mutation; callers serialize
// access through the registry's views.
type Background interface {
	Wallets() []*Wallet
	// Wallet fails with WalletAccessError when index is out of range.
	Wallet(index int) (*Wallet, error)
	Providers() []*Provider
	Provider(chainID uint64) (*Provider, error)
	Settings() Settings
	SetSettings(ctx context.Context, settings Settings) error

	// AddWallet persists a new wallet and returns its session bytes (nil for
	// watch-only wallets) and the address of its first account.
	AddWallet(ctx context.Context, params WalletParams) (session []byte, address string, err error)
	// PrepareWallet runs key derivation and sealing without mutating the
	// instance, so it may run under a read view.
	PrepareWallet(ctx context.Context, params WalletParams) (*PreparedWallet, error)
	// InstallWallet persists a wallet prepared by the same instance and
	// returns its index.
	InstallWallet(ctx context.Context, prepared *PreparedWallet) (int, error)
	UnlockWithPassword(ctx context.Context, password []byte, devices []string, walletIndex int) (*Seed, []byte, error)
	UnlockWithSession(ctx context.Context, session []byte, devices []string, walletIndex int) (*Seed, error)
	SignTransaction(ctx context.Context, req *TransactionRequest, walletIndex, accountIndex int, seed *Seed, passphrase string) (*SignedReceipt, error)

	ChainClient(ctx context.Context, chainID uint64) (ChainClient, error)

	AppendHistory(ctx context.Context, walletIndex int, txs ...*HistoricalTransaction) error
	UpdateHistoryStatus(ctx context.Context, walletIndex int, hash string, status TransactionStatus) error
	// PendingHistory returns up to limit pending records across wallets,
	// oldest first.
	PendingHistory(ctx context.Context, limit int) ([]*HistoricalTransaction, error)
	AddToken(ctx context.Context, walletIndex int, token *Token) error
	SetTokenBalances(ctx context.Context, walletIndex, tokenIndex int, balances map[int]string) error

	Close() error
}

// Opener loads or creates the service instance stored under path.
type Opener func(ctx context.Context, path string) (Background, error)
