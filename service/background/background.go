package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/chain"
	"github.com/pandodao/wallet-core/service/vault"
	"github.com/pandodao/wallet-core/store/db"
	"github.com/pandodao/wallet-core/store/history"
	"github.com/pandodao/wallet-core/store/property"
	"github.com/pandodao/wallet-core/store/wallet"
	"github.com/tsenart/nap"
)

type Config struct {
	Argon      vault.Params     `mapstructure:"argon"`
	SessionTTL time.Duration    `mapstructure:"session_ttl"`
	Providers  []*core.Provider `mapstructure:"-"`
}

const defaultSessionTTL = 24 * time.Hour

// DefaultProviders are installed when a storage directory is opened for
// the first time and no providers are configured.
func DefaultProviders() []*core.Provider {
	return []*core.Provider{
		{
			ChainID:  1,
			Name:     "Zilliqa",
			Kind:     core.ChainKindScilla,
			RPC:      []string{"https://api.zilliqa.com"},
			Symbol:   "ZIL",
			Decimals: 12,
			Slip44:   313,
			Explorer: "https://viewblock.io/zilliqa",
		},
		{
			ChainID:  56,
			Name:     "BNB Smart Chain",
			Kind:     core.ChainKindEVM,
			RPC:      []string{"https://bsc-dataseed.binance.org"},
			Symbol:   "BNB",
			Decimals: 18,
			Slip44:   60,
			Explorer: "https://bscscan.com",
		},
	}
}

// Instance is the local wallet service stored under one directory. It is
// not safe for concurrent mutation.
type Instance struct {
	path   string
	db     *nap.DB
	logger *slog.Logger
	vault  *vault.Vault
	pool   *chain.Pool
	now    func() time.Time

	walletStore   core.WalletStore
	historyStore  core.HistoryStore
	propertyStore core.PropertyStore

	wallets   []*core.Wallet
	providers []*core.Provider
	settings  core.Settings
}

func NewOpener(cfg Config, dial chain.Dialer, logger *slog.Logger) core.Opener {
	return func(ctx context.Context, path string) (core.Background, error) {
		return Open(ctx, path, cfg, dial, logger)
	}
}

func Open(ctx context.Context, path string, cfg Config, dial chain.Dialer, logger *slog.Logger) (*Instance, error) {
	if path == "" {
		return nil, errors.New("storage path is empty")
	}

	conn, err := db.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	b := &Instance{
		path:          path,
		db:            conn,
		logger:        logger.With("service", "background"),
		vault:         vault.New(cfg.Argon),
		pool:          chain.NewPool(dial),
		now:           time.Now,
		walletStore:   wallet.New(conn),
		historyStore:  history.New(conn),
		propertyStore: property.New(conn),
	}

	if err := b.load(ctx, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	b.logger.Info("instance loaded", "path", path, "wallets", len(b.wallets), "providers", len(b.providers))
	return b, nil
}

func (b *Instance) load(ctx context.Context, cfg Config) error {
	if err := b.propertyStore.Get(ctx, core.PropertyKeyProviders, &b.providers); err != nil {
		return fmt.Errorf("load providers: %w", err)
	}

	if len(b.providers) == 0 {
		b.providers = cfg.Providers
		if len(b.providers) == 0 {
			b.providers = DefaultProviders()
		}

		if err := b.propertyStore.Set(ctx, core.PropertyKeyProviders, b.providers); err != nil {
			return fmt.Errorf("save providers: %w", err)
		}
	}

	b.settings = core.Settings{Theme: "system", Locale: "en", Notifications: true, SessionTTL: cfg.SessionTTL}
	if b.settings.SessionTTL == 0 {
		b.settings.SessionTTL = defaultSessionTTL
	}

	if err := b.propertyStore.Get(ctx, core.PropertyKeySettings, &b.settings); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	wallets, err := b.walletStore.List(ctx)
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}

	for _, w := range wallets {
		if w.History, err = b.historyStore.List(ctx, w.ID); err != nil {
			return fmt.Errorf("load history of %s: %w", w.ID, err)
		}
	}

	b.wallets = wallets
	return nil
}

func (b *Instance) Wallets() []*core.Wallet {
	return b.wallets
}

func (b *Instance) Wallet(index int) (*core.Wallet, error) {
	if index < 0 || index >= len(b.wallets) {
		return nil, core.WalletAccessError(index)
	}

	return b.wallets[index], nil
}

func (b *Instance) Providers() []*core.Provider {
	return b.providers
}

func (b *Instance) Provider(chainID uint64) (*core.Provider, error) {
	for _, p := range b.providers {
		if p.ChainID == chainID {
			return p, nil
		}
	}

	return nil, core.BackgroundError(core.ErrChainNotFound)
}

func (b *Instance) Settings() core.Settings {
	return b.settings
}

func (b *Instance) SetSettings(ctx context.Context, settings core.Settings) error {
	if settings.SessionTTL <= 0 {
		return core.BackgroundError(core.ErrInvalidSettings)
	}

	if err := b.propertyStore.Set(ctx, core.PropertyKeySettings, settings); err != nil {
		return core.BackgroundError(err)
	}

	b.settings = settings
	return nil
}

func (b *Instance) ChainClient(ctx context.Context, chainID uint64) (core.ChainClient, error) {
	provider, err := b.Provider(chainID)
	if err != nil {
		return nil, err
	}

	client, err := b.pool.Get(ctx, provider)
	if err != nil {
		b.logger.Error("pool.Get", "chain", chainID, "err", err)
		return nil, core.BackgroundError(err)
	}

	return client, nil
}

func (b *Instance) Close() error {
	return errors.Join(b.pool.Close(), b.db.Close())
}
