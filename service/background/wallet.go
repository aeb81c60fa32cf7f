package background

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/keychain"
	"github.com/pandodao/wallet-core/service/vault"
)

// AddWallet prepares and installs a wallet in one step.
func (b *Instance) AddWallet(ctx context.Context, params core.WalletParams) ([]byte, string, error) {
	prepared, err := b.PrepareWallet(ctx, params)
	if err != nil {
		return nil, "", err
	}

	if _, err := b.InstallWallet(ctx, prepared); err != nil {
		clear(prepared.Session)
		return nil, "", err
	}

	return prepared.Session, prepared.Wallet.Accounts[0].Address, nil
}

// PrepareWallet validates params, derives the accounts and seals the
// credentials. It does not mutate the instance.
func (b *Instance) PrepareWallet(_ context.Context, params core.WalletParams) (*core.PreparedWallet, error) {
	w, session, err := b.newWallet(params)
	if err != nil {
		return nil, core.BackgroundError(err)
	}

	return &core.PreparedWallet{Wallet: w, Session: session, Storage: b.path}, nil
}

var errForeignWallet = errors.New("wallet was prepared by another instance")

// InstallWallet persists a prepared wallet and only then installs it in
// memory.
func (b *Instance) InstallWallet(ctx context.Context, prepared *core.PreparedWallet) (int, error) {
	if prepared == nil || prepared.Wallet == nil {
		return -1, core.BackgroundError(core.ErrUnsupportedWallet)
	}

	if prepared.Storage != b.path {
		return -1, core.BackgroundError(errForeignWallet)
	}

	w := prepared.Wallet
	if w.Name == "" {
		w.Name = fmt.Sprintf("Wallet %d", len(b.wallets)+1)
	}

	if err := b.walletStore.Create(ctx, w); err != nil {
		b.logger.Error("wallets.Create", "err", err)
		return -1, core.BackgroundError(err)
	}

	b.wallets = append(b.wallets, w)
	index := len(b.wallets) - 1
	b.logger.Info("wallet added", "wallet", w.ID, "kind", w.Kind, "index", index)
	return index, nil
}

func (b *Instance) newWallet(params core.WalletParams) (*core.Wallet, []byte, error) {
	switch p := params.(type) {
	case *core.Bip39Params:
		defer clear(p.Password)
		return b.newBip39Wallet(p)
	case *core.SKParams:
		defer clear(p.Password)
		return b.newSKWallet(p)
	case *core.LedgerParams:
		w, err := b.newLedgerWallet(p)
		return w, nil, err
	default:
		return nil, nil, core.ErrUnsupportedWallet
	}
}

func (b *Instance) providerFor(chainID uint64) (*core.Provider, error) {
	if chainID == 0 && len(b.providers) > 0 {
		return b.providers[0], nil
	}

	for _, p := range b.providers {
		if p.ChainID == chainID {
			return p, nil
		}
	}

	return nil, core.ErrChainNotFound
}

func (b *Instance) walletBase(name string, kind core.WalletKind, provider *core.Provider, settings core.WalletSettings) *core.Wallet {
	return &core.Wallet{
		ID:       uuid.NewString(),
		Name:     name,
		Kind:     kind,
		ChainID:  provider.ChainID,
		Settings: settings,
		Tokens: []*core.Token{{
			Name:     provider.Name,
			Symbol:   provider.Symbol,
			Decimals: provider.Decimals,
			ChainID:  provider.ChainID,
			Native:   true,
		}},
		CreatedAt: b.now(),
	}
}

func newAccount(provider *core.Provider, pub *btcec.PublicKey, index uint32, name string) (*core.Account, error) {
	address, err := keychain.Address(provider.Kind, pub)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = fmt.Sprintf("Account %d", index+1)
	}

	return &core.Account{
		Name:    name,
		Address: address,
		PubKey:  pub.SerializeCompressed(),
		Index:   index,
		ChainID: provider.ChainID,
	}, nil
}

// seal creates the password envelope and the first session for w.
func (b *Instance) seal(w *core.Wallet, password, secret []byte, devices []string) ([]byte, error) {
	env, seed, err := b.vault.Create(password, secret)
	if err != nil {
		return nil, err
	}
	defer seed.Wipe()

	if w.Vault, err = env.Marshal(); err != nil {
		return nil, err
	}

	if w.SessionSecret, err = vault.NewSessionSecret(); err != nil {
		return nil, err
	}

	if len(devices) > 0 {
		w.Devices = vault.DevicesDigest(devices)
	}

	return vault.SealSession(w.SessionSecret, w.ID, devices, seed, b.now())
}

func (b *Instance) newBip39Wallet(p *core.Bip39Params) (*core.Wallet, []byte, error) {
	if len(p.Password) == 0 {
		return nil, nil, core.ErrPasswordRequired
	}

	mnemonic := strings.Join(strings.Fields(p.Mnemonic), " ")
	if err := keychain.ValidateMnemonic(mnemonic); err != nil {
		return nil, nil, err
	}

	provider, err := b.providerFor(p.ChainID)
	if err != nil {
		return nil, nil, err
	}

	specs := p.Accounts
	if len(specs) == 0 {
		specs = []core.AccountSpec{{Index: 0}}
	}

	w := b.walletBase(p.WalletName, core.WalletKindSecretPhrase, provider, p.Settings)
	for _, spec := range specs {
		key, err := keychain.DeriveMnemonicKey(mnemonic, p.Passphrase, provider.Slip44, spec.Index)
		if err != nil {
			return nil, nil, err
		}

		account, err := newAccount(provider, key.PubKey(), spec.Index, spec.Name)
		key.Zero()
		if err != nil {
			return nil, nil, err
		}

		w.Accounts = append(w.Accounts, account)
	}

	session, err := b.seal(w, p.Password, []byte(mnemonic), p.Devices)
	if err != nil {
		return nil, nil, err
	}

	return w, session, nil
}

func (b *Instance) newSKWallet(p *core.SKParams) (*core.Wallet, []byte, error) {
	if len(p.Password) == 0 {
		return nil, nil, core.ErrPasswordRequired
	}

	key, err := keychain.ParseSecretKey(p.SecretKey)
	if err != nil {
		return nil, nil, err
	}
	defer key.Zero()

	provider, err := b.providerFor(p.ChainID)
	if err != nil {
		return nil, nil, err
	}

	w := b.walletBase(p.WalletName, core.WalletKindSecretKey, provider, p.Settings)
	account, err := newAccount(provider, key.PubKey(), 0, "")
	if err != nil {
		return nil, nil, err
	}
	w.Accounts = []*core.Account{account}

	secret := []byte(hex.EncodeToString(key.Serialize()))
	defer clear(secret)

	session, err := b.seal(w, p.Password, secret, p.Devices)
	if err != nil {
		return nil, nil, err
	}

	return w, session, nil
}

func (b *Instance) newLedgerWallet(p *core.LedgerParams) (*core.Wallet, error) {
	if len(p.PubKeys) == 0 {
		return nil, core.InvalidSecretMaterialError(fmt.Errorf("ledger wallet without public keys"))
	}

	provider, err := b.providerFor(p.ChainID)
	if err != nil {
		return nil, err
	}

	w := b.walletBase(p.WalletName, core.WalletKindLedger, provider, p.Settings)
	if p.LedgerID != "" {
		w.ID = p.LedgerID
	}

	for i, raw := range p.PubKeys {
		pub, err := keychain.ParsePublicKey(raw)
		if err != nil {
			return nil, err
		}

		account, err := newAccount(provider, pub, uint32(i), "")
		if err != nil {
			return nil, err
		}

		w.Accounts = append(w.Accounts, account)
	}

	return w, nil
}
