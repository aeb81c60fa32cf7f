package background

import (
	"context"
	"errors"

	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/keychain"
	"github.com/pandodao/wallet-core/service/vault"
)

func (b *Instance) envelope(w *core.Wallet) (*vault.Envelope, error) {
	if w.Kind == core.WalletKindLedger || len(w.Vault) == 0 {
		return nil, core.ErrUnsupportedWallet
	}

	return vault.ParseEnvelope(w.Vault)
}

// UnlockWithPassword derives the wallet seed and returns it with a fresh
// session bound to devices. The caller owns the seed.
func (b *Instance) UnlockWithPassword(ctx context.Context, password []byte, devices []string, walletIndex int) (*core.Seed, []byte, error) {
	w, err := b.Wallet(walletIndex)
	if err != nil {
		return nil, nil, err
	}

	env, err := b.envelope(w)
	if err != nil {
		return nil, nil, core.BackgroundError(err)
	}

	if !vault.MatchDevices(w.Devices, devices) {
		return nil, nil, core.BackgroundError(core.ErrDeviceMismatch)
	}

	seed, err := env.Unlock(password)
	if err != nil {
		return nil, nil, core.BackgroundError(err)
	}

	session, err := vault.SealSession(w.SessionSecret, w.ID, devices, seed, b.now())
	if err != nil {
		seed.Wipe()
		return nil, nil, core.BackgroundError(err)
	}

	return seed, session, nil
}

func (b *Instance) UnlockWithSession(ctx context.Context, session []byte, devices []string, walletIndex int) (*core.Seed, error) {
	w, err := b.Wallet(walletIndex)
	if err != nil {
		return nil, err
	}

	if _, err := b.envelope(w); err != nil {
		return nil, core.BackgroundError(err)
	}

	seed, err := vault.OpenSession(w.SessionSecret, w.ID, devices, session, b.settings.SessionTTL, b.now())
	if err != nil {
		return nil, core.BackgroundError(err)
	}

	return seed, nil
}

var errAccountMismatch = errors.New("derived key does not match the account")

// SignTransaction signs req with the key of the given account. The seed is
// borrowed; the caller wipes it.
func (b *Instance) SignTransaction(ctx context.Context, req *core.TransactionRequest, walletIndex, accountIndex int, seed *core.Seed, passphrase string) (*core.SignedReceipt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	w, err := b.Wallet(walletIndex)
	if err != nil {
		return nil, err
	}

	account, err := w.Account(accountIndex)
	if err != nil {
		return nil, core.AccountAccessError(accountIndex, walletIndex)
	}

	if w.Kind == core.WalletKindLedger {
		return nil, core.TransactionError(core.ErrLedgerSigning)
	}

	provider, err := b.Provider(account.ChainID)
	if err != nil {
		return nil, err
	}

	env, err := b.envelope(w)
	if err != nil {
		return nil, core.BackgroundError(err)
	}

	secret, err := env.Open(seed)
	if err != nil {
		return nil, core.BackgroundError(err)
	}
	defer clear(secret)

	key, err := keychain.Derive(w.Kind, secret, passphrase, provider.Slip44, account.Index)
	if err != nil {
		return nil, core.BackgroundError(err)
	}
	defer key.Zero()

	if address, err := keychain.Address(provider.Kind, key.PubKey()); err != nil || address != account.Address {
		return nil, core.InvalidSecretMaterialError(errAccountMismatch)
	}

	receipt, err := keychain.Sign(req, key, provider)
	if err != nil {
		b.logger.Error("keychain.Sign", "wallet", w.ID, "err", err)
		return nil, core.TransactionError(err)
	}

	return receipt, nil
}
