package background

import (
	"context"
	"strings"

	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/keychain"
)

// AppendHistory persists txs and then appends them, in order, to the
// wallet history.
func (b *Instance) AppendHistory(ctx context.Context, walletIndex int, txs ...*core.HistoricalTransaction) error {
	w, err := b.Wallet(walletIndex)
	if err != nil {
		return err
	}

	for _, tx := range txs {
		tx.WalletID = w.ID
	}

	if err := b.historyStore.Append(ctx, txs...); err != nil {
		b.logger.Error("history.Append", "wallet", w.ID, "err", err)
		return core.BackgroundError(err)
	}

	w.History = append(w.History, txs...)
	return nil
}

func (b *Instance) UpdateHistoryStatus(ctx context.Context, walletIndex int, hash string, status core.TransactionStatus) error {
	w, err := b.Wallet(walletIndex)
	if err != nil {
		return err
	}

	if err := b.historyStore.UpdateStatus(ctx, w.ID, hash, status); err != nil {
		return core.BackgroundError(err)
	}

	for _, tx := range w.History {
		if tx.Hash == hash {
			tx.Status = status
		}
	}

	return nil
}

func (b *Instance) PendingHistory(ctx context.Context, limit int) ([]*core.HistoricalTransaction, error) {
	txs, err := b.historyStore.ListStatus(ctx, core.TransactionStatusPending, limit)
	if err != nil {
		return nil, core.BackgroundError(err)
	}

	return txs, nil
}

// updateWallet persists a modified copy of the wallet at index and swaps
// it in on success.
func (b *Instance) updateWallet(ctx context.Context, index int, mutate func(w *core.Wallet) error) error {
	current, err := b.Wallet(index)
	if err != nil {
		return err
	}

	next := *current
	if err := mutate(&next); err != nil {
		return err
	}

	if err := b.walletStore.Update(ctx, &next); err != nil {
		b.logger.Error("wallets.Update", "wallet", next.ID, "err", err)
		return core.BackgroundError(err)
	}

	b.wallets[index] = &next
	return nil
}

func (b *Instance) AddToken(ctx context.Context, walletIndex int, token *core.Token) error {
	return b.updateWallet(ctx, walletIndex, func(w *core.Wallet) error {
		provider, err := b.Provider(w.ChainID)
		if err != nil {
			return err
		}

		address, err := keychain.ParseAddress(provider.Kind, token.Address)
		if err != nil {
			return err
		}

		for _, t := range w.Tokens {
			if strings.EqualFold(t.Address, address) {
				return nil
			}
		}

		added := *token
		added.Address = address
		added.ChainID = provider.ChainID
		added.Native = false
		added.Balances = nil

		w.Tokens = append(append([]*core.Token(nil), w.Tokens...), &added)
		return nil
	})
}

func (b *Instance) SetTokenBalances(ctx context.Context, walletIndex, tokenIndex int, balances map[int]string) error {
	return b.updateWallet(ctx, walletIndex, func(w *core.Wallet) error {
		token, err := w.Token(tokenIndex)
		if err != nil {
			return core.BackgroundError(err)
		}

		updated := *token
		updated.Balances = make(map[int]string, len(balances))
		for k, v := range balances {
			updated.Balances[k] = v
		}

		w.Tokens = append([]*core.Token(nil), w.Tokens...)
		w.Tokens[tokenIndex] = &updated
		return nil
	})
}
