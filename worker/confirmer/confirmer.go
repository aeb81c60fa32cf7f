package confirmer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pandodao/wallet-core/core"
	"golang.org/x/sync/errgroup"
)

// Guard is the part of the registry the confirmer needs.
type Guard interface {
	Read(ctx context.Context, fn func(bg core.Background) error) error
	WriteWallet(ctx context.Context, walletIndex int, fn func(bg core.Background, wallet *core.Wallet) error) error
}

func New(guard Guard, logger *slog.Logger) *Confirmer {
	return &Confirmer{
		guard:  guard,
		logger: logger.With("worker", "confirmer"),
	}
}

// Confirmer polls the chain for pending history records and settles them.
type Confirmer struct {
	guard  Guard
	logger *slog.Logger
}

type pending struct {
	walletIndex int
	walletID    string
	hash        string
	client      core.ChainClient
}

func (w *Confirmer) Run(ctx context.Context) error {
	w.logger.Info("confirmer start")

	for {
		dur := 5 * time.Second
		if w.run(ctx) == nil {
			dur = 2 * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dur):
		}
	}
}

func (w *Confirmer) run(ctx context.Context) error {
	txs, err := w.collect(ctx)
	if err != nil {
		w.logger.Debug("collect pending", "err", err)
		return err
	}

	if len(txs) == 0 {
		return fmt.Errorf("pending transactions dry")
	}

	var g errgroup.Group
	g.SetLimit(10)

	for idx := range txs {
		tx := txs[idx]
		g.Go(func() error {
			return w.handle(ctx, tx)
		})
	}

	return g.Wait()
}

// collect snapshots pending records under a read view. Status queries run
// after the view is released.
func (w *Confirmer) collect(ctx context.Context) ([]*pending, error) {
	const limit = 64

	var txs []*pending
	err := w.guard.Read(ctx, func(bg core.Background) error {
		records, err := bg.PendingHistory(ctx, limit)
		if err != nil {
			return err
		}

		indexes := make(map[string]int, len(bg.Wallets()))
		for wi, wallet := range bg.Wallets() {
			indexes[wallet.ID] = wi
		}

		for _, tx := range records {
			wi, ok := indexes[tx.WalletID]
			if !ok {
				continue
			}

			client, err := bg.ChainClient(ctx, tx.ChainID)
			if err != nil {
				w.logger.Error("bg.ChainClient", "chain", tx.ChainID, "err", err)
				continue
			}

			txs = append(txs, &pending{walletIndex: wi, walletID: tx.WalletID, hash: tx.Hash, client: client})
		}

		return nil
	})

	return txs, err
}

func (w *Confirmer) handle(ctx context.Context, tx *pending) error {
	logger := w.logger.With("wallet", tx.walletID, "hash", tx.hash)

	status, err := tx.client.TransactionStatus(ctx, tx.hash)
	if err != nil {
		logger.Error("client.TransactionStatus", "err", err)
		return err
	}

	if status == core.TransactionStatusPending {
		return nil
	}

	err = w.guard.WriteWallet(ctx, tx.walletIndex, func(bg core.Background, wallet *core.Wallet) error {
		if wallet.ID != tx.walletID {
			return nil
		}

		return bg.UpdateHistoryStatus(ctx, tx.walletIndex, tx.hash, status)
	})

	if err != nil {
		logger.Error("bg.UpdateHistoryStatus", "err", err)
		return err
	}

	logger.Info("transaction settled", "status", status)
	return nil
}
