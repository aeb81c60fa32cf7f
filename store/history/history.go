package history

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/store"
	"github.com/tsenart/nap"
)

func New(db *nap.DB) core.HistoryStore {
	return &historyStore{db: db}
}

type historyStore struct {
	db *nap.DB
}

func insert(ctx context.Context, r sq.BaseRunner, tx *core.HistoricalTransaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	b := sq.Insert("history").
		Columns("wallet_id", "hash", "status", "chain_id", "data", "created_at").
		Values(tx.WalletID, tx.Hash, tx.Status, tx.ChainID, data, tx.Timestamp.UTC())

	_, err = b.RunWith(r).ExecContext(ctx)
	return err
}

// Append inserts all records in one transaction, in order.
func (s *historyStore) Append(ctx context.Context, txs ...*core.HistoricalTransaction) error {
	tx, err := s.db.Master().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range txs {
		if err := insert(ctx, tx, t); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *historyStore) List(ctx context.Context, walletID string) ([]*core.HistoricalTransaction, error) {
	b := sq.Select(scanColumns...).
		From("history").
		Where(sq.Eq{"wallet_id": walletID}).
		OrderBy("id")

	return s.list(ctx, b)
}

func (s *historyStore) ListStatus(ctx context.Context, status core.TransactionStatus, limit int) ([]*core.HistoricalTransaction, error) {
	b := sq.Select(scanColumns...).
		From("history").
		Where(sq.Eq{"status": status}).
		OrderBy("id").
		Limit(uint64(limit))

	return s.list(ctx, b)
}

func (s *historyStore) list(ctx context.Context, b sq.SelectBuilder) ([]*core.HistoricalTransaction, error) {
	query, args := b.MustSql()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var txs []*core.HistoricalTransaction
	for rows.Next() {
		var tx core.HistoricalTransaction
		if err := scanTransaction(rows, &tx); err != nil {
			return nil, err
		}

		txs = append(txs, &tx)
	}

	return txs, rows.Err()
}

// UpdateStatus only moves pending records.
func (s *historyStore) UpdateStatus(ctx context.Context, walletID, hash string, status core.TransactionStatus) error {
	b := sq.Update("history").
		Set("status", status).
		Where(sq.Eq{"wallet_id": walletID, "hash": hash, "status": core.TransactionStatusPending})

	query, args := b.MustSql()
	r, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := r.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return store.ErrOptimisticLock
	}

	return nil
}
