package wallet

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/store"
	"github.com/tsenart/nap"
)

func New(db *nap.DB) core.WalletStore {
	return &walletStore{db: db}
}

type walletStore struct {
	db *nap.DB
}

var columns = []string{"id", "data", "vault", "session_secret", "devices", "created_at"}

func (s *walletStore) Create(ctx context.Context, wallet *core.Wallet) error {
	data, err := json.Marshal(wallet)
	if err != nil {
		return err
	}

	b := sq.Insert("wallets").
		Columns(columns...).
		Values(wallet.ID, data, []byte(wallet.Vault), wallet.SessionSecret, wallet.Devices, wallet.CreatedAt.UTC())

	query, args := b.MustSql()
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// Update persists the public part of the wallet. Credentials are written
// once at creation.
func (s *walletStore) Update(ctx context.Context, wallet *core.Wallet) error {
	data, err := json.Marshal(wallet)
	if err != nil {
		return err
	}

	b := sq.Update("wallets").
		Set("data", data).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": wallet.ID})

	query, args := b.MustSql()
	r, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	if n, err := r.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrOptimisticLock
	}

	return nil
}

func (s *walletStore) List(ctx context.Context) ([]*core.Wallet, error) {
	b := sq.Select(columns...).From("wallets").OrderBy("position")
	query, args := b.MustSql()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []*core.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}

		wallets = append(wallets, w)
	}

	return wallets, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (*core.Wallet, error) {
	var (
		w         core.Wallet
		data      []byte
		vault     []byte
		createdAt time.Time
	)

	if err := row.Scan(&w.ID, &data, &vault, &w.SessionSecret, &w.Devices, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	if len(vault) > 0 {
		w.Vault = vault
	}

	w.CreatedAt = createdAt
	return &w, nil
}
