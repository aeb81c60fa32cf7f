package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tsenart/nap"
)

//go:embed schema/*.sql
var embedFiles embed.FS

const fileName = "wallet.db"

// Open opens the sqlite database under dir, creating dir when missing, and
// migrates it to the latest schema.
func Open(ctx context.Context, dir string) (*nap.DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", filepath.Join(dir, fileName))
	conn, err := nap.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer
	conn.Master().SetMaxOpenConns(1)

	if err := conn.Master().PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := Migrate(conn.Master()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return conn, nil
}

// Migrate runs the embedded sqlite migrations.
func Migrate(db *sql.DB) error {
	d, err := iofs.New(embedFiles, "schema")
	if err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
