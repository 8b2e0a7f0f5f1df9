// Package sqlite provides a SQLite-backed state storage backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/storage"
)

const (
	KeyPath        = "path"
	KeyJournalMode = "journal_mode"
	KeyBusyTimeout = "busy_timeout"
	KeyCacheSize   = "cache_size"
)

func init() {
	physical.Register("sqlite", NewFactory, Defaults)
}

// Defaults returns the default configuration for the SQLite backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:        "~/.arc-registrar/state.db",
		KeyJournalMode: "wal",
		KeyBusyTimeout: "5s",
		KeyCacheSize:   "64MiB",
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    k BLOB PRIMARY KEY,
    v BLOB NOT NULL
) WITHOUT ROWID;
`

// NewFactory creates a new SQLite backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	p := storage.Read("sqlite", config)
	path := p.Path(KeyPath, "")
	if path == "" {
		p.Fail(KeyPath, "cannot be empty", nil)
	}
	journalMode := p.OneOf(KeyJournalMode, "wal", "wal", "delete", "truncate", "persist", "memory", "off")
	busyTimeout := p.Duration(KeyBusyTimeout, 5*time.Second)
	cacheSize := p.Bytes(KeyCacheSize, 64<<20)
	if err := p.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to create directory", err)
	}

	// A negative cache_size is in KiB.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)&_pragma=cache_size(%d)",
		path, journalMode, busyTimeout.Milliseconds(), -cacheSize/1024)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to open database", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to initialize schema", err)
	}

	slog.Info("sqlite statestore initialized", "path", path, "journal_mode", journalMode)
	return &Backend{db: db}, nil
}

// Backend is a SQLite implementation of physical.Backend.
type Backend struct {
	db     *sql.DB
	closed atomic.Bool
}

// View runs fn inside a transaction that is always rolled back.
func (b *Backend) View(ctx context.Context, fn func(physical.Txn) error) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite view: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	return fn(&txnAdapter{ctx: ctx, tx: tx, readOnly: true})
}

// Update runs fn inside a transaction that commits only when fn succeeds.
func (b *Backend) Update(ctx context.Context, fn func(physical.Txn) error) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite update: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&txnAdapter{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite update: commit: %w", err)
	}
	return nil
}

// Stats returns key count and page usage.
func (b *Backend) Stats(ctx context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var keys int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&keys); err != nil {
		return nil, fmt.Errorf("sqlite stats: %w", err)
	}

	var pageCount, pageSize int64
	if err := b.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("sqlite stats: page_count: %w", err)
	}
	if err := b.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("sqlite stats: page_size: %w", err)
	}

	return &physical.Stats{
		Keys:        keys,
		SizeBytes:   pageCount * pageSize,
		BackendType: "sqlite",
	}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

type txnAdapter struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *txnAdapter) Get(key []byte) ([]byte, error) {
	var v []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	return v, nil
}

func (t *txnAdapter) Set(key, value []byte) error {
	if t.readOnly {
		return physical.ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

func (t *txnAdapter) Delete(key []byte) error {
	if t.readOnly {
		return physical.ErrReadOnly
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM kv WHERE k = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

func (t *txnAdapter) Scan(prefix []byte, fn func(key, value []byte) error) error {
	var (
		rows *sql.Rows
		err  error
	)
	end := physical.PrefixEnd(prefix)
	switch {
	case len(prefix) == 0:
		rows, err = t.tx.QueryContext(t.ctx, `SELECT k, v FROM kv ORDER BY k`)
	case end == nil:
		rows, err = t.tx.QueryContext(t.ctx, `SELECT k, v FROM kv WHERE k >= ? ORDER BY k`, prefix)
	default:
		rows, err = t.tx.QueryContext(t.ctx, `SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k`, prefix, end)
	}
	if err != nil {
		return fmt.Errorf("sqlite scan: %w", err)
	}

	type pair struct{ k, v []byte }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.k, &p.v); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite scan: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("sqlite scan: %w", err)
	}
	rows.Close()

	for _, p := range pairs {
		if err := fn(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}
