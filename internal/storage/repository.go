// Package storage persists the step ledger as a single JSON document in
// a SQLite-backed key-value table. The document is the full array of
// day entries; every write replaces it whole, no partial updates.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"stepledger/internal/core"

	_ "modernc.org/sqlite"
)

// LedgerKey is the document key the step history lives under.
const LedgerKey = "step_history"

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(dbPath string) (*LedgerRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &LedgerRepository{db: db}, nil
}

func (r *LedgerRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection, used as a readiness probe.
func (r *LedgerRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadLedger reads the full step history document. A missing document
// is an empty ledger. A document that no longer parses is also treated
// as empty: the ledger must come up after corruption the same way it
// does on a fresh install.
func (r *LedgerRepository) LoadLedger(ctx context.Context) ([]core.DayEntry, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM documents WHERE key = ?`, LedgerKey,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []core.DayEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger document: %w", err)
	}

	var entries []core.DayEntry
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		slog.WarnContext(ctx, "Ledger document corrupted, starting empty",
			"key", LedgerKey, "error", err)
		return []core.DayEntry{}, nil
	}

	return entries, nil
}

// SaveLedger replaces the whole step history document.
func (r *LedgerRepository) SaveLedger(ctx context.Context, entries []core.DayEntry) error {
	value, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal ledger document: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		LedgerKey, string(value),
	)
	if err != nil {
		return fmt.Errorf("write ledger document: %w", err)
	}

	return nil
}

// DeleteLedger removes the step history document. Deleting an absent
// document succeeds, so clearing twice is harmless.
func (r *LedgerRepository) DeleteLedger(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE key = ?`, LedgerKey,
	); err != nil {
		return fmt.Errorf("delete ledger document: %w", err)
	}
	return nil
}
