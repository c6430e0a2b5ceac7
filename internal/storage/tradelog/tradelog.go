// Package tradelog records submitted marketplace flows in a local sqlite
// database. It is an off-ledger convenience for operators and demos; the
// ledger itself never reads it.
package tradelog

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded submission, success or failure.
type Entry struct {
	ID        int64
	GroupID   string
	Flow      string
	AssetID   uint64
	Actor     string
	Amount    uint64
	Result    string
	CreatedAt time.Time
}

// Store is a sqlite-backed trade log.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id   TEXT NOT NULL,
	flow       TEXT NOT NULL,
	asset_id   INTEGER NOT NULL,
	actor      TEXT NOT NULL,
	amount     INTEGER NOT NULL,
	result     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_asset ON submissions(asset_id);
`

// Open opens (or creates) the trade log at path. Use ":memory:" for an
// ephemeral log.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent; each sqlite
	// connection would otherwise get its own empty copy.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init trade log schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one submission entry.
func (s *Store) Record(ctx context.Context, groupID [32]byte, flow string, assetID uint64, actor string, amount uint64, result string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (group_id, flow, asset_id, actor, amount, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		hex.EncodeToString(groupID[:]), flow, assetID, actor, amount, result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// ForAsset returns the submission history of one asset, oldest first.
func (s *Store) ForAsset(ctx context.Context, assetID uint64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, flow, asset_id, actor, amount, result, created_at
		 FROM submissions WHERE asset_id = ? ORDER BY id`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Flow, &e.AssetID, &e.Actor, &e.Amount, &e.Result, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
