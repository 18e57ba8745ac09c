// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/nostr"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed   = errors.New("event cache closed")
	ErrNotFound = errors.New("event not found")
)

// schemaVersion is tracked via PRAGMA user_version.
const schemaVersion = 1

// =============================================================================
// CACHE
// =============================================================================

// Cache is the local SQLite event store.
type Cache struct {
	db *sql.DB
}

// DefaultPath returns ~/.nostria/cache.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nostria", "cache.db"), nil
}

// Open opens (and if needed creates) the cache database.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// SQLite allows one writer; serialize access through one connection.
	db.SetMaxOpenConns(1)

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate() error {
	if _, err := c.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	var version int
	if err := c.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	if version >= schemaVersion {
		return nil
	}

	const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	pubkey     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	kind       INTEGER NOT NULL,
	tags       TEXT NOT NULL,
	content    TEXT NOT NULL,
	sig        TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_kind_time ON events(kind, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_pubkey ON events(pubkey, kind);
CREATE INDEX IF NOT EXISTS idx_events_address ON events(address) WHERE address != '';
`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := c.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return err
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// =============================================================================
// SAVE
// =============================================================================

// Save stores an event. Replaceable events supersede older rows with the
// same address; a stale revision is a no-op. Regular duplicate IDs are
// ignored.
func (c *Cache) Save(ctx context.Context, ev *nostr.Event) error {
	tags, err := json.Marshal(ev.Tags)
	if err != nil {
		return err
	}
	addr := ev.Address()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if addr != "" {
		// Keep only the newest revision per address.
		var newest sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT MAX(created_at) FROM events WHERE address = ?`, addr).
			Scan(&newest)
		if err != nil {
			return err
		}
		if newest.Valid && newest.Int64 >= ev.CreatedAt {
			return tx.Commit()
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM events WHERE address = ?`, addr); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT OR IGNORE INTO events (id, pubkey, created_at, kind, tags, content, sig, address)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.PubKey, ev.CreatedAt, ev.Kind, string(tags), ev.Content, ev.Sig, addr)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// QUERY
// =============================================================================

// Query returns cached events matching the filter, newest first. The SQL
// clauses only narrow the scan; the filter's own matching runs on every
// row, so hex-prefix ID and author filters behave as they do on the wire.
func (c *Cache) Query(ctx context.Context, f nostr.Filter) ([]*nostr.Event, error) {
	var (
		where []string
		args  []interface{}
	)

	// Exact IN matching is only sound for full 64-char hex values;
	// prefixes fall through to the per-row match below.
	if len(f.IDs) > 0 && fullHexOnly(f.IDs) {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(f.Authors) > 0 && fullHexOnly(f.Authors) {
		where = append(where, "pubkey IN ("+placeholders(len(f.Authors))+")")
		for _, a := range f.Authors {
			args = append(args, a)
		}
	}
	if len(f.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.Since > 0 {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		where = append(where, "created_at <= ?")
		args = append(args, f.Until)
	}

	query := "SELECT id, pubkey, created_at, kind, tags, content, sig FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*nostr.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		if !f.Matches(ev) {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, rows.Err()
}

// Get returns one event by ID.
func (c *Cache) Get(ctx context.Context, id string) (*nostr.Event, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, pubkey, created_at, kind, tags, content, sig
		 FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ev, err
}

// ByAddress returns the current revision of a replaceable event.
func (c *Cache) ByAddress(ctx context.Context, addr string) (*nostr.Event, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, pubkey, created_at, kind, tags, content, sig
		 FROM events WHERE address = ? ORDER BY created_at DESC LIMIT 1`, addr)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ev, err
}

// Profile returns the cached profile for a pubkey, or nil when unknown.
func (c *Cache) Profile(ctx context.Context, pubkey string) (*account.Profile, error) {
	addr := fmt.Sprintf("%d:%s:", nostr.KindMetadata, pubkey)
	ev, err := c.ByAddress(ctx, addr)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account.ParseProfile(ev)
}

// Prune deletes regular events older than the cutoff. Replaceable events
// are kept regardless of age; they are current state, not history.
func (c *Cache) Prune(ctx context.Context, before int64) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM events WHERE created_at < ? AND address = ''`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of cached events.
func (c *Cache) Count(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*nostr.Event, error) {
	var (
		ev   nostr.Event
		tags string
	)
	if err := row.Scan(&ev.ID, &ev.PubKey, &ev.CreatedAt, &ev.Kind,
		&tags, &ev.Content, &ev.Sig); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &ev.Tags); err != nil {
		return nil, fmt.Errorf("corrupt tags column: %w", err)
	}
	return &ev, nil
}

// fullHexOnly reports whether every value is a complete 64-char key;
// anything shorter is a NIP-01 prefix and cannot use exact SQL matching.
func fullHexOnly(vals []string) bool {
	for _, v := range vals {
		if len(v) != 64 {
			return false
		}
	}
	return true
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
