// Package db provides the local card cache: an embedded SQLite database
// holding the normalized ArkhamDB card catalog.
//
// The database runs embedded (ncruces/go-sqlite3, no cgo) in WAL mode so the
// CLI and dashboard can read while a sync writes. Row mapping goes through
// sqlx; the `db` tags on the schema package entities are the column names.
//
// Tables:
//   - cards: base cards, back faces and taboo variants keyed by composite id
//   - encounter_sets: encounter codes with their summed card quantity
//   - taboo_sets: taboo list revisions
//   - rules: rules reference entries, children linked by parent_rule_id
//   - faq_entries: per-card FAQ text with its own Last-Modified token
//
// Write operations take a sqlx.ExtContext so the sync engine can run them
// either on the database or inside a transaction from Begin.
package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// DB wraps the cache database connection.
type DB struct {
	conn *sqlx.DB
	path string

	// memoized derived queries, dropped by ClearCache
	mu        sync.Mutex
	tabooSets []*schema.TabooSet
	stats     *Stats
}

// Open creates or opens the cache database at path.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
//
// Example:
//
//	store, err := db.Open("~/.local/share/ahdb/cards.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Connection pragmas go in the DSN so every pooled connection gets them.
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	dsn := "file:" + path + "?" + params.Encode()

	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// journal_mode is persistent in the file, once is enough
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sqlx connection.
func (db *DB) RawDB() *sqlx.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the cache tables and indexes. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the cache tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Begin starts a transaction. Callers must Commit or Rollback.
func (db *DB) Begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// ClearCache drops memoized query results (taboo set list, stats).
// The sync engine calls it after replacing table contents.
func (db *DB) ClearCache() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tabooSets = nil
	db.stats = nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS cards (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL,
	lang TEXT NOT NULL DEFAULT 'en',
	duplicate_of_code TEXT NOT NULL DEFAULT '',
	linked_to_code TEXT NOT NULL DEFAULT '',
	linked_card_id TEXT,

	name TEXT NOT NULL,
	real_name TEXT NOT NULL,
	subname TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	real_text TEXT NOT NULL DEFAULT '',
	back_name TEXT NOT NULL DEFAULT '',
	back_text TEXT NOT NULL DEFAULT '',
	flavor TEXT NOT NULL DEFAULT '',
	traits TEXT NOT NULL DEFAULT '',
	real_traits TEXT NOT NULL DEFAULT '',
	illustrator TEXT NOT NULL DEFAULT '',
	taboo_text_change TEXT NOT NULL DEFAULT '',

	type_code TEXT NOT NULL,
	type_name TEXT NOT NULL DEFAULT '',
	subtype_code TEXT NOT NULL DEFAULT '',
	faction_code TEXT NOT NULL DEFAULT '',
	faction_name TEXT NOT NULL DEFAULT '',
	faction2_code TEXT NOT NULL DEFAULT '',

	pack_code TEXT NOT NULL,
	pack_name TEXT NOT NULL DEFAULT '',
	cycle_code TEXT NOT NULL DEFAULT '',
	cycle_name TEXT NOT NULL DEFAULT '',
	cycle_position INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL DEFAULT 0,
	quantity INTEGER NOT NULL DEFAULT 1,

	deck_limit INTEGER,
	xp INTEGER,
	extra_xp INTEGER,
	cost INTEGER,
	exceptional INTEGER NOT NULL DEFAULT 0,
	permanent INTEGER NOT NULL DEFAULT 0,
	deck_requirements TEXT,  -- JSON
	deck_options TEXT,       -- JSON

	health INTEGER,
	sanity INTEGER,
	health_per_investigator INTEGER NOT NULL DEFAULT 0,
	skill_willpower INTEGER,
	skill_intellect INTEGER,
	skill_combat INTEGER,
	skill_agility INTEGER,
	skill_wild INTEGER,

	encounter_code TEXT NOT NULL DEFAULT '',
	encounter_name TEXT NOT NULL DEFAULT '',
	encounter_position INTEGER,
	encounter_size INTEGER NOT NULL DEFAULT 0,

	hidden INTEGER NOT NULL DEFAULT 0,
	spoiler INTEGER NOT NULL DEFAULT 0,
	double_sided INTEGER NOT NULL DEFAULT 0,
	is_unique INTEGER NOT NULL DEFAULT 0,
	browse_visible INTEGER NOT NULL DEFAULT 1,

	bonded_name TEXT NOT NULL DEFAULT '',
	bonded_count INTEGER NOT NULL DEFAULT 0,
	bonded_from INTEGER NOT NULL DEFAULT 0,
	has_upgrades INTEGER NOT NULL DEFAULT 0,
	reprint_pack_codes TEXT,  -- comma separated

	-- NULL untouched, 0 base card named by a taboo list, >0 taboo variant
	taboo_set_id INTEGER,

	FOREIGN KEY (linked_card_id) REFERENCES cards(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS encounter_sets (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	pack_code TEXT NOT NULL DEFAULT '',
	cycle_code TEXT NOT NULL DEFAULT '',
	size INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS taboo_sets (
	id INTEGER PRIMARY KEY,
	code TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	date_start TEXT NOT NULL DEFAULT '',
	card_count INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rules (
	id TEXT PRIMARY KEY,
	lang TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	parent_rule_id TEXT
);

CREATE TABLE IF NOT EXISTS faq_entries (
	code TEXT PRIMARY KEY,
	text TEXT NOT NULL DEFAULT '',
	html TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT '',
	empty INTEGER NOT NULL DEFAULT 0,
	fetched_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_code ON cards(code);
CREATE INDEX IF NOT EXISTS idx_cards_taboo ON cards(taboo_set_id);
CREATE INDEX IF NOT EXISTS idx_cards_code_taboo ON cards(code, taboo_set_id);
CREATE INDEX IF NOT EXISTS idx_cards_pack ON cards(pack_code, position);
CREATE INDEX IF NOT EXISTS idx_cards_encounter ON cards(encounter_code);
CREATE INDEX IF NOT EXISTS idx_cards_real_name ON cards(real_name);
CREATE INDEX IF NOT EXISTS idx_rules_parent ON rules(parent_rule_id);
CREATE INDEX IF NOT EXISTS idx_rules_lang ON rules(lang, position);
`
