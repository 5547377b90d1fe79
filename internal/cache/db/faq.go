package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// GetFaqEntry returns the stored FAQ entry for a card code, or ErrNotFound.
func (db *DB) GetFaqEntry(ctx context.Context, code string) (*schema.FaqEntry, error) {
	var entry schema.FaqEntry
	if err := db.conn.GetContext(ctx, &entry, "SELECT * FROM faq_entries WHERE code = ?", code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get faq entry %s: %w", code, err)
	}
	return &entry, nil
}

// SaveFaqEntry inserts or replaces the FAQ entry of a card.
func (db *DB) SaveFaqEntry(ctx context.Context, entry *schema.FaqEntry) error {
	if entry.Code == "" {
		return fmt.Errorf("invalid faq entry: code is required")
	}
	query := `
	INSERT INTO faq_entries (code, text, html, last_modified, empty, fetched_at)
	VALUES (:code, :text, :html, :last_modified, :empty, :fetched_at)
	ON CONFLICT(code) DO UPDATE SET
		text = excluded.text,
		html = excluded.html,
		last_modified = excluded.last_modified,
		empty = excluded.empty,
		fetched_at = excluded.fetched_at
	`
	if _, err := db.conn.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to save faq entry %s: %w", entry.Code, err)
	}

	db.mu.Lock()
	db.stats = nil
	db.mu.Unlock()
	return nil
}
