package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// DeleteTabooCards removes every taboo variant (taboo_set_id > 0).
func (db *DB) DeleteTabooCards(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM cards WHERE taboo_set_id > 0"); err != nil {
		return fmt.Errorf("failed to delete taboo cards: %w", err)
	}
	return nil
}

// MarkBaseTabooCards sets taboo_set_id = 0 on untouched base rows of the
// given codes. Rows already at 0 keep their value. Returns the rows updated.
func (db *DB) MarkBaseTabooCards(ctx context.Context, codes []string) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`UPDATE cards SET taboo_set_id = 0 WHERE code IN (?) AND taboo_set_id IS NULL`, codes)
	if err != nil {
		return 0, fmt.Errorf("failed to build taboo update: %w", err)
	}
	query = db.conn.Rebind(query)
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark base taboo cards: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountTabooCards counts taboo variant rows. This is the count stored in a
// TabooCache token.
func (db *DB) CountTabooCards(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.GetContext(ctx, &count, "SELECT COUNT(*) FROM cards WHERE taboo_set_id > 0"); err != nil {
		return 0, fmt.Errorf("failed to count taboo cards: %w", err)
	}
	return count, nil
}

// DeleteAllTabooSets removes every taboo set row.
func (db *DB) DeleteAllTabooSets(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM taboo_sets"); err != nil {
		return fmt.Errorf("failed to delete taboo sets: %w", err)
	}
	return nil
}

// InsertTabooSets inserts taboo set rows.
func (db *DB) InsertTabooSets(ctx context.Context, sets []*schema.TabooSet) error {
	if len(sets) == 0 {
		return nil
	}
	query := `INSERT INTO taboo_sets (id, code, name, date_start, card_count, active)
	VALUES (:id, :code, :name, :date_start, :card_count, :active)`
	if _, err := db.conn.NamedExecContext(ctx, query, sets); err != nil {
		return fmt.Errorf("failed to insert taboo sets: %w", err)
	}
	return nil
}

// ListTabooSets returns taboo sets newest first. The result is memoized
// until ClearCache.
func (db *DB) ListTabooSets(ctx context.Context) ([]*schema.TabooSet, error) {
	db.mu.Lock()
	cached := db.tabooSets
	db.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var sets []*schema.TabooSet
	if err := db.conn.SelectContext(ctx, &sets, "SELECT * FROM taboo_sets ORDER BY date_start DESC, id DESC"); err != nil {
		return nil, fmt.Errorf("failed to list taboo sets: %w", err)
	}
	if sets == nil {
		sets = []*schema.TabooSet{}
	}

	db.mu.Lock()
	db.tabooSets = sets
	db.mu.Unlock()
	return sets, nil
}
