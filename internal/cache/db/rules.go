package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// InsertRules inserts rule rows. Parents must precede their children.
func InsertRules(ctx context.Context, e sqlx.ExtContext, rules []*schema.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid rule: %w", err)
		}
	}
	query := `INSERT INTO rules (id, lang, position, title, text, parent_rule_id)
	VALUES (:id, :lang, :position, :title, :text, :parent_rule_id)`
	if _, err := sqlx.NamedExecContext(ctx, e, query, rules); err != nil {
		return fmt.Errorf("failed to insert %d rules: %w", len(rules), err)
	}
	return nil
}

// DeleteAllRules removes every rule row.
func (db *DB) DeleteAllRules(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM rules"); err != nil {
		return fmt.Errorf("failed to delete rules: %w", err)
	}
	return nil
}

// ListRules returns the top-level rules of a language with their stored
// descendants attached. An empty lang lists every language.
func (db *DB) ListRules(ctx context.Context, lang string) ([]*schema.Rule, error) {
	query := "SELECT * FROM rules"
	var args []any
	if lang != "" {
		query += " WHERE lang = ?"
		args = append(args, lang)
	}
	query += " ORDER BY position ASC, id ASC"

	var all []*schema.Rule
	if err := db.conn.SelectContext(ctx, &all, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	byID := make(map[string]*schema.Rule, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}
	var roots []*schema.Rule
	for _, r := range all {
		if r.ParentID == nil {
			roots = append(roots, r)
			continue
		}
		if parent, ok := byID[*r.ParentID]; ok {
			parent.Rules = append(parent.Rules, r)
		}
	}
	return roots, nil
}
