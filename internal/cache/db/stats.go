package db

import (
	"context"
	"fmt"
)

// Stats summarizes the cache contents.
type Stats struct {
	Cards         int `db:"cards" json:"cards"`
	BaseCards     int `db:"base_cards" json:"base_cards"`
	TabooCards    int `db:"taboo_cards" json:"taboo_cards"`
	TabooSets     int `db:"taboo_sets" json:"taboo_sets"`
	EncounterSets int `db:"encounter_sets" json:"encounter_sets"`
	Rules         int `db:"rules" json:"rules"`
	FaqEntries    int `db:"faq_entries" json:"faq_entries"`
}

// Stats returns row counts for every cache table. The result is memoized
// until ClearCache.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	db.mu.Lock()
	cached := db.stats
	db.mu.Unlock()
	if cached != nil {
		s := *cached
		return &s, nil
	}

	query := `
	SELECT
		(SELECT COUNT(*) FROM cards) AS cards,
		(SELECT COUNT(*) FROM cards WHERE ` + baseCardCondition + `) AS base_cards,
		(SELECT COUNT(*) FROM cards WHERE taboo_set_id > 0) AS taboo_cards,
		(SELECT COUNT(*) FROM taboo_sets) AS taboo_sets,
		(SELECT COUNT(*) FROM encounter_sets) AS encounter_sets,
		(SELECT COUNT(*) FROM rules) AS rules,
		(SELECT COUNT(*) FROM faq_entries) AS faq_entries
	`
	var s Stats
	if err := db.conn.GetContext(ctx, &s, query); err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	db.mu.Lock()
	db.stats = &s
	db.mu.Unlock()
	out := s
	return &out, nil
}
