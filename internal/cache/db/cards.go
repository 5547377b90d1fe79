package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// cardColumns lists the cards table columns in schema order; it must match
// the db tags of schema.Card.
var cardColumns = []string{
	"id", "code", "lang", "duplicate_of_code", "linked_to_code", "linked_card_id",
	"name", "real_name", "subname", "text", "real_text", "back_name", "back_text",
	"flavor", "traits", "real_traits", "illustrator", "taboo_text_change",
	"type_code", "type_name", "subtype_code", "faction_code", "faction_name", "faction2_code",
	"pack_code", "pack_name", "cycle_code", "cycle_name", "cycle_position", "position", "quantity",
	"deck_limit", "xp", "extra_xp", "cost", "exceptional", "permanent",
	"deck_requirements", "deck_options",
	"health", "sanity", "health_per_investigator",
	"skill_willpower", "skill_intellect", "skill_combat", "skill_agility", "skill_wild",
	"encounter_code", "encounter_name", "encounter_position", "encounter_size",
	"hidden", "spoiler", "double_sided", "is_unique", "browse_visible",
	"bonded_name", "bonded_count", "bonded_from", "has_upgrades", "reprint_pack_codes",
	"taboo_set_id",
}

var insertCardQuery = "INSERT INTO cards (" + strings.Join(cardColumns, ", ") +
	") VALUES (:" + strings.Join(cardColumns, ", :") + ")"

const baseCardCondition = "(taboo_set_id IS NULL OR taboo_set_id = 0)"

// InsertCards inserts a batch of cards with a single multi-row statement.
// Each card's LinkedCardID is resolved from its in-memory back face first,
// so back faces must already be present.
func InsertCards(ctx context.Context, e sqlx.ExtContext, cards []*schema.Card) error {
	if len(cards) == 0 {
		return nil
	}
	for _, c := range cards {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid card: %w", err)
		}
		c.ResolveLink()
	}
	if _, err := sqlx.NamedExecContext(ctx, e, insertCardQuery, cards); err != nil {
		return fmt.Errorf("failed to insert %d cards (first %s): %w", len(cards), cards[0].ID, err)
	}
	return nil
}

// InsertEncounterSets inserts encounter set rows.
func InsertEncounterSets(ctx context.Context, e sqlx.ExtContext, sets []*schema.EncounterSet) error {
	if len(sets) == 0 {
		return nil
	}
	query := `INSERT INTO encounter_sets (code, name, pack_code, cycle_code, size)
	VALUES (:code, :name, :pack_code, :cycle_code, :size)`
	if _, err := sqlx.NamedExecContext(ctx, e, query, sets); err != nil {
		return fmt.Errorf("failed to insert encounter sets: %w", err)
	}
	return nil
}

// DeleteAllCards removes every card row, taboo variants included.
func (db *DB) DeleteAllCards(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM cards"); err != nil {
		return fmt.Errorf("failed to delete cards: %w", err)
	}
	return nil
}

// DeleteAllEncounterSets removes every encounter set row.
func (db *DB) DeleteAllEncounterSets(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM encounter_sets"); err != nil {
		return fmt.Errorf("failed to delete encounter sets: %w", err)
	}
	return nil
}

// CountBaseCards counts cards whose taboo_set_id is NULL or 0.
// This is the count stored in a CardCache token.
func (db *DB) CountBaseCards() (int, error) {
	return db.CountBaseCardsContext(context.Background())
}

// CountBaseCardsContext counts base cards with context support.
func (db *DB) CountBaseCardsContext(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.GetContext(ctx, &count, "SELECT COUNT(*) FROM cards WHERE "+baseCardCondition); err != nil {
		return 0, fmt.Errorf("failed to count base cards: %w", err)
	}
	return count, nil
}

// GetCard retrieves a card by composite id, with its back face loaded.
// Returns ErrNotFound if no row matches.
func (db *DB) GetCard(id string) (*schema.Card, error) {
	return db.GetCardContext(context.Background(), id)
}

// GetCardContext retrieves a card by id with context support.
func (db *DB) GetCardContext(ctx context.Context, id string) (*schema.Card, error) {
	return getCard(ctx, db.conn, "SELECT * FROM cards WHERE id = ?", id)
}

// GetCardByCode retrieves a card by code. With a positive tabooSetID the
// taboo variant is preferred and the base card is the fallback.
func (db *DB) GetCardByCode(ctx context.Context, code string, tabooSetID *int) (*schema.Card, error) {
	if tabooSetID != nil && *tabooSetID > 0 {
		card, err := getCard(ctx, db.conn,
			"SELECT * FROM cards WHERE code = ? AND taboo_set_id = ? LIMIT 1", code, *tabooSetID)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return card, err
		}
	}
	return getCard(ctx, db.conn,
		"SELECT * FROM cards WHERE code = ? AND "+baseCardCondition+" ORDER BY id LIMIT 1", code)
}

// BaseTabooCard looks up the base row (taboo_set_id = 0) of a card named by
// a taboo list, with its back face loaded. Returns ErrNotFound when the code
// has no base row.
func BaseTabooCard(ctx context.Context, q sqlx.QueryerContext, code string) (*schema.Card, error) {
	return getCard(ctx, q, "SELECT * FROM cards WHERE code = ? AND taboo_set_id = 0 ORDER BY id LIMIT 1", code)
}

func getCard(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*schema.Card, error) {
	var card schema.Card
	if err := sqlx.GetContext(ctx, q, &card, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	if card.LinkedCardID != nil {
		var linked schema.Card
		err := sqlx.GetContext(ctx, q, &linked, "SELECT * FROM cards WHERE id = ?", *card.LinkedCardID)
		switch {
		case err == nil:
			card.LinkedCard = &linked
		case errors.Is(err, sql.ErrNoRows):
			// dangling link, keep the id
		default:
			return nil, fmt.Errorf("failed to get linked card %s: %w", *card.LinkedCardID, err)
		}
	}
	return &card, nil
}

// ListCardsFilter configures the ListCards query.
type ListCardsFilter struct {
	// TabooSetID selects taboo variants of one set; nil selects base cards
	TabooSetID *int
	// PackCode filters by pack (empty = all packs)
	PackCode string
	// TypeCode filters by card type (empty = all types)
	TypeCode string
	// IncludeHidden includes rows with browse_visible = 0
	IncludeHidden bool
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// ListCards retrieves cards matching the filter ordered by pack and position.
func (db *DB) ListCards(ctx context.Context, filter ListCardsFilter) ([]*schema.Card, error) {
	var conditions []string
	var args []any

	if filter.TabooSetID != nil && *filter.TabooSetID > 0 {
		conditions = append(conditions, "taboo_set_id = ?")
		args = append(args, *filter.TabooSetID)
	} else {
		conditions = append(conditions, baseCardCondition)
	}
	if filter.PackCode != "" {
		conditions = append(conditions, "pack_code = ?")
		args = append(args, filter.PackCode)
	}
	if filter.TypeCode != "" {
		conditions = append(conditions, "type_code = ?")
		args = append(args, filter.TypeCode)
	}
	if !filter.IncludeHidden {
		conditions = append(conditions, "browse_visible > 0")
	}

	query := "SELECT * FROM cards WHERE " + strings.Join(conditions, " AND ") +
		" ORDER BY cycle_position ASC, pack_code ASC, position ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	var cards []*schema.Card
	if err := db.conn.SelectContext(ctx, &cards, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// ListEncounterSets returns every encounter set ordered by code.
func (db *DB) ListEncounterSets(ctx context.Context) ([]*schema.EncounterSet, error) {
	var sets []*schema.EncounterSet
	if err := db.conn.SelectContext(ctx, &sets, "SELECT * FROM encounter_sets ORDER BY code"); err != nil {
		return nil, fmt.Errorf("failed to list encounter sets: %w", err)
	}
	return sets, nil
}
