package schema

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"
)

// Card is a normalized row of the cards table.
//
// Base cards have TabooSetID nil (untouched) or 0 (affected by some taboo
// list). Taboo variants carry the positive id of the list that produced them.
type Card struct {
	// ===== Identity =====
	ID              string `db:"id" json:"id"`
	Code            string `db:"code" json:"code"`
	Lang            string `db:"lang" json:"lang"`
	DuplicateOfCode string `db:"duplicate_of_code" json:"duplicate_of_code,omitempty"`
	LinkedToCode    string `db:"linked_to_code" json:"linked_to_code,omitempty"`
	// LinkedCardID references the back-face row; derived from LinkedCard at insert time.
	LinkedCardID *string `db:"linked_card_id" json:"linked_card_id,omitempty"`
	// LinkedCard is the in-memory back face and is never stored directly.
	LinkedCard *Card `db:"-" json:"-"`

	// ===== Names & Text =====
	Name            string `db:"name" json:"name"`
	RealName        string `db:"real_name" json:"real_name"`
	Subname         string `db:"subname" json:"subname,omitempty"`
	Text            string `db:"text" json:"text,omitempty"`
	RealText        string `db:"real_text" json:"real_text,omitempty"`
	BackName        string `db:"back_name" json:"back_name,omitempty"`
	BackText        string `db:"back_text" json:"back_text,omitempty"`
	Flavor          string `db:"flavor" json:"flavor,omitempty"`
	Traits          string `db:"traits" json:"traits,omitempty"`
	RealTraits      string `db:"real_traits" json:"real_traits,omitempty"`
	Illustrator     string `db:"illustrator" json:"illustrator,omitempty"`
	TabooTextChange string `db:"taboo_text_change" json:"taboo_text_change,omitempty"`

	// ===== Classification =====
	TypeCode     string `db:"type_code" json:"type_code"`
	TypeName     string `db:"type_name" json:"type_name,omitempty"`
	SubtypeCode  string `db:"subtype_code" json:"subtype_code,omitempty"`
	FactionCode  string `db:"faction_code" json:"faction_code,omitempty"`
	FactionName  string `db:"faction_name" json:"faction_name,omitempty"`
	Faction2Code string `db:"faction2_code" json:"faction2_code,omitempty"`

	// ===== Pack & Cycle =====
	PackCode      string `db:"pack_code" json:"pack_code"`
	PackName      string `db:"pack_name" json:"pack_name,omitempty"`
	CycleCode     string `db:"cycle_code" json:"cycle_code,omitempty"`
	CycleName     string `db:"cycle_name" json:"cycle_name,omitempty"`
	CyclePosition int    `db:"cycle_position" json:"cycle_position"`
	Position      int    `db:"position" json:"position"`
	Quantity      int    `db:"quantity" json:"quantity"`

	// ===== Deck Building =====
	DeckLimit        *int           `db:"deck_limit" json:"deck_limit,omitempty"`
	Xp               *int           `db:"xp" json:"xp,omitempty"`
	ExtraXp          *int           `db:"extra_xp" json:"extra_xp,omitempty"`
	Cost             *int           `db:"cost" json:"cost,omitempty"`
	Exceptional      bool           `db:"exceptional" json:"exceptional,omitempty"`
	Permanent        bool           `db:"permanent" json:"permanent,omitempty"`
	DeckRequirements types.JSONText `db:"deck_requirements" json:"deck_requirements,omitempty"`
	DeckOptions      types.JSONText `db:"deck_options" json:"deck_options,omitempty"`

	// ===== Stats =====
	Health                *int `db:"health" json:"health,omitempty"`
	Sanity                *int `db:"sanity" json:"sanity,omitempty"`
	HealthPerInvestigator bool `db:"health_per_investigator" json:"health_per_investigator,omitempty"`
	SkillWillpower        *int `db:"skill_willpower" json:"skill_willpower,omitempty"`
	SkillIntellect        *int `db:"skill_intellect" json:"skill_intellect,omitempty"`
	SkillCombat           *int `db:"skill_combat" json:"skill_combat,omitempty"`
	SkillAgility          *int `db:"skill_agility" json:"skill_agility,omitempty"`
	SkillWild             *int `db:"skill_wild" json:"skill_wild,omitempty"`

	// ===== Encounter =====
	EncounterCode     string `db:"encounter_code" json:"encounter_code,omitempty"`
	EncounterName     string `db:"encounter_name" json:"encounter_name,omitempty"`
	EncounterPosition *int   `db:"encounter_position" json:"encounter_position,omitempty"`
	EncounterSize     int    `db:"encounter_size" json:"encounter_size,omitempty"`

	// ===== Flags =====
	Hidden        bool `db:"hidden" json:"hidden,omitempty"`
	Spoiler       bool `db:"spoiler" json:"spoiler,omitempty"`
	DoubleSided   bool `db:"double_sided" json:"double_sided,omitempty"`
	IsUnique      bool `db:"is_unique" json:"is_unique,omitempty"`
	BrowseVisible int  `db:"browse_visible" json:"browse_visible"`

	// ===== Derived during sync =====
	BondedName       string     `db:"bonded_name" json:"bonded_name,omitempty"`
	BondedCount      int        `db:"bonded_count" json:"bonded_count,omitempty"`
	BondedFrom       bool       `db:"bonded_from" json:"bonded_from,omitempty"`
	HasUpgrades      bool       `db:"has_upgrades" json:"has_upgrades,omitempty"`
	ReprintPackCodes StringList `db:"reprint_pack_codes" json:"reprint_pack_codes,omitempty"`

	TabooSetID *int `db:"taboo_set_id" json:"taboo_set_id,omitempty"`
}

// BaseID returns the composite id for a card code under a taboo set.
// A nil or zero taboo set yields the bare code.
func BaseID(code string, tabooSetID *int) string {
	if tabooSetID == nil || *tabooSetID == 0 {
		return code
	}
	return fmt.Sprintf("%d-%s", *tabooSetID, code)
}

// Validate checks the fields the cards table requires.
func (c *Card) Validate() error {
	if c.ID == "" {
		return missing("card", c.Code, "id")
	}
	if c.Code == "" {
		return missing("card", c.ID, "code")
	}
	if c.Name == "" {
		return missing("card", c.Code, "name")
	}
	return nil
}

// IsPlayerCard reports whether the card takes part in deck building:
// a positive deck limit, not a spoiler, and a defined experience cost.
func (c *Card) IsPlayerCard() bool {
	return c.DeckLimit != nil && *c.DeckLimit > 0 && !c.Spoiler && c.Xp != nil
}

// XpOrZero returns the experience cost, treating an undefined cost as 0.
func (c *Card) XpOrZero() int {
	if c.Xp == nil {
		return 0
	}
	return *c.Xp
}

// IsTaboo reports whether this row is a taboo-list variant.
func (c *Card) IsTaboo() bool {
	return c.TabooSetID != nil && *c.TabooSetID > 0
}

// ResolveLink copies the back face's id into LinkedCardID.
// Ids may change during collision disambiguation, so this runs right before insert.
func (c *Card) ResolveLink() {
	if c.LinkedCard == nil {
		return
	}
	id := c.LinkedCard.ID
	c.LinkedCardID = &id
}

// Clone returns a shallow copy with independent pointer fields.
func (c *Card) Clone() *Card {
	out := *c
	out.LinkedCardID = clonePtr(c.LinkedCardID)
	out.DeckLimit = clonePtr(c.DeckLimit)
	out.Xp = clonePtr(c.Xp)
	out.ExtraXp = clonePtr(c.ExtraXp)
	out.Cost = clonePtr(c.Cost)
	out.TabooSetID = clonePtr(c.TabooSetID)
	out.ReprintPackCodes = append(StringList(nil), c.ReprintPackCodes...)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringList stores a list of codes as a comma separated column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	return strings.Join(l, ","), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if s == "" {
		*l = nil
		return nil
	}
	*l = strings.Split(s, ",")
	return nil
}

// EncounterSet is a row of the encounter_sets table.
type EncounterSet struct {
	Code      string `db:"code" json:"code"`
	Name      string `db:"name" json:"name"`
	PackCode  string `db:"pack_code" json:"pack_code"`
	CycleCode string `db:"cycle_code" json:"cycle_code,omitempty"`
	Size      int    `db:"size" json:"size"`
}
