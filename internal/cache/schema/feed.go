package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexBool decodes the API's mixed boolean encodings: true/false, 1/0, "1"/"0" and null.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1", `"1"`, `"true"`:
		*b = true
	case "false", "0", `"0"`, `"false"`, "null", `""`:
		*b = false
	default:
		return fmt.Errorf("cannot decode %s as boolean", data)
	}
	return nil
}

// Pack is one entry of /api/public/packs/.
type Pack struct {
	Code          string `json:"code" toml:"code"`
	Name          string `json:"name" toml:"name"`
	Position      int    `json:"position" toml:"position"`
	CyclePosition int    `json:"cycle_position" toml:"cycle_position"`
	Total         int    `json:"total,omitempty" toml:"total"`
	Available     string `json:"available,omitempty" toml:"available"`
}

// CardJSON is one card record of /api/public/cards/?encounter=1.
type CardJSON struct {
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	RealName        string    `json:"real_name,omitempty"`
	Subname         string    `json:"subname,omitempty"`
	TypeCode        string    `json:"type_code"`
	TypeName        string    `json:"type_name,omitempty"`
	SubtypeCode     string    `json:"subtype_code,omitempty"`
	FactionCode     string    `json:"faction_code,omitempty"`
	FactionName     string    `json:"faction_name,omitempty"`
	Faction2Code    string    `json:"faction2_code,omitempty"`
	PackCode        string    `json:"pack_code"`
	PackName        string    `json:"pack_name,omitempty"`
	Position        int       `json:"position"`
	Quantity        *int      `json:"quantity,omitempty"`
	DeckLimit       *int      `json:"deck_limit,omitempty"`
	Xp              *int      `json:"xp,omitempty"`
	Cost            *int      `json:"cost,omitempty"`
	Text            string    `json:"text,omitempty"`
	RealText        string    `json:"real_text,omitempty"`
	BackName        string    `json:"back_name,omitempty"`
	BackText        string    `json:"back_text,omitempty"`
	Flavor          string    `json:"flavor,omitempty"`
	Traits          string    `json:"traits,omitempty"`
	RealTraits      string    `json:"real_traits,omitempty"`
	Illustrator     string    `json:"illustrator,omitempty"`
	EncounterCode   string    `json:"encounter_code,omitempty"`
	EncounterName   string    `json:"encounter_name,omitempty"`
	EncounterPos    *int      `json:"encounter_position,omitempty"`
	Hidden          FlexBool  `json:"hidden,omitempty"`
	Spoiler         FlexBool  `json:"spoiler,omitempty"`
	DoubleSided     FlexBool  `json:"double_sided,omitempty"`
	IsUnique        FlexBool  `json:"is_unique,omitempty"`
	Exceptional     FlexBool  `json:"exceptional,omitempty"`
	Permanent       FlexBool  `json:"permanent,omitempty"`
	HealthPerInv    FlexBool  `json:"health_per_investigator,omitempty"`
	Health          *int      `json:"health,omitempty"`
	Sanity          *int      `json:"sanity,omitempty"`
	SkillWillpower  *int      `json:"skill_willpower,omitempty"`
	SkillIntellect  *int      `json:"skill_intellect,omitempty"`
	SkillCombat     *int      `json:"skill_combat,omitempty"`
	SkillAgility    *int      `json:"skill_agility,omitempty"`
	SkillWild       *int      `json:"skill_wild,omitempty"`
	BondedTo        string    `json:"bonded_to,omitempty"`
	BondedCount     int       `json:"bonded_count,omitempty"`
	DuplicateOfCode string    `json:"duplicate_of_code,omitempty"`
	LinkedToCode    string    `json:"linked_to_code,omitempty"`
	LinkedCard      *CardJSON `json:"linked_card,omitempty"`

	DeckRequirements json.RawMessage `json:"deck_requirements,omitempty"`
	DeckOptions      json.RawMessage `json:"deck_options,omitempty"`
}

// Validate checks the card can be keyed. Every other field is optional;
// a missing name falls back to real_name, then to the code.
func (c *CardJSON) Validate() error {
	if c.Code == "" {
		return missing("card", "", "code")
	}
	if c.LinkedCard != nil {
		if err := c.LinkedCard.Validate(); err != nil {
			return fmt.Errorf("linked card of %s: %w", c.Code, err)
		}
	}
	return nil
}

// TabooJSON is one taboo list revision of /api/public/taboos/.
type TabooJSON struct {
	ID        int      `json:"id"`
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	DateStart string   `json:"date_start"`
	Active    FlexBool `json:"active"`
	// Cards holds a JSON-encoded []TabooCardJSON.
	Cards     string   `json:"cards"`
}

// Validate checks the taboo list header fields. date_start is optional.
func (t *TabooJSON) Validate() error {
	if t.ID <= 0 {
		return &ValidationError{Record: "taboo", Key: t.Code, Field: "id", Reason: "must be positive"}
	}
	return nil
}

// ParseCards decodes the embedded card list.
func (t *TabooJSON) ParseCards() ([]TabooCardJSON, error) {
	if t.Cards == "" {
		return []TabooCardJSON{}, nil
	}
	var cards []TabooCardJSON
	if err := json.Unmarshal([]byte(t.Cards), &cards); err != nil {
		return nil, &NestedJSONError{TabooID: t.ID, Err: err}
	}
	return cards, nil
}

// TabooCardJSON is one per-card change inside a taboo list.
type TabooCardJSON struct {
	Code        string    `json:"code"`
	Xp          *int      `json:"xp,omitempty"`
	Text        *string   `json:"text,omitempty"`
	Exceptional *FlexBool `json:"exceptional,omitempty"`
	DeckLimit   *int      `json:"deck_limit,omitempty"`
}

// Validate checks the overlay can be matched to a base card.
func (t *TabooCardJSON) Validate() error {
	if t.Code == "" {
		return missing("taboo card", "", "code")
	}
	return nil
}

// FaqJSON is one entry of /api/public/faq/{code}.json.
type FaqJSON struct {
	Code string `json:"code"`
	Text string `json:"text"`
	HTML string `json:"html,omitempty"`
}

// RuleJSON is one entry of a bundled rules file. Entries nest without limit.
type RuleJSON struct {
	Title string     `json:"title"`
	Text  string     `json:"text,omitempty"`
	Rules []RuleJSON `json:"rules,omitempty"`
}
