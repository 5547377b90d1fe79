// Package normalize converts raw ArkhamDB feed records into cache entities
// and computes the fields that depend on the whole batch.
package normalize

import (
	"fmt"

	"github.com/jmoiron/sqlx/types"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// Browse visibility of a card in the card browser.
const (
	BrowseHidden    = 0
	BrowsePlayer    = 1
	BrowseEncounter = 2
	BrowseCustom    = 4
)

// defaultDeckLimit applies to player cards the feed gives no deck limit.
const defaultDeckLimit = 2

// reservedCyclePositions group packs that do not belong to a numbered cycle
// (return-to, starter decks, side stories, parallel investigators, promos).
var reservedCyclePositions = []int{50, 60, 70, 80, 90}

type cycleInfo struct {
	Name string
	Code string
}

// Index resolves pack codes to pack and cycle metadata.
type Index struct {
	packs  map[string]schema.Pack
	cycles map[int]cycleInfo
}

// NewIndex indexes packs by code. The first pack (position 1) of each cycle
// names the cycle.
func NewIndex(packs []schema.Pack) *Index {
	idx := &Index{
		packs:  make(map[string]schema.Pack, len(packs)),
		cycles: make(map[int]cycleInfo),
	}
	for _, p := range packs {
		idx.packs[p.Code] = p
		if p.Position == 1 {
			idx.cycles[p.CyclePosition] = cycleInfo{Name: p.Name, Code: p.Code}
		}
	}
	for _, pos := range reservedCyclePositions {
		idx.cycles[pos] = cycleInfo{}
	}
	return idx
}

// Pack returns the pack with the given code.
func (idx *Index) Pack(code string) (schema.Pack, bool) {
	p, ok := idx.packs[code]
	return p, ok
}

// cycle returns the cycle of a pack. Reserved positions and unknown cycles
// fall back to the pack itself.
func (idx *Index) cycle(p schema.Pack) cycleInfo {
	if c, ok := idx.cycles[p.CyclePosition]; ok && c.Name != "" {
		return c
	}
	return cycleInfo{Name: p.Name, Code: p.Code}
}

// Card converts one feed record. The nested linked card, if any, is
// converted as the back face.
func Card(raw schema.CardJSON, idx *Index, lang string) (*schema.Card, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	if lang == "" {
		lang = "en"
	}
	name := orDefault(raw.Name, orDefault(raw.RealName, raw.Code))

	c := &schema.Card{
		ID:                    schema.BaseID(raw.Code, nil),
		Code:                  raw.Code,
		Lang:                  lang,
		DuplicateOfCode:       raw.DuplicateOfCode,
		LinkedToCode:          raw.LinkedToCode,
		Name:                  name,
		RealName:              orDefault(raw.RealName, name),
		Subname:               raw.Subname,
		Text:                  raw.Text,
		RealText:              orDefault(raw.RealText, raw.Text),
		BackName:              raw.BackName,
		BackText:              raw.BackText,
		Flavor:                raw.Flavor,
		Traits:                raw.Traits,
		RealTraits:            orDefault(raw.RealTraits, raw.Traits),
		Illustrator:           raw.Illustrator,
		TypeCode:              raw.TypeCode,
		TypeName:              raw.TypeName,
		SubtypeCode:           raw.SubtypeCode,
		FactionCode:           raw.FactionCode,
		FactionName:           raw.FactionName,
		Faction2Code:          raw.Faction2Code,
		PackCode:              raw.PackCode,
		PackName:              raw.PackName,
		Position:              raw.Position,
		Quantity:              1,
		DeckLimit:             raw.DeckLimit,
		Xp:                    raw.Xp,
		Cost:                  raw.Cost,
		Exceptional:           bool(raw.Exceptional),
		Permanent:             bool(raw.Permanent),
		Health:                raw.Health,
		Sanity:                raw.Sanity,
		HealthPerInvestigator: bool(raw.HealthPerInv),
		SkillWillpower:        raw.SkillWillpower,
		SkillIntellect:        raw.SkillIntellect,
		SkillCombat:           raw.SkillCombat,
		SkillAgility:          raw.SkillAgility,
		SkillWild:             raw.SkillWild,
		EncounterCode:         raw.EncounterCode,
		EncounterName:         raw.EncounterName,
		EncounterPosition:     raw.EncounterPos,
		Hidden:                bool(raw.Hidden),
		Spoiler:               bool(raw.Spoiler),
		DoubleSided:           bool(raw.DoubleSided),
		IsUnique:              bool(raw.IsUnique),
		BondedName:            raw.BondedTo,
		BondedCount:           raw.BondedCount,
	}
	if raw.Quantity != nil {
		c.Quantity = *raw.Quantity
	}
	if len(raw.DeckRequirements) > 0 {
		c.DeckRequirements = types.JSONText(raw.DeckRequirements)
	}
	if len(raw.DeckOptions) > 0 {
		c.DeckOptions = types.JSONText(raw.DeckOptions)
	}

	if p, ok := idx.Pack(raw.PackCode); ok {
		cyc := idx.cycle(p)
		c.PackName = orDefault(p.Name, c.PackName)
		c.CyclePosition = p.CyclePosition
		c.CycleName = cyc.Name
		c.CycleCode = cyc.Code
	} else {
		c.CycleName = c.PackName
		c.CycleCode = c.PackCode
	}

	switch {
	case c.Hidden:
		c.BrowseVisible = BrowseHidden
	case c.EncounterCode != "":
		c.BrowseVisible = BrowseEncounter
	default:
		c.BrowseVisible = BrowsePlayer
	}

	if c.DeckLimit == nil && c.Xp != nil && c.EncounterCode == "" && !c.Hidden {
		limit := defaultDeckLimit
		c.DeckLimit = &limit
	}

	if raw.LinkedCard != nil {
		back, err := Card(*raw.LinkedCard, idx, lang)
		if err != nil {
			return nil, fmt.Errorf("linked card of %s: %w", raw.Code, err)
		}
		c.LinkedCard = back
		if c.LinkedToCode == "" {
			c.LinkedToCode = back.Code
		}
	}

	return c, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// CustomInvestigatorCode is the code of the synthesized investigator.
const CustomInvestigatorCode = "custom_001"

// CustomInvestigator builds "Johnny Anybody", a placeholder investigator
// that allows building decks from any class at any level. It is not part of
// the feed and is added to every full card sync.
func CustomInvestigator(idx *Index, lang string) *schema.Card {
	raw := schema.CardJSON{
		Code:           CustomInvestigatorCode,
		Name:           "Johnny Anybody",
		RealName:       "Johnny Anybody",
		Subname:        "The Chameleon",
		PackCode:       "custom",
		PackName:       "Custom",
		TypeCode:       "investigator",
		TypeName:       "Investigator",
		FactionCode:    "neutral",
		FactionName:    "Neutral",
		Position:       1,
		Quantity:       intPtr(1),
		DeckLimit:      intPtr(1),
		SkillWillpower: intPtr(3),
		SkillIntellect: intPtr(3),
		SkillCombat:    intPtr(3),
		SkillAgility:   intPtr(3),
		Health:         intPtr(7),
		Sanity:         intPtr(7),
		IsUnique:       true,
		DoubleSided:    true,
		Text: "This is a custom investigator to allow for building of arbitrary decks.\n" +
			"[elder_sign]: +X where X is whatever you want it to be.",
		BackText: "<b>Deck Size</b>: 30.\n" +
			"<b>Deckbuilding Options</b>: Guardian cards ([guardian]) level 0-5, Seeker cards ([seeker]) level 0-5, " +
			"Rogue cards ([rogue]) level 0-5, Mystic cards ([mystic]) level 0-5, Survivor cards ([survivor]) level 0-5, " +
			"Neutral cards level 0-5.\n" +
			"<b>Deckbuilding Requirements</b> (do not count toward deck size): 1 random basic weakness.",
		DeckRequirements: []byte(`{"size":30,"card":{},"random":[{"target":"subtype","value":"basicweakness"}]}`),
		DeckOptions: []byte(`[{"faction":["guardian","seeker","rogue","mystic","survivor","neutral"],` +
			`"level":{"min":0,"max":5}}]`),
	}
	c, err := Card(raw, idx, lang)
	if err != nil {
		// the literal above always validates
		panic(err)
	}
	c.BrowseVisible = BrowseCustom
	return c
}

func intPtr(v int) *int { return &v }
