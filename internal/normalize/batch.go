package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// Failure is a feed record that could not be normalized. The record is
// skipped and the rest of the batch continues.
type Failure struct {
	Index int    // position in the feed
	Code  string // card code when present
	Err   error
}

func (f Failure) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("record %d (%s): %v", f.Index, f.Code, f.Err)
	}
	return fmt.Sprintf("record %d: %v", f.Index, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Result is a normalized card batch.
type Result struct {
	Cards    []*schema.Card
	Failures []Failure
}

// Batch normalizes a full card feed. The custom investigator is prepended.
func Batch(raws []schema.CardJSON, idx *Index, lang string) *Result {
	res := newResult(idx, lang, len(raws))
	for i, raw := range raws {
		res.add(i, raw, idx, lang)
	}
	return res
}

// DecodeBatch is Batch over undecoded feed records. A record that does not
// decode into a schema.CardJSON is a Failure like any other bad record.
func DecodeBatch(raws []json.RawMessage, idx *Index, lang string) *Result {
	res := newResult(idx, lang, len(raws))
	for i, data := range raws {
		var raw schema.CardJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			res.Failures = append(res.Failures, Failure{
				Index: i,
				Code:  recordCode(data),
				Err:   fmt.Errorf("failed to decode card: %w", err),
			})
			continue
		}
		res.add(i, raw, idx, lang)
	}
	return res
}

func newResult(idx *Index, lang string, n int) *Result {
	res := &Result{
		Cards: make([]*schema.Card, 0, n+1),
	}
	res.Cards = append(res.Cards, CustomInvestigator(idx, lang))
	return res
}

func (r *Result) add(i int, raw schema.CardJSON, idx *Index, lang string) {
	c, err := Card(raw, idx, lang)
	if err != nil {
		r.Failures = append(r.Failures, Failure{Index: i, Code: raw.Code, Err: err})
		return
	}
	r.Cards = append(r.Cards, c)
}

// recordCode extracts the code of an undecodable record, if it has one.
func recordCode(data json.RawMessage) string {
	var head struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(data, &head)
	return head.Code
}

// Plan is the insert plan of a derived batch.
type Plan struct {
	// BackFaces are the linked cards of LinkedFronts, inserted first.
	BackFaces []*schema.Card
	// LinkedFronts are top-level cards carrying a back face.
	LinkedFronts []*schema.Card
	// Normal are the remaining top-level cards.
	Normal []*schema.Card
	// Flat is every card to insert, each front followed by its back face.
	Flat []*schema.Card
}

// Len returns the number of rows the plan inserts.
func (p *Plan) Len() int {
	return len(p.Flat)
}

// Derive computes the batch-dependent fields in place and partitions the
// cards for insertion. The passes run in order; later passes read fields
// written by earlier ones.
func (r *Result) Derive() *Plan {
	deduped, flat := resolveLinks(r.Cards)
	trackDuplicates(r.Cards, flat)
	sizes := encounterSizes(flat)
	bonded := bondedNames(flat)
	flagUpgrades(flat)
	for _, c := range flat {
		if c.EncounterCode != "" {
			c.EncounterSize = sizes[c.EncounterCode]
		}
		if bonded[c.RealName] {
			c.BondedFrom = true
		}
	}
	disambiguateIDs(flat)

	plan := &Plan{Flat: flat}
	for _, c := range deduped {
		if c.LinkedCard != nil {
			plan.LinkedFronts = append(plan.LinkedFronts, c)
			plan.BackFaces = append(plan.BackFaces, c.LinkedCard)
		} else {
			plan.Normal = append(plan.Normal, c)
		}
	}
	return plan
}

// resolveLinks drops top-level cards already covered by a linked front: back
// faces that also appear on their own, and repeats of a front's code.
func resolveLinks(cards []*schema.Card) (deduped, flat []*schema.Card) {
	linked := make(map[string]bool)
	for _, c := range cards {
		if c.LinkedCard != nil {
			linked[c.Code] = true
			linked[c.LinkedCard.Code] = true
		}
	}
	for _, c := range cards {
		if c.LinkedCard != nil || !linked[c.Code] {
			deduped = append(deduped, c)
		}
	}
	flat = make([]*schema.Card, 0, len(deduped)*2)
	for _, c := range deduped {
		flat = append(flat, c)
		if c.LinkedCard != nil {
			flat = append(flat, c.LinkedCard)
		}
	}
	return deduped, flat
}

// trackDuplicates records on each canonical card the packs that reprint it.
func trackDuplicates(cards, flat []*schema.Card) {
	dupes := make(map[string][]string)
	for _, c := range cards {
		if c.DuplicateOfCode != "" {
			dupes[c.DuplicateOfCode] = append(dupes[c.DuplicateOfCode], c.PackCode)
		}
	}
	for _, c := range flat {
		if packs, ok := dupes[c.Code]; ok {
			c.ReprintPackCodes = append(schema.StringList(nil), packs...)
		}
	}
}

// encounterSizes sums quantity (default 1) per encounter code over visible cards.
func encounterSizes(flat []*schema.Card) map[string]int {
	sizes := make(map[string]int)
	for _, c := range flat {
		if c.Hidden || c.EncounterCode == "" {
			continue
		}
		q := c.Quantity
		if q <= 0 {
			q = 1
		}
		sizes[c.EncounterCode] += q
	}
	return sizes
}

func bondedNames(flat []*schema.Card) map[string]bool {
	names := make(map[string]bool)
	for _, c := range flat {
		if c.BondedName != "" {
			names[c.BondedName] = true
		}
	}
	return names
}

// flagUpgrades marks player cards that have a higher-xp version under the
// same name.
func flagUpgrades(flat []*schema.Card) {
	groups := make(map[string][]*schema.Card)
	var order []string
	for _, c := range flat {
		if !c.IsPlayerCard() {
			continue
		}
		if _, ok := groups[c.RealName]; !ok {
			order = append(order, c.RealName)
		}
		groups[c.RealName] = append(groups[c.RealName], c)
	}
	for _, name := range order {
		group := groups[name]
		if len(group) < 2 {
			continue
		}
		maxXp := group[0].XpOrZero()
		for _, c := range group[1:] {
			maxXp = max(maxXp, c.XpOrZero())
		}
		for _, c := range group {
			c.HasUpgrades = c.XpOrZero() < maxXp
		}
	}
}

// disambiguateIDs suffixes "_<n>" to every member of a group of cards
// sharing an id, n being the member's position within the group.
func disambiguateIDs(flat []*schema.Card) {
	groups := make(map[string][]*schema.Card)
	for _, c := range flat {
		groups[c.ID] = append(groups[c.ID], c)
	}
	for id, group := range groups {
		if len(group) < 2 {
			continue
		}
		for i, c := range group {
			c.ID = fmt.Sprintf("%s_%d", id, i)
		}
	}
}

// EncounterSets derives one row per encounter code, taking name and pack from
// the first card carrying the code.
func (p *Plan) EncounterSets() []*schema.EncounterSet {
	seen := make(map[string]*schema.EncounterSet)
	var sets []*schema.EncounterSet
	for _, c := range p.Flat {
		if c.EncounterCode == "" {
			continue
		}
		if _, ok := seen[c.EncounterCode]; ok {
			continue
		}
		set := &schema.EncounterSet{
			Code:      c.EncounterCode,
			Name:      orDefault(c.EncounterName, c.EncounterCode),
			PackCode:  c.PackCode,
			CycleCode: c.CycleCode,
			Size:      c.EncounterSize,
		}
		seen[c.EncounterCode] = set
		sets = append(sets, set)
	}
	return sets
}
