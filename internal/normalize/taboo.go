package normalize

import (
	"fmt"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// PlaceholderTabooCard clones a base card into an unmodified variant for a
// taboo set. The clone keeps the base card's back face.
func PlaceholderTabooCard(tabooID int, base *schema.Card) *schema.Card {
	c := base.Clone()
	id := tabooID
	c.TabooSetID = &id
	c.ID = schema.BaseID(base.Code, &id)
	c.TabooTextChange = ""
	c.ExtraXp = nil
	return c
}

// ApplyTabooOverlay applies one taboo list change to a placeholder variant
// and returns the modified copy.
//
// Text replaces the card text and is kept as taboo_text_change. Xp is extra
// experience added to the card's cost and kept as extra_xp.
func ApplyTabooOverlay(tabooID int, overlay schema.TabooCardJSON, placeholder *schema.Card) (*schema.Card, error) {
	if err := overlay.Validate(); err != nil {
		return nil, err
	}
	if overlay.Code != placeholder.Code {
		return nil, fmt.Errorf("taboo %d: overlay for %s applied to %s", tabooID, overlay.Code, placeholder.Code)
	}
	if placeholder.TabooSetID == nil || *placeholder.TabooSetID != tabooID {
		return nil, fmt.Errorf("taboo %d: card %s is not a placeholder of this set", tabooID, placeholder.ID)
	}

	c := placeholder.Clone()
	if overlay.Text != nil {
		c.Text = *overlay.Text
		c.TabooTextChange = *overlay.Text
	}
	if overlay.Xp != nil {
		extra := *overlay.Xp
		c.ExtraXp = &extra
		if c.Xp != nil {
			xp := *c.Xp + extra
			c.Xp = &xp
		}
	}
	if overlay.Exceptional != nil {
		c.Exceptional = bool(*overlay.Exceptional)
	}
	if overlay.DeckLimit != nil {
		limit := *overlay.DeckLimit
		c.DeckLimit = &limit
	}
	return c, nil
}
