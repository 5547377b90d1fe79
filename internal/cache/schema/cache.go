package schema

// CardCache is the freshness token of the card table.
type CardCache struct {
	CardCount    int    `json:"cardCount" toml:"card_count"`
	LastModified string `json:"lastModified,omitempty" toml:"last_modified,omitempty"`
}

// Conditional reports whether a conditional request may be sent given the
// live count of base cards.
func (c *CardCache) Conditional(liveCount int) bool {
	return c != nil && c.LastModified != "" && c.CardCount > 0 && c.CardCount == liveCount
}

// TabooCache is the freshness token of the taboo variants.
type TabooCache struct {
	TabooCount   int    `json:"tabooCount" toml:"taboo_count"`
	LastModified string `json:"lastModified,omitempty" toml:"last_modified,omitempty"`
}

// Conditional reports whether a conditional request may be sent given the
// live count of taboo variant rows.
func (c *TabooCache) Conditional(liveCount int) bool {
	return c != nil && c.LastModified != "" && c.TabooCount > 0 && c.TabooCount == liveCount
}
