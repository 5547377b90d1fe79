package schema

// TabooSet is a row of the taboo_sets table. Sets are replaced wholesale on
// every taboo sync.
type TabooSet struct {
	ID        int    `db:"id" json:"id"`
	Code      string `db:"code" json:"code"`
	Name      string `db:"name" json:"name"`
	DateStart string `db:"date_start" json:"date_start"`
	CardCount int    `db:"card_count" json:"card_count"`
	Active    bool   `db:"active" json:"active"`
}

// NewTabooSet builds the stored row for a taboo list revision.
// cardCount is the number of changes the revision lists, resolved or not.
func NewTabooSet(t *TabooJSON, cardCount int) *TabooSet {
	return &TabooSet{
		ID:        t.ID,
		Code:      t.Code,
		Name:      t.Name,
		DateStart: t.DateStart,
		CardCount: cardCount,
		Active:    bool(t.Active),
	}
}
