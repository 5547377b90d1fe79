package schema

import "time"

// FaqEntry is the cached FAQ text of one card. Empty marks a card the API
// has no FAQ for, so repeated lookups can be answered locally.
type FaqEntry struct {
	Code         string `db:"code" json:"code"`
	Text         string `db:"text" json:"text"`
	HTML         string `db:"html" json:"html,omitempty"`
	LastModified string `db:"last_modified" json:"last_modified,omitempty"`
	Empty        bool   `db:"empty" json:"empty"`
	FetchedAt    string `db:"fetched_at" json:"fetched_at"`
}

// NewFaqEntry builds an entry from the first record of a FAQ response.
func NewFaqEntry(code string, rec FaqJSON, lastModified string, now time.Time) *FaqEntry {
	return &FaqEntry{
		Code:         code,
		Text:         rec.Text,
		HTML:         rec.HTML,
		LastModified: lastModified,
		FetchedAt:    now.UTC().Format(time.RFC3339),
	}
}

// EmptyFaqEntry builds the sentinel stored when the API returns no content.
func EmptyFaqEntry(code, lastModified string, now time.Time) *FaqEntry {
	return &FaqEntry{
		Code:         code,
		LastModified: lastModified,
		Empty:        true,
		FetchedAt:    now.UTC().Format(time.RFC3339),
	}
}

// Fetched returns FetchedAt as a time. A missing or malformed value yields the zero time.
func (f *FaqEntry) Fetched() time.Time {
	t, err := time.Parse(time.RFC3339, f.FetchedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FreshAt reports whether the entry was fetched less than ttl before now.
func (f *FaqEntry) FreshAt(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	fetched := f.Fetched()
	if fetched.IsZero() {
		return false
	}
	return now.Sub(fetched) < ttl
}
