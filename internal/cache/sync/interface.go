package sync

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/catalog"
)

// Syncer keeps the local card cache in sync with the remote catalog.
//
// Per-record failures (a card that does not normalize, a taboo list whose
// card list cannot be parsed, a taboo code with no base card) are logged,
// reported and skipped. Fetch failures and transaction failures are returned.
type Syncer interface {
	// SyncCards replaces the card, encounter set, taboo set and rule tables
	// from the card feed.
	//
	// cache is the token returned by the previous successful call, or nil.
	// When the server answers 304 the returned result carries the same token
	// with NotModified set and nothing was written.
	//
	// Example:
	//   res, err := syncer.SyncCards(ctx, packs, state.Cards)
	//   state.Cards = res.Cache
	SyncCards(ctx context.Context, packs []schema.Pack, cache *schema.CardCache) (*CardResult, error)

	// SyncTaboos rebuilds the taboo variants and taboo sets from the taboo
	// feed. Base cards must already be cached.
	//
	// Example:
	//   res, err := syncer.SyncTaboos(ctx, state.Taboos)
	SyncTaboos(ctx context.Context, cache *schema.TabooCache) (*TabooResult, error)

	// SyncRules inserts the rules bundle of the configured language. It does
	// not delete existing rows; SyncCards clears the table before calling it.
	SyncRules(ctx context.Context) error

	// RefreshRules deletes every rule row and runs SyncRules.
	RefreshRules(ctx context.Context) error

	// FaqEntry returns the FAQ of one card, consulting the catalog only when
	// the stored entry is missing or older than Options.FaqTTL. A card
	// without FAQ yields an entry with Empty set.
	//
	// Example:
	//   entry, err := syncer.FaqEntry(ctx, "01030")
	FaqEntry(ctx context.Context, code string) (*schema.FaqEntry, error)
}

// Store is the part of the cache database the engine writes through.
// *db.DB implements it.
type Store interface {
	Begin(ctx context.Context) (*sqlx.Tx, error)
	ClearCache()

	CountBaseCardsContext(ctx context.Context) (int, error)
	CountTabooCards(ctx context.Context) (int, error)

	DeleteAllCards(ctx context.Context) error
	DeleteAllEncounterSets(ctx context.Context) error
	DeleteAllTabooSets(ctx context.Context) error
	DeleteAllRules(ctx context.Context) error
	DeleteTabooCards(ctx context.Context) error

	MarkBaseTabooCards(ctx context.Context, codes []string) (int64, error)
	InsertTabooSets(ctx context.Context, sets []*schema.TabooSet) error

	GetFaqEntry(ctx context.Context, code string) (*schema.FaqEntry, error)
	SaveFaqEntry(ctx context.Context, entry *schema.FaqEntry) error
}

// Catalog is the remote feed. *catalog.Client implements it.
type Catalog interface {
	FetchCards(ctx context.Context, lang string, cond catalog.Conditional) (*catalog.CardsResponse, error)
	FetchTaboos(ctx context.Context, lang string, cond catalog.Conditional) (*catalog.TaboosResponse, error)
	FetchFaq(ctx context.Context, code string, cond catalog.Conditional) (*catalog.FaqResponse, error)
}
