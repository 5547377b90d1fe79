package sync

import (
	"log"
	"strings"
	"time"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/normalize"
)

const (
	// DefaultMaxInsert is the card chunk size outside iOS.
	DefaultMaxInsert = 8
	// DefaultTabooMaxInsert is the chunk size of taboo variant inserts.
	DefaultTabooMaxInsert = 4
	// DefaultFaqTTL is how long a stored FAQ entry is served without asking the catalog.
	DefaultFaqTTL = 24 * time.Hour

	// PlatformIOS selects the fixed iOS chunk size.
	PlatformIOS  = "ios"
	iosChunkSize = 50
)

// Options configures a Syncer.
type Options struct {
	// Language selects the localized feeds and rules bundle ("" or "en" for English)
	Language string
	// Platform is the host platform; "ios" pins card chunks to 50 rows
	Platform string
	// MaxInsert is the card chunk size (0 = DefaultMaxInsert)
	MaxInsert int
	// TabooMaxInsert is the taboo variant chunk size (0 = DefaultTabooMaxInsert)
	TabooMaxInsert int
	// ClearCache drops the store's memoized queries after a replace
	ClearCache bool
	// Verbose logs every step, not just summaries and warnings
	Verbose bool
	// RulesDir overrides the embedded rules bundles when set
	RulesDir string
	// FaqTTL is how long a stored FAQ entry is trusted (<= 0 always asks the catalog)
	FaqTTL time.Duration
	// Logger receives progress and warnings (nil = stderr with "[sync] " prefix)
	Logger *log.Logger
	// OnFailure is called for each card record dropped during normalization
	OnFailure func(normalize.Failure)
}

// DefaultOptions returns the options used when New receives nil.
func DefaultOptions() *Options {
	return &Options{
		Language:       "en",
		MaxInsert:      DefaultMaxInsert,
		TabooMaxInsert: DefaultTabooMaxInsert,
		ClearCache:     true,
		FaqTTL:         DefaultFaqTTL,
	}
}

func (o *Options) lang() string {
	if o.Language == "" {
		return "en"
	}
	return o.Language
}

// chunkSize is the number of card rows per insert statement.
func (o *Options) chunkSize() int {
	if strings.EqualFold(o.Platform, PlatformIOS) {
		return iosChunkSize
	}
	if o.MaxInsert > 0 {
		return o.MaxInsert
	}
	return DefaultMaxInsert
}

func (o *Options) tabooChunkSize() int {
	if o.TabooMaxInsert > 0 {
		return o.TabooMaxInsert
	}
	return DefaultTabooMaxInsert
}

// CardResult reports a card sync.
type CardResult struct {
	// Cache is the token to pass to the next SyncCards call
	Cache *schema.CardCache
	// NotModified is set when the catalog answered 304 and nothing was written
	NotModified bool
	// Inserted counts card rows written, back faces and the custom investigator included
	Inserted int
	// BackFaces counts back-face rows
	BackFaces int
	// EncounterSets counts encounter set rows
	EncounterSets int
	// Failures lists feed records dropped during normalization
	Failures []normalize.Failure
	Duration time.Duration
}

// TabooResult reports a taboo sync.
type TabooResult struct {
	// Cache is the token to pass to the next SyncTaboos call
	Cache       *schema.TabooCache
	NotModified bool
	// Sets counts taboo list revisions stored
	Sets int
	// Inserted counts taboo variant rows written
	Inserted int
	// Unresolved lists taboo codes with no base card
	Unresolved []string
	// Failures lists revisions or overlays that were skipped
	Failures []error
	Duration time.Duration
}
