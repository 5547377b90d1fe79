package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/catalog"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/normalize"
)

// syncer implements the Syncer interface.
type syncer struct {
	store  Store
	client Catalog
	opts   Options
	logger *log.Logger
	inst   *instruments
	now    func() time.Time
}

// New creates a new Syncer instance.
//
// The store must have its schema created. A nil opts uses DefaultOptions.
//
// Example:
//
//	database, err := db.Open(path)
//	if err != nil {
//	    return err
//	}
//	if err := database.InitSchema(); err != nil {
//	    return err
//	}
//	syncer := sync.New(database, catalog.New(), nil)
func New(store Store, client Catalog, opts *Options) Syncer {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		store:  store,
		client: client,
		opts:   *opts,
		logger: logger,
		inst:   newInstruments(),
		now:    time.Now,
	}
}

func (s *syncer) debugf(format string, args ...any) {
	if s.opts.Verbose {
		s.logger.Printf(format, args...)
	}
}

// SyncCards implements Syncer.SyncCards.
func (s *syncer) SyncCards(ctx context.Context, packs []schema.Pack, cache *schema.CardCache) (res *CardResult, err error) {
	ctx, span, start := s.inst.op(ctx, "cards", attribute.String("ahdb.lang", s.opts.lang()))
	defer func() {
		rows := 0
		if res != nil {
			rows = res.Inserted
		}
		s.inst.done(ctx, span, start, "cards", rows, err)
	}()

	// Freshness check
	live, err := s.store.CountBaseCardsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}
	var cond catalog.Conditional
	if cache.Conditional(live) {
		cond.IfModifiedSince = cache.LastModified
		s.debugf("Cache token matches %d cards, sending If-Modified-Since %s", live, cache.LastModified)
	} else if cache != nil {
		s.debugf("Cache token (%d cards) does not match %d live cards, full fetch", cache.CardCount, live)
	}

	resp, err := s.client.FetchCards(ctx, s.opts.lang(), cond)
	if errors.Is(err, catalog.ErrNotModified) {
		s.logger.Printf("Cards not modified since %s", cond.IfModifiedSince)
		return &CardResult{Cache: cache, NotModified: true, Duration: time.Since(start)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cards: %w", err)
	}

	// Full replace
	if err := s.clearTables(ctx); err != nil {
		return nil, err
	}
	if err := s.SyncRules(ctx); err != nil {
		return nil, err
	}

	batch := normalize.DecodeBatch(resp.Cards, normalize.NewIndex(packs), s.opts.lang())
	for _, f := range batch.Failures {
		s.logger.Printf("WARNING: skipping card %v", f)
		if s.opts.OnFailure != nil {
			s.opts.OnFailure(f)
		}
	}
	plan := batch.Derive()
	s.debugf("Normalized %d records: %d back faces, %d linked fronts, %d normal",
		len(resp.Cards), len(plan.BackFaces), len(plan.LinkedFronts), len(plan.Normal))

	size := s.opts.chunkSize()
	phases := []struct {
		name  string
		cards []*schema.Card
	}{
		{"back faces", plan.BackFaces},
		{"linked fronts", plan.LinkedFronts},
		{"cards", plan.Normal},
	}
	for _, p := range phases {
		if err := s.insertCards(ctx, p.name, p.cards, size); err != nil {
			return nil, err
		}
	}

	sets := plan.EncounterSets()
	if err := s.inTx(ctx, "encounter sets", func(tx *sqlx.Tx) error {
		return db.InsertEncounterSets(ctx, tx, sets)
	}); err != nil {
		return nil, err
	}

	count, err := s.store.CountBaseCardsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}
	res = &CardResult{
		Cache:         &schema.CardCache{CardCount: count, LastModified: resp.LastModified},
		Inserted:      plan.Len(),
		BackFaces:     len(plan.BackFaces),
		EncounterSets: len(sets),
		Failures:      batch.Failures,
		Duration:      time.Since(start),
	}
	s.logger.Printf("Card sync complete: %d cards (%d back faces), %d encounter sets, %d skipped in %v",
		res.Inserted, res.BackFaces, res.EncounterSets, len(res.Failures), res.Duration.Round(time.Millisecond))
	return res, nil
}

// clearTables deletes every row SyncCards replaces.
func (s *syncer) clearTables(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"cards", s.store.DeleteAllCards},
		{"encounter sets", s.store.DeleteAllEncounterSets},
		{"taboo sets", s.store.DeleteAllTabooSets},
		{"rules", s.store.DeleteAllRules},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("failed to clear %s: %w", step.name, err)
		}
	}
	if s.opts.ClearCache {
		s.store.ClearCache()
	}
	return nil
}

// insertCards runs one insert phase: a transaction whose chunks are inserted
// concurrently and joined before commit.
func (s *syncer) insertCards(ctx context.Context, phase string, cards []*schema.Card, size int) error {
	if len(cards) == 0 {
		return nil
	}
	err := s.inTx(ctx, phase, func(tx *sqlx.Tx) error {
		g, gctx := errgroup.WithContext(ctx)
		for chunk := range slices.Chunk(cards, size) {
			g.Go(func() error {
				return db.InsertCards(gctx, tx, chunk)
			})
		}
		return g.Wait()
	})
	if err != nil {
		return err
	}
	s.debugf("Inserted %d %s in chunks of %d", len(cards), phase, size)
	return nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *syncer) inTx(ctx context.Context, what string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", what, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert %s: %w", what, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", what, err)
	}
	return nil
}
