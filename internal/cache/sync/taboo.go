package sync

import (
	"context"
	"errors"
	"fmt"
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

// tabooRevision is a taboo list whose nested card list parsed.
type tabooRevision struct {
	raw   *schema.TabooJSON
	cards []schema.TabooCardJSON
}

// SyncTaboos implements Syncer.SyncTaboos.
func (s *syncer) SyncTaboos(ctx context.Context, cache *schema.TabooCache) (res *TabooResult, err error) {
	ctx, span, start := s.inst.op(ctx, "taboos", attribute.String("ahdb.lang", s.opts.lang()))
	defer func() {
		rows := 0
		if res != nil {
			rows = res.Inserted
		}
		s.inst.done(ctx, span, start, "taboos", rows, err)
	}()

	live, err := s.store.CountTabooCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count taboo cards: %w", err)
	}
	var cond catalog.Conditional
	if cache.Conditional(live) {
		cond.IfModifiedSince = cache.LastModified
	}

	resp, err := s.client.FetchTaboos(ctx, s.opts.lang(), cond)
	if errors.Is(err, catalog.ErrNotModified) {
		s.logger.Printf("Taboos not modified since %s", cond.IfModifiedSince)
		return &TabooResult{Cache: cache, NotModified: true, Duration: time.Since(start)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch taboos: %w", err)
	}

	res = &TabooResult{}
	revisions, codes := s.parseRevisions(resp.Taboos, res)

	if err := s.store.DeleteTabooCards(ctx); err != nil {
		return nil, err
	}
	marked, err := s.store.MarkBaseTabooCards(ctx, codes)
	if err != nil {
		return nil, err
	}
	s.debugf("Marked %d base cards of %d taboo codes", marked, len(codes))

	bases, err := s.resolveBaseCards(ctx, codes)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		if bases[code] == nil {
			s.logger.Printf("WARNING: Could not find old card %s", code)
			res.Unresolved = append(res.Unresolved, code)
		}
	}

	if err := s.store.DeleteAllTabooSets(ctx); err != nil {
		return nil, err
	}

	var variants []*schema.Card
	sets := make([]*schema.TabooSet, 0, len(revisions))
	for _, rev := range revisions {
		built, errs := buildVariants(rev, codes, bases)
		variants = append(variants, built...)
		res.Failures = append(res.Failures, errs...)
		for _, err := range errs {
			s.logger.Printf("WARNING: %v", err)
		}
		sets = append(sets, schema.NewTabooSet(rev.raw, len(rev.cards)))
	}

	size := s.opts.tabooChunkSize()
	err = s.inTx(ctx, "taboo cards", func(tx *sqlx.Tx) error {
		g, gctx := errgroup.WithContext(ctx)
		for chunk := range slices.Chunk(variants, size) {
			g.Go(func() error {
				return db.InsertCards(gctx, tx, chunk)
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertTabooSets(ctx, sets); err != nil {
		return nil, err
	}
	if s.opts.ClearCache {
		s.store.ClearCache()
	}

	count, err := s.store.CountTabooCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count taboo cards: %w", err)
	}
	res.Cache = &schema.TabooCache{TabooCount: count, LastModified: resp.LastModified}
	res.Sets = len(sets)
	res.Inserted = len(variants)
	res.Duration = time.Since(start)
	s.logger.Printf("Taboo sync complete: %d sets, %d cards, %d unresolved, %d skipped in %v",
		res.Sets, res.Inserted, len(res.Unresolved), len(res.Failures), res.Duration.Round(time.Millisecond))
	return res, nil
}

// parseRevisions decodes each revision's card list and collects every code
// named by any revision, in first-seen order. Revisions that fail validation
// or parsing are reported and left out.
func (s *syncer) parseRevisions(taboos []schema.TabooJSON, res *TabooResult) ([]tabooRevision, []string) {
	var revisions []tabooRevision
	var codes []string
	seen := make(map[string]bool)
	for i := range taboos {
		t := &taboos[i]
		if err := t.Validate(); err != nil {
			s.logger.Printf("WARNING: skipping taboo list: %v", err)
			res.Failures = append(res.Failures, err)
			continue
		}
		cards, err := t.ParseCards()
		if err != nil {
			s.logger.Printf("WARNING: skipping taboo list %d: %v", t.ID, err)
			res.Failures = append(res.Failures, err)
			continue
		}
		for _, c := range cards {
			if c.Code != "" && !seen[c.Code] {
				seen[c.Code] = true
				codes = append(codes, c.Code)
			}
		}
		revisions = append(revisions, tabooRevision{raw: t, cards: cards})
	}
	return revisions, codes
}

// resolveBaseCards looks up the base row of every code concurrently inside
// one read transaction. Codes without a base row map to nil.
func (s *syncer) resolveBaseCards(ctx context.Context, codes []string) (map[string]*schema.Card, error) {
	found := make([]*schema.Card, len(codes))
	err := s.inTx(ctx, "taboo base lookups", func(tx *sqlx.Tx) error {
		g, gctx := errgroup.WithContext(ctx)
		for i, code := range codes {
			g.Go(func() error {
				card, err := db.BaseTabooCard(gctx, tx, code)
				if errors.Is(err, db.ErrNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				found[i] = card
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	bases := make(map[string]*schema.Card, len(codes))
	for i, code := range codes {
		bases[code] = found[i]
	}
	return bases, nil
}

// buildVariants returns the variant rows of one revision: a placeholder for
// every resolved taboo code, with the revision's own overlays applied.
func buildVariants(rev tabooRevision, codes []string, bases map[string]*schema.Card) ([]*schema.Card, []error) {
	id := rev.raw.ID
	byCode := make(map[string]*schema.Card, len(codes))
	for _, code := range codes {
		if base := bases[code]; base != nil {
			byCode[code] = normalize.PlaceholderTabooCard(id, base)
		}
	}

	var errs []error
	for _, overlay := range rev.cards {
		placeholder, ok := byCode[overlay.Code]
		if !ok {
			if overlay.Code == "" {
				errs = append(errs, fmt.Errorf("taboo %d: overlay without code", id))
			}
			continue
		}
		card, err := normalize.ApplyTabooOverlay(id, overlay, placeholder)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		byCode[overlay.Code] = card
	}

	out := make([]*schema.Card, 0, len(byCode))
	for _, code := range codes {
		if c, ok := byCode[code]; ok {
			out = append(out, c)
		}
	}
	return out, errs
}
