package sync

import (
	"context"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/rules"
)

// SyncRules implements Syncer.SyncRules.
//
// Rules without children are inserted in chunks. Each rule with children is
// inserted on its own, followed by its children and grandchildren.
func (s *syncer) SyncRules(ctx context.Context) (err error) {
	lang := s.opts.lang()
	ctx, span, start := s.inst.op(ctx, "rules", attribute.String("ahdb.lang", lang))
	inserted := 0
	defer func() { s.inst.done(ctx, span, start, "rules", inserted, err) }()

	raws, err := rules.LoadDir(s.opts.RulesDir, lang)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	parsed := rules.Parse(lang, raws)
	simple, complex := rules.Partition(parsed)

	size := s.opts.chunkSize()
	err = s.inTx(ctx, "rules", func(tx *sqlx.Tx) error {
		g, gctx := errgroup.WithContext(ctx)
		for chunk := range slices.Chunk(simple, size) {
			g.Go(func() error {
				return db.InsertRules(gctx, tx, chunk)
			})
		}
		for _, r := range complex {
			g.Go(func() error {
				return db.InsertRules(gctx, tx, rules.Flatten(r))
			})
		}
		return g.Wait()
	})
	if err != nil {
		return err
	}

	inserted = len(simple)
	for _, r := range complex {
		inserted += len(rules.Flatten(r))
	}
	s.debugf("Inserted %d rules (%d simple, %d with children)", inserted, len(simple), len(complex))
	return nil
}

// RefreshRules implements Syncer.RefreshRules.
func (s *syncer) RefreshRules(ctx context.Context) error {
	if err := s.store.DeleteAllRules(ctx); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}
	if err := s.SyncRules(ctx); err != nil {
		return err
	}
	s.logger.Printf("Rules refreshed (%s)", s.opts.lang())
	return nil
}
