package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/catalog"
)

// FaqEntry implements Syncer.FaqEntry.
func (s *syncer) FaqEntry(ctx context.Context, code string) (entry *schema.FaqEntry, err error) {
	ctx, span, start := s.inst.op(ctx, "faq", attribute.String("ahdb.card.code", code))
	defer func() { s.inst.done(ctx, span, start, "faq", 0, err) }()

	stored, err := s.store.GetFaqEntry(ctx, code)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	now := s.now()
	if stored != nil && stored.FreshAt(now, s.opts.FaqTTL) {
		s.debugf("FAQ %s served from cache", code)
		return stored, nil
	}

	var cond catalog.Conditional
	if stored != nil {
		cond.IfModifiedSince = stored.LastModified
	}
	resp, err := s.client.FetchFaq(ctx, code, cond)
	switch {
	case errors.Is(err, catalog.ErrNotModified):
		if stored == nil {
			entry = schema.EmptyFaqEntry(code, "", now)
		} else {
			entry = stored
			entry.FetchedAt = now.UTC().Format(time.RFC3339)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to fetch faq %s: %w", code, err)
	case len(resp.Entries) == 0 || resp.Entries[0].Text == "":
		entry = schema.EmptyFaqEntry(code, resp.LastModified, now)
	default:
		entry = schema.NewFaqEntry(code, resp.Entries[0], resp.LastModified, now)
	}

	if err := s.store.SaveFaqEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
