// Package pipeline runs sync passes on behalf of the CLI and the daemon.
//
// The engine in internal/cache/sync is stateless between calls: it takes a
// freshness token and hands back a new one. A Pipeline owns the other half
// of that contract. It loads the persisted state, keeps the pack list
// fresh, feeds tokens to the engine, and writes the results back, all under
// the cross-process sync lock.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	gosync "sync"
	"time"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
	cachesync "github.com/Mschirtzinger/arkhamdb-sync/internal/cache/sync"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/config"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/synclock"
)

// PackTTL is how long a fetched pack list is reused.
const PackTTL = 24 * time.Hour

// Target selects what a run synchronizes.
type Target string

const (
	TargetAll    Target = "all"
	TargetCards  Target = "cards"
	TargetTaboos Target = "taboos"
	TargetRules  Target = "rules"
)

// ParseTarget parses a command-line target. Empty means all.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TargetAll, nil
	case TargetAll, TargetCards, TargetTaboos, TargetRules:
		return t, nil
	default:
		return "", fmt.Errorf("unknown sync target %q (want cards, taboos, rules or all)", s)
	}
}

// PackSource lists the published packs.
type PackSource interface {
	FetchPacks(ctx context.Context, lang string) ([]schema.Pack, error)
}

// Config wires a Pipeline.
type Config struct {
	Language  string
	StatePath string
	// DBPath locates the sync lock; empty disables locking
	DBPath string
	Logger *log.Logger
}

// Summary reports one run.
type Summary struct {
	Target         Target                 `json:"target"`
	Cards          *cachesync.CardResult  `json:"cards,omitempty"`
	Taboos         *cachesync.TabooResult `json:"taboos,omitempty"`
	RulesRefreshed bool                   `json:"rules_refreshed,omitempty"`
	Duration       time.Duration          `json:"duration"`
}

// Rows returns the number of card rows written.
func (s *Summary) Rows() int {
	n := 0
	if s.Cards != nil {
		n += s.Cards.Inserted
	}
	if s.Taboos != nil {
		n += s.Taboos.Inserted
	}
	return n
}

// NotModified reports whether every feed the run touched answered 304.
func (s *Summary) NotModified() bool {
	if s.Cards == nil && s.Taboos == nil {
		return false
	}
	return (s.Cards == nil || s.Cards.NotModified) && (s.Taboos == nil || s.Taboos.NotModified)
}

// Pipeline serializes sync runs and persists their tokens.
type Pipeline struct {
	syncer cachesync.Syncer
	packs  PackSource
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	mu gosync.Mutex
}

// New creates a Pipeline.
func New(syncer cachesync.Syncer, packs PackSource, cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Pipeline{
		syncer: syncer,
		packs:  packs,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Run synchronizes target, holding the sync lock for the duration.
// The outcome is recorded in the state file whether or not the run failed.
func (p *Pipeline) Run(ctx context.Context, target Target) (*Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.DBPath == "" {
		return p.run(ctx, target)
	}
	var sum *Summary
	err := synclock.With(p.cfg.DBPath, func() error {
		var err error
		sum, err = p.run(ctx, target)
		return err
	})
	return sum, err
}

// RunPass runs a card and taboo sync.
func (p *Pipeline) RunPass(ctx context.Context) (*Summary, error) {
	return p.Run(ctx, TargetAll)
}

// RefreshRules reloads the rules glossary.
func (p *Pipeline) RefreshRules(ctx context.Context) error {
	_, err := p.Run(ctx, TargetRules)
	return err
}

func (p *Pipeline) run(ctx context.Context, target Target) (*Summary, error) {
	start := p.now()
	st, err := config.LoadState(p.cfg.StatePath)
	if err != nil {
		return nil, err
	}
	st.ForLanguage(p.cfg.Language)

	sum := &Summary{Target: target}
	err = p.runTarget(ctx, st, sum)
	if err != nil {
		st.RecordFailure(err, p.now())
	} else {
		st.RecordSuccess(p.now())
	}
	if serr := st.Save(p.cfg.StatePath); serr != nil {
		if err != nil {
			p.logger.Printf("WARNING: %v", serr)
		} else {
			err = serr
		}
	}
	sum.Duration = p.now().Sub(start)
	return sum, err
}

func (p *Pipeline) runTarget(ctx context.Context, st *config.State, sum *Summary) error {
	switch sum.Target {
	case TargetRules:
		if err := p.syncer.RefreshRules(ctx); err != nil {
			return err
		}
		sum.RulesRefreshed = true
		return nil
	case TargetAll, TargetCards, TargetTaboos:
	default:
		return fmt.Errorf("unknown sync target %q", sum.Target)
	}

	if sum.Target != TargetTaboos {
		packs, err := p.packList(ctx, st)
		if err != nil {
			return err
		}
		res, err := p.syncer.SyncCards(ctx, packs, st.Cards)
		if err != nil {
			return fmt.Errorf("card sync failed: %w", err)
		}
		sum.Cards = res
		st.Cards = res.Cache
		if !res.NotModified {
			// a full card load drops every taboo variant with it
			st.Taboos = nil
			sum.RulesRefreshed = true
		}
	}

	if sum.Target != TargetCards {
		res, err := p.syncer.SyncTaboos(ctx, st.Taboos)
		if err != nil {
			return fmt.Errorf("taboo sync failed: %w", err)
		}
		sum.Taboos = res
		st.Taboos = res.Cache
	}
	return nil
}

// packList returns the cached pack list while it is fresh. A failed refresh
// falls back to a stale list when one exists.
func (p *Pipeline) packList(ctx context.Context, st *config.State) ([]schema.Pack, error) {
	now := p.now()
	if len(st.Packs) > 0 && now.Sub(st.PacksFetched) < PackTTL {
		return st.Packs, nil
	}
	packs, err := p.packs.FetchPacks(ctx, p.cfg.Language)
	if err != nil {
		if len(st.Packs) > 0 {
			p.logger.Printf("WARNING: using cached pack list: %v", err)
			return st.Packs, nil
		}
		return nil, fmt.Errorf("failed to fetch packs: %w", err)
	}
	st.Packs = packs
	st.PacksFetched = now.UTC()
	return packs, nil
}
