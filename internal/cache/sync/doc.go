/*
Package sync reconciles the local card cache with the ArkhamDB catalog.

# Overview

A card sync replaces the whole card table in one pass:

	freshness check -> conditional fetch -> full replace -> normalize -> phased insert -> token

The freshness check compares the caller's CardCache token with the live row
count. Only a matching, non-empty token may send If-Modified-Since; anything
else forces a full fetch. A 304 returns the token unchanged without touching
the store.

Inserts run in three phases, each in its own transaction: back faces, fronts
carrying a link, then everything else. Inside a phase the rows are split in
chunks that are inserted concurrently and joined before commit. A failed phase
rolls back alone; earlier phases stay committed and the next run notices the
count mismatch.

Taboo sync follows the same shape against the taboo feed, building one
variant row per card and taboo list revision.

# Usage

	store, err := db.Open(path)
	if err != nil {
	    return err
	}
	if err := store.InitSchema(); err != nil {
	    return err
	}
	s := sync.New(store, catalog.New(), sync.DefaultOptions())
	res, err := s.SyncCards(ctx, packs, token)

# Concurrency

The engine does not coordinate concurrent invocations. Callers must not run
two syncs against the same store at once; the CLI and daemon hold a synclock.
*/
package sync
