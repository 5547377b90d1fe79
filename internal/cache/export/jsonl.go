// Package export writes the card table to JSON Lines and reads it back.
//
// One card per line, using the card's JSON field names. Back faces are
// ordinary lines; fronts reference them through linked_card_id.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// importChunk bounds the rows per insert statement on import.
const importChunk = 100

// Options contains configuration for an export.
type Options struct {
	Path   string // Output JSONL file path
	DryRun bool   // Count without writing
	Backup bool   // Keep a timestamped copy of an existing output file
}

// Result contains statistics about an export.
type Result struct {
	CardsWritten  int
	BytesWritten  int64
	BackupCreated string
}

// WriteJSONL writes one JSON object per card.
func WriteJSONL(w io.Writer, cards []*schema.Card) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, c := range cards {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to encode card %s: %w", c.ID, err)
		}
	}
	return nil
}

// ReadJSONL parses a JSONL stream. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]*schema.Card, error) {
	var cards []*schema.Card
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var card schema.Card
		if err := json.Unmarshal(line, &card); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		if err := card.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		cards = append(cards, &card)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL: %w", err)
	}
	return cards, nil
}

// ExportFile writes cards to opts.Path atomically via a temp file.
func ExportFile(cards []*schema.Card, opts Options) (*Result, error) {
	result := &Result{CardsWritten: len(cards)}
	if opts.DryRun {
		return result, nil
	}

	if opts.Backup {
		backupPath, err := backup(opts.Path)
		if err != nil {
			return nil, err
		}
		result.BackupCreated = backupPath
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	tmpPath := opts.Path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	bw := bufio.NewWriter(f)
	counter := &countingWriter{w: bw}
	if err := WriteJSONL(counter, cards); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	if err := os.Rename(tmpPath, opts.Path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	result.BytesWritten = counter.n
	return result, nil
}

// backup copies an existing file aside. A missing file needs no backup.
func backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read export for backup: %w", err)
	}
	backupPath := path + ".backup." + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return backupPath, nil
}

// ImportFile reads a JSONL export and inserts it with e, which is usually
// a transaction over a card table emptied by the caller.
func ImportFile(ctx context.Context, e sqlx.ExtContext, path string) (int, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()

	cards, err := ReadJSONL(f)
	if err != nil {
		return 0, err
	}
	for chunk := range slices.Chunk(OrderForInsert(cards), importChunk) {
		if err := db.InsertCards(ctx, e, chunk); err != nil {
			return 0, err
		}
	}
	return len(cards), nil
}

// OrderForInsert moves every card referenced through linked_card_id ahead
// of the cards referencing it. Relative order is otherwise kept.
func OrderForInsert(cards []*schema.Card) []*schema.Card {
	referenced := make(map[string]bool)
	for _, c := range cards {
		if c.LinkedCardID != nil {
			referenced[*c.LinkedCardID] = true
		}
	}
	out := make([]*schema.Card, 0, len(cards))
	for _, c := range cards {
		if referenced[c.ID] {
			out = append(out, c)
		}
	}
	for _, c := range cards {
		if !referenced[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
