package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/export"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/config"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/synclock"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Export the card table to JSONL",
	Long: `Write the card table to a JSON Lines file, one card per line.

By default every row is written: base cards, back faces and the variants of
every taboo list. --taboo N keeps only the variants of list N; --base-only
drops all variants. The file is written atomically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		taboo, _ := cmd.Flags().GetInt("taboo")
		baseOnly, _ := cmd.Flags().GetBool("base-only")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")

		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		cards, err := exportRows(database, taboo, baseOnly)
		if err != nil {
			return err
		}
		result, err := export.ExportFile(cards, export.Options{Path: out, DryRun: dryRun, Backup: backup})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}
		if dryRun {
			fmt.Printf("%s Would write %d cards to %s\n", ui.RenderMuted("·"), result.CardsWritten, out)
			return nil
		}
		fmt.Printf("%s Exported %d cards (%s) to %s\n", ui.RenderPass("✓"), result.CardsWritten, formatSize(result.BytesWritten), out)
		if result.BackupCreated != "" {
			fmt.Printf("   Backup: %s\n", result.BackupCreated)
		}
		return nil
	},
}

// exportRows lists base rows followed by the selected taboo variants.
func exportRows(database *db.DB, taboo int, baseOnly bool) ([]*schema.Card, error) {
	cards, err := database.ListCards(rootCtx, db.ListCardsFilter{IncludeHidden: true})
	if err != nil {
		return nil, err
	}
	if baseOnly {
		return cards, nil
	}

	var ids []int
	if taboo > 0 {
		ids = []int{taboo}
	} else {
		sets, err := database.ListTabooSets(rootCtx)
		if err != nil {
			return nil, err
		}
		for _, s := range sets {
			ids = append(ids, s.ID)
		}
	}
	for _, id := range ids {
		variants, err := database.ListCards(rootCtx, db.ListCardsFilter{TabooSetID: &id, IncludeHidden: true})
		if err != nil {
			return nil, err
		}
		cards = append(cards, variants...)
	}
	return cards, nil
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "sync",
	Short:   "Replace the card table from a JSONL export",
	Long: `Replace every card row with the contents of a JSONL file written by
'ahdb export'. The stored freshness tokens are dropped, so the next sync
refetches the feeds in full.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		var n int
		err = synclock.With(cfg.DBPath, func() error {
			if err := database.DeleteAllCards(rootCtx); err != nil {
				return err
			}
			tx, err := database.Begin(rootCtx)
			if err != nil {
				return err
			}
			n, err = export.ImportFile(rootCtx, tx, args[0])
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit import: %w", err)
			}
			database.ClearCache()

			st, err := config.LoadState(cfg.StatePath)
			if err != nil {
				return err
			}
			st.Cards = nil
			st.Taboos = nil
			return st.Save(cfg.StatePath)
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Imported %d cards from %s\n", ui.RenderPass("✓"), n, args[0])
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", "Output JSONL file (required)")
	exportCmd.Flags().Int("taboo", 0, "Only include the variants of this taboo list")
	exportCmd.Flags().Bool("base-only", false, "Leave out all taboo variants")
	exportCmd.Flags().Bool("dry-run", false, "Count rows without writing")
	exportCmd.Flags().Bool("backup", false, "Keep a timestamped copy of an existing output file")
	_ = exportCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
