package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/pipeline"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/config"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/synclock"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:       "sync [cards|taboos|rules|all]",
	GroupID:   "sync",
	Short:     "Sync the cache from ArkhamDB",
	ValidArgs: []string{"all", "cards", "taboos", "rules"},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	Long: `Synchronize the local cache with the ArkhamDB catalog.

  cards    fetch the card feed and rebuild cards, encounter sets and rules
  taboos   fetch the taboo lists and rebuild taboo variants
  rules    reload the rules reference only
  all      cards, then taboos (default)

Feeds that have not changed since the last sync answer 304 and nothing is
written. Only one sync runs at a time per cache database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		arg := ""
		if len(args) > 0 {
			arg = args[0]
		}
		target, err := pipeline.ParseTarget(arg)
		if err != nil {
			return err
		}

		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		if !jsonOutput {
			fmt.Printf("%s Syncing %s (%s)...\n", ui.RenderAccent("🔄"), target, config.LocalizedName(cfg.Language))
		}
		sum, err := newPipeline(database).Run(rootCtx, target)
		if errors.Is(err, synclock.ErrLocked) {
			return fmt.Errorf("%w (lock file %s)", err, synclock.New(cfg.DBPath).Path())
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(sum)
		}
		printSummary(sum)
		return nil
	},
}

func printSummary(sum *pipeline.Summary) {
	fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), sum.Duration.Round(time.Millisecond))

	if c := sum.Cards; c != nil {
		if c.NotModified {
			fmt.Printf("   Cards: %s\n", ui.RenderMuted("not modified"))
		} else {
			fmt.Printf("   Cards: %d rows (%d back faces, %d encounter sets)\n", c.Inserted, c.BackFaces, c.EncounterSets)
		}
		if len(c.Failures) > 0 {
			fmt.Printf("   %s %d card records skipped\n", ui.RenderWarn("⚠"), len(c.Failures))
			if cfg.Verbose {
				for _, f := range c.Failures {
					fmt.Printf("      %s\n", ui.RenderMuted(f.Error()))
				}
			}
		}
	}

	if t := sum.Taboos; t != nil {
		if t.NotModified {
			fmt.Printf("   Taboos: %s\n", ui.RenderMuted("not modified"))
		} else {
			fmt.Printf("   Taboos: %d variants across %d lists\n", t.Inserted, t.Sets)
		}
		if len(t.Unresolved) > 0 {
			fmt.Printf("   %s %d taboo codes not in the card table\n", ui.RenderWarn("⚠"), len(t.Unresolved))
		}
		if len(t.Failures) > 0 {
			fmt.Printf("   %s %d taboo lists skipped\n", ui.RenderWarn("⚠"), len(t.Failures))
		}
	}

	if sum.RulesRefreshed {
		fmt.Printf("   Rules: %s\n", "reloaded")
	}
	fmt.Printf("   Cache: %s\n", cfg.DBPath)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
