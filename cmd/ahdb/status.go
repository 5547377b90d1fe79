package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/config"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/ui"
)

type statusReport struct {
	Path      string        `json:"path"`
	SizeBytes int64         `json:"size_bytes"`
	Language  string        `json:"language"`
	Stats     *db.Stats     `json:"stats"`
	State     *config.State `json:"state"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "views",
	Short:   "Show cache status",
	Long: `Display the current status of the card cache.

Shows:
  - Cache file location and size
  - Row counts per table
  - Last sync time, last error and the stored freshness tokens`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := os.Stat(cfg.DBPath)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Cache not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'ahdb sync' to create the cache\n\n")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check cache: %w", err)
		}

		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		stats, err := database.Stats(rootCtx)
		if err != nil {
			return err
		}
		st, err := config.LoadState(cfg.StatePath)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(statusReport{
				Path:      cfg.DBPath,
				SizeBytes: info.Size(),
				Language:  cfg.Language,
				Stats:     stats,
				State:     st,
			})
		}

		fmt.Printf("\n%s Cache Status\n\n", ui.RenderAccent("📊"))
		fmt.Println(ui.KV("Location", cfg.DBPath))
		fmt.Println(ui.KV("Size", formatSize(info.Size())))
		fmt.Println(ui.KV("Language", fmt.Sprintf("%s (%s)", cfg.Language, config.LocalizedName(cfg.Language))))
		fmt.Println()
		fmt.Println(ui.RenderCategory("Rows"))
		fmt.Println(ui.KV("Cards", stats.BaseCards))
		fmt.Println(ui.KV("Taboo variants", stats.TabooCards))
		fmt.Println(ui.KV("Taboo lists", stats.TabooSets))
		fmt.Println(ui.KV("Encounter sets", stats.EncounterSets))
		fmt.Println(ui.KV("Rules", stats.Rules))
		fmt.Println(ui.KV("FAQ entries", stats.FaqEntries))
		fmt.Println()
		fmt.Println(ui.RenderCategory("Sync"))
		if st.LastSync.IsZero() {
			fmt.Println(ui.KV("Last sync", ui.RenderMuted("never")))
		} else {
			fmt.Println(ui.KV("Last sync", st.LastSync.Local().Format(time.DateTime)))
		}
		if st.LastError != "" {
			fmt.Println(ui.Status(false, fmt.Sprintf("%s at %s", st.LastError, st.LastErrorAt.Local().Format(time.DateTime))))
		}
		if st.Language != "" && st.Language != cfg.Language {
			fmt.Println(ui.Status(false, fmt.Sprintf("tokens are for %q; next sync refetches everything", st.Language)))
		}
		if st.Cards != nil {
			fmt.Println(ui.KV("Cards token", fmt.Sprintf("%d cards, %s", st.Cards.CardCount, st.Cards.LastModified)))
		}
		if st.Taboos != nil {
			fmt.Println(ui.KV("Taboos token", fmt.Sprintf("%d variants, %s", st.Taboos.TabooCount, st.Taboos.LastModified)))
		}
		fmt.Println()
		return nil
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
