package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/daemon"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Keep the cache in sync in the background",
	Long: `Run sync passes on a schedule until interrupted.

A pass runs immediately, then every daemon.interval. A failed pass is retried
with exponential backoff capped at daemon.max_backoff. When rules_dir is set,
changes to its .json files reload the rules reference.

Example usage:
  ahdb daemon                    # Sync every 6h
  ahdb daemon --interval 30m     # Sync every 30 minutes
  ahdb daemon --dashboard        # Also serve the event stream`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("interval") {
			cfg.Daemon.Interval, _ = cmd.Flags().GetDuration("interval")
		}
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}

		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		var sink daemon.Sink
		if withDashboard {
			server, handler, err := startDashboard(database)
			if err != nil {
				return err
			}
			defer stopDashboard(server)
			sink = handler
		}
		return runDaemon(database, sink)
	},
}

// runDaemon blocks until the root context is cancelled.
func runDaemon(database *db.DB, sink daemon.Sink) error {
	d, err := daemon.New(newPipeline(database), &daemon.Config{
		Interval:   cfg.Daemon.Interval,
		MaxBackoff: cfg.Daemon.MaxBackoff,
		RulesDir:   cfg.RulesDir,
		Logger:     newLogger("[daemon] "),
		Sink:       sink,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	fmt.Printf("%s Daemon started (every %s, %s)\n", ui.RenderPass("✓"), cfg.Daemon.Interval, cfg.Language)
	if cfg.RulesDir != "" {
		fmt.Printf("   Watching: %s\n", cfg.RulesDir)
	}
	fmt.Println("\nPress Ctrl+C to stop...")

	if err := d.Start(rootCtx); err != nil {
		return err
	}
	fmt.Println("Daemon stopped")
	return nil
}

func init() {
	daemonCmd.Flags().Duration("interval", 0, "Time between passes (default: daemon.interval)")
	daemonCmd.Flags().Bool("dashboard", false, "Serve the event stream while running")
	daemonCmd.Flags().IntP("port", "p", 0, "Dashboard port (default: dashboard.port)")

	rootCmd.AddCommand(daemonCmd)
}
