package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/dashboard"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the real-time sync event stream",
	Long: `Start a WebSocket server that streams sync events and cache statistics.

New clients first receive a stats message with the current row counts.
After that the server broadcasts:
- sync_started: a pass or rules reload began
- sync_complete: it finished, with inserted row counts
- sync_failed: it failed, with the delay before the next retry
- stats: row counts after each completed run

By default the sync daemon runs alongside the server; --no-sync only serves
the statistics of the existing cache.

Example usage:
  ahdb dashboard                 # Start on dashboard.port (8080)
  ahdb dashboard --port 9000     # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}
		noSync, _ := cmd.Flags().GetBool("no-sync")

		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		server, handler, err := startDashboard(database)
		if err != nil {
			return err
		}
		defer stopDashboard(server)

		if !noSync {
			return runDaemon(database, handler)
		}
		fmt.Println("\nPress Ctrl+C to stop...")
		<-rootCtx.Done()
		return nil
	},
}

func startDashboard(database *db.DB) (*dashboard.Server, *dashboard.Handler, error) {
	logger := newLogger("[dashboard] ")
	server := dashboard.NewServer(&dashboard.Config{
		Port:   cfg.Dashboard.Port,
		Logger: logger,
	})
	handler := dashboard.NewHandler(server, database, logger)

	if err := server.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start dashboard: %w", err)
	}

	addr := server.Addr()
	fmt.Printf("%s Dashboard server started on http://%s\n", ui.RenderPass("✓"), addr)
	fmt.Printf("   WebSocket endpoint: ws://%s/ws\n", addr)
	fmt.Printf("   Health check: http://%s/health\n", addr)
	return server, handler, nil
}

func stopDashboard(server *dashboard.Server) {
	fmt.Println("\nShutting down dashboard server...")
	if err := server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("Error during shutdown:"), err)
		return
	}
	fmt.Println("Dashboard server stopped")
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: dashboard.port)")
	dashboardCmd.Flags().Bool("no-sync", false, "Serve cache statistics without running the daemon")

	rootCmd.AddCommand(dashboardCmd)
}
