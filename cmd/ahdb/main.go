package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/pipeline"
	cachesync "github.com/Mschirtzinger/arkhamdb-sync/internal/cache/sync"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/catalog"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/config"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/telemetry"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/ui"
)

var (
	// Version is the release version, set at build time via -ldflags
	Version = "0.1.0"
	// Build is the commit or build label
	Build = "dev"
)

var (
	cfgFile     string
	dbFlag      string
	langFlag    string
	verboseFlag bool
	noColor     bool
	jsonOutput  bool

	v   = viper.New()
	cfg *config.Config

	rootCtx    context.Context = context.Background()
	rootCancel context.CancelFunc

	// logOut receives all component loggers; a rotating file when log.file is set
	logOut    io.Writer = os.Stderr
	logCloser io.Closer

	cleanupOnce sync.Once
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/ahdb/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Cache database path")
	rootCmd.PersistentFlags().StringVarP(&langFlag, "lang", "l", "", "Catalog language or locale (default: system locale)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose sync logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	_ = v.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("language", rootCmd.PersistentFlags().Lookup("lang"))
	_ = v.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddGroup(&cobra.Group{ID: "sync", Title: "Sync & Data:"})
	rootCmd.AddGroup(&cobra.Group{ID: "views", Title: "Views & Reports:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})
	rootCmd.AddGroup(&cobra.Group{ID: "advanced", Title: "Background & Advanced:"})
}

var rootCmd = &cobra.Command{
	Use:   "ahdb",
	Short: "ahdb - ArkhamDB card cache",
	Long: `Keep a local SQLite copy of the ArkhamDB card catalog, taboo lists and
rules reference, synchronized with conditional requests so repeat syncs are cheap.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if show, _ := cmd.Flags().GetBool("version"); show {
			fmt.Printf("ahdb version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Setup(noColor)
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		config.Init(v, cfgFile)
		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded
		setupLogging()

		if err := telemetry.Init(rootCtx, "ahdb", Version, logOut); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry disabled: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
	},
}

// setupLogging points component loggers at a rotating file when one is configured.
func setupLogging() {
	if cfg.Log.File == "" {
		return
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   true,
	}
	logOut = lj
	logCloser = lj
}

// cleanup flushes telemetry and closes the log file. It runs once, from
// PersistentPostRun on success or from main after an error.
func cleanup() {
	cleanupOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
		if logCloser != nil {
			_ = logCloser.Close()
		}
		if rootCancel != nil {
			rootCancel()
		}
	})
}

func newLogger(prefix string) *log.Logger {
	return log.New(logOut, prefix, log.LstdFlags)
}

// openDB opens the cache database and makes sure the schema exists.
func openDB() (*db.DB, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", cfg.DBPath, err)
	}
	if err := database.InitSchemaContext(rootCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return database, nil
}

func newCatalog() *catalog.Client {
	opts := []catalog.Option{
		catalog.WithHost(cfg.Catalog.Host),
		catalog.WithTimeout(cfg.Catalog.Timeout),
		catalog.WithUserAgent("ahdb/" + Version),
		catalog.WithLogger(newLogger("[catalog] ")),
	}
	if cfg.Catalog.BaseURL != "" {
		opts = append(opts, catalog.WithBaseURL(cfg.Catalog.BaseURL))
	}
	return catalog.New(opts...)
}

func newSyncer(database *db.DB, client *catalog.Client) cachesync.Syncer {
	opts := cachesync.DefaultOptions()
	opts.Language = cfg.Language
	opts.Platform = cfg.Platform
	opts.MaxInsert = cfg.MaxInsert
	opts.TabooMaxInsert = cfg.TabooMaxInsert
	opts.ClearCache = cfg.ClearCache
	opts.Verbose = cfg.Verbose
	opts.RulesDir = cfg.RulesDir
	opts.FaqTTL = cfg.FaqTTL
	opts.Logger = newLogger("[sync] ")
	return cachesync.New(database, client, opts)
}

func newPipeline(database *db.DB) *pipeline.Pipeline {
	client := newCatalog()
	return pipeline.New(newSyncer(database, client), client, pipeline.Config{
		Language:  cfg.Language,
		StatePath: cfg.StatePath,
		DBPath:    cfg.DBPath,
		Logger:    newLogger("[sync] "),
	})
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		cleanup()
		os.Exit(1)
	}
}
