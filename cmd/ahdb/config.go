package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/config"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Show or create the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file, AHDB_*
environment variables and flags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return outputJSON(cfg)
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(configPath())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file",
	Long: `Write the effective configuration to the config file. On a terminal a
short form asks for the catalog language and the cache location first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := configPath()

		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
		}

		out := *cfg
		if ui.IsTerminal(os.Stdin) && !jsonOutput {
			ok, err := runConfigForm(&out)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("%s Config not written\n", ui.RenderMuted("·"))
				return nil
			}
		}

		if err := out.Write(path); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]string{"path": path})
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// runConfigForm edits c interactively. It reports false when the user
// declines or aborts.
func runConfigForm(c *config.Config) (bool, error) {
	langOptions := make([]huh.Option[string], len(config.Languages))
	for i, l := range config.Languages {
		langOptions[i] = huh.NewOption(fmt.Sprintf("%s (%s)", config.LocalizedName(l), l), l)
	}
	lang := c.Language
	dbPath := c.DBPath
	confirm := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Catalog language").
				Description("Card names and text are synced in this language").
				Options(langOptions...).
				Value(&lang),

			huh.NewInput().
				Title("Cache database").
				Description("SQLite file holding cards, taboo lists and rules").
				Value(&dbPath).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("path is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write config?").
				Affirmative("Write").
				Negative("Cancel").
				Value(&confirm),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("form error: %w", err)
	}
	if !confirm {
		return false, nil
	}

	c.Language = lang
	c.DBPath = filepath.Clean(strings.TrimSpace(dbPath))
	return true, nil
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
