package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/ui"
)

var cardCmd = &cobra.Command{
	Use:     "card <code>",
	GroupID: "views",
	Short:   "Show a cached card",
	Long: `Show one card from the cache. With --taboo the card is shown as that taboo
list changes it; cards the list does not touch are shown unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taboo, _ := cmd.Flags().GetInt("taboo")

		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		var tabooID *int
		if taboo > 0 {
			tabooID = &taboo
		}
		card, err := database.GetCardByCode(rootCtx, args[0], tabooID)
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("card %s not found (run 'ahdb sync' first?)", args[0])
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(card)
		}
		printCard(card)
		return nil
	},
}

func printCard(c *schema.Card) {
	title := c.Name
	if c.Subname != "" {
		title += ": " + c.Subname
	}
	fmt.Printf("\n%s %s\n\n", ui.RenderAccent(c.Code), title)
	fmt.Println(ui.KV("Id", c.ID))
	fmt.Println(ui.KV("Type", firstNonEmpty(c.TypeName, c.TypeCode)))
	if c.FactionCode != "" {
		faction := firstNonEmpty(c.FactionName, c.FactionCode)
		if c.Faction2Code != "" {
			faction += " / " + c.Faction2Code
		}
		fmt.Println(ui.KV("Faction", faction))
	}
	fmt.Println(ui.KV("Pack", fmt.Sprintf("%s #%d", firstNonEmpty(c.PackName, c.PackCode), c.Position)))
	if c.Cost != nil {
		fmt.Println(ui.KV("Cost", *c.Cost))
	}
	if c.Xp != nil {
		xp := fmt.Sprint(*c.Xp)
		if c.ExtraXp != nil && *c.ExtraXp > 0 {
			xp += fmt.Sprintf(" (+%d taboo)", *c.ExtraXp)
		}
		fmt.Println(ui.KV("XP", xp))
	}
	if c.DeckLimit != nil {
		fmt.Println(ui.KV("Deck limit", *c.DeckLimit))
	}
	if c.Traits != "" {
		fmt.Println(ui.KV("Traits", c.Traits))
	}
	if c.EncounterCode != "" {
		fmt.Println(ui.KV("Encounter", fmt.Sprintf("%s (%d cards)", firstNonEmpty(c.EncounterName, c.EncounterCode), c.EncounterSize)))
	}
	if c.LinkedCardID != nil {
		fmt.Println(ui.KV("Back face", *c.LinkedCardID))
	}
	if c.IsTaboo() {
		fmt.Println(ui.KV("Taboo list", *c.TabooSetID))
	}
	if c.Text != "" {
		fmt.Printf("\n%s\n", c.Text)
	}
	if c.TabooTextChange != "" {
		fmt.Printf("\n%s %s\n", ui.RenderWarn("Taboo:"), c.TabooTextChange)
	}
	if c.LinkedCard != nil && c.LinkedCard.Text != "" {
		fmt.Printf("\n%s %s\n", ui.RenderMuted("Back:"), c.LinkedCard.Text)
	}
	fmt.Println()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var taboosCmd = &cobra.Command{
	Use:     "taboos",
	GroupID: "views",
	Short:   "List cached taboo lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		sets, err := database.ListTabooSets(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(sets)
		}
		if len(sets) == 0 {
			fmt.Printf("%s No taboo lists cached. Run 'ahdb sync taboos'.\n", ui.RenderWarn("⚠"))
			return nil
		}
		fmt.Printf("\n%s Taboo Lists\n\n", ui.RenderAccent("📋"))
		for _, s := range sets {
			name := firstNonEmpty(s.Name, s.Code)
			line := fmt.Sprintf("%3d  %-28s %s  %d changes", s.ID, name, s.DateStart, s.CardCount)
			if s.Active {
				line += "  " + ui.RenderPass("active")
			}
			fmt.Println(line)
		}
		fmt.Println()
		return nil
	},
}

var faqCmd = &cobra.Command{
	Use:     "faq <code>",
	GroupID: "views",
	Short:   "Show the FAQ for a card",
	Long: `Show the ArkhamDB FAQ text for a card. Entries are stored locally and
re-checked against the catalog once they are older than faq_ttl.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		entry, err := newSyncer(database, newCatalog()).FaqEntry(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(entry)
		}
		if entry.Empty {
			fmt.Printf("%s No FAQ entries for %s\n", ui.RenderMuted("·"), args[0])
			return nil
		}
		fmt.Printf("\n%s FAQ for %s\n\n%s\n\n", ui.RenderAccent("❓"), args[0], strings.TrimSpace(entry.Text))
		return nil
	},
}

var rulesCmd = &cobra.Command{
	Use:     "rules",
	GroupID: "views",
	Short:   "Show the cached rules reference",
	Long: `Show the rules reference in the catalog language. Use the global --lang
flag to pick another language; only languages that have been synced are stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lang := cfg.Language
		filter, _ := cmd.Flags().GetString("filter")

		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		roots, err := database.ListRules(rootCtx, lang)
		if err != nil {
			return err
		}
		if filter != "" {
			roots = filterRules(roots, strings.ToLower(filter))
		}
		if jsonOutput {
			return outputJSON(roots)
		}
		if len(roots) == 0 {
			fmt.Printf("%s No rules cached for %s\n", ui.RenderWarn("⚠"), lang)
			return nil
		}

		var labels []string
		var depth []int
		var walk func(r *schema.Rule, d int)
		walk = func(r *schema.Rule, d int) {
			labels = append(labels, r.Title)
			depth = append(depth, d)
			for _, child := range r.Rules {
				walk(child, d+1)
			}
		}
		for _, r := range roots {
			walk(r, 0)
		}
		fmt.Print(ui.Tree(labels, depth))
		return nil
	},
}

// filterRules keeps top-level rules whose title, or any descendant's title,
// contains q.
func filterRules(rules []*schema.Rule, q string) []*schema.Rule {
	var out []*schema.Rule
	for _, r := range rules {
		if ruleMatches(r, q) {
			out = append(out, r)
		}
	}
	return out
}

func ruleMatches(r *schema.Rule, q string) bool {
	if strings.Contains(strings.ToLower(r.Title), q) {
		return true
	}
	for _, child := range r.Rules {
		if ruleMatches(child, q) {
			return true
		}
	}
	return false
}

func init() {
	cardCmd.Flags().Int("taboo", 0, "Show the card as changed by this taboo list id")
	rulesCmd.Flags().String("filter", "", "Only show rules whose title contains this text")

	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(taboosCmd)
	rootCmd.AddCommand(faqCmd)
	rootCmd.AddCommand(rulesCmd)
}
