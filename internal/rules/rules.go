// Package rules loads the bundled rules reference and parses it into rule
// trees for the cache.
package rules

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

//go:embed bundles/*.json
var bundles embed.FS

// BundleName returns the bundle file for a language. Languages without a
// translated bundle use the English one.
func BundleName(lang string) string {
	switch lang {
	case "es", "ru", "de":
		return "rules_" + lang + ".json"
	default:
		return "rules.json"
	}
}

// Load decodes the embedded bundle for lang.
func Load(lang string) ([]schema.RuleJSON, error) {
	data, err := bundles.ReadFile("bundles/" + BundleName(lang))
	if err != nil {
		return nil, fmt.Errorf("failed to read rules bundle: %w", err)
	}
	return decode(BundleName(lang), data)
}

// LoadDir prefers rules_<lang>.json, then rules.json, from an override
// directory and falls back to the embedded bundle when neither exists.
func LoadDir(dir, lang string) ([]schema.RuleJSON, error) {
	if dir == "" {
		return Load(lang)
	}
	candidates := []string{"rules.json"}
	if lang != "" && lang != "en" {
		candidates = append([]string{"rules_" + lang + ".json"}, candidates...)
	}
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return decode(path, data)
	}
	return Load(lang)
}

func decode(name string, data []byte) ([]schema.RuleJSON, error) {
	var out []schema.RuleJSON
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return out, nil
}

// Parse builds rule trees. Top-level ids are "<lang>_<index>"; children
// extend their parent's id with "_<index>". Depth is unbounded.
func Parse(lang string, raws []schema.RuleJSON) []*schema.Rule {
	if lang == "" {
		lang = "en"
	}
	out := make([]*schema.Rule, 0, len(raws))
	for i, r := range raws {
		out = append(out, parse(lang, fmt.Sprintf("%s_%d", lang, i), i, r, nil))
	}
	return out
}

func parse(lang, id string, pos int, r schema.RuleJSON, parent *string) *schema.Rule {
	rule := &schema.Rule{
		ID:       id,
		Lang:     lang,
		Position: pos,
		Title:    r.Title,
		Text:     r.Text,
		ParentID: parent,
	}
	for i, child := range r.Rules {
		parentID := id
		rule.Rules = append(rule.Rules, parse(lang, fmt.Sprintf("%s_%d", id, i), i, child, &parentID))
	}
	return rule
}

// Partition splits top-level rules into leaves and rules with children.
func Partition(rules []*schema.Rule) (simple, complex []*schema.Rule) {
	for _, r := range rules {
		if r.HasChildren() {
			complex = append(complex, r)
		} else {
			simple = append(simple, r)
		}
	}
	return simple, complex
}

// Flatten returns r followed by each child and that child's own children.
// Deeper descendants are not included.
func Flatten(r *schema.Rule) []*schema.Rule {
	out := []*schema.Rule{r}
	for _, child := range r.Rules {
		out = append(out, child)
		out = append(out, child.Rules...)
	}
	return out
}
