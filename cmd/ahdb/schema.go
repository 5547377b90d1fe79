package main

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/jmoiron/sqlx/types"
	"github.com/spf13/cobra"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// schemaTargets maps each schema name to the record it describes.
var schemaTargets = map[string]any{
	"cards":  &schema.Card{},
	"taboos": &schema.TabooSet{},
	"faq":    &schema.FaqEntry{},
	"rules":  &schema.Rule{},
}

var schemaCmd = &cobra.Command{
	Use:       "schema [cards|taboos|faq|rules]",
	GroupID:   "advanced",
	Short:     "Print the JSON Schema of a cached record",
	ValidArgs: []string{"cards", "taboos", "faq", "rules"},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	Long: `Print the JSON Schema of the records written by 'ahdb export' and the
--json output of the view commands. Defaults to cards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "cards"
		if len(args) > 0 {
			name = args[0]
		}
		target, ok := schemaTargets[name]
		if !ok {
			return fmt.Errorf("unknown schema %q", name)
		}
		return outputJSON(reflectSchema(target))
	},
}

func reflectSchema(v any) *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	// Raw JSON columns hold arbitrary documents.
	jsonText := reflect.TypeOf(types.JSONText{})
	r.Mapper = func(t reflect.Type) *jsonschema.Schema {
		if t == jsonText {
			return &jsonschema.Schema{}
		}
		return nil
	}
	return r.Reflect(v)
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
