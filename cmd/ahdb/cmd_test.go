package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

func TestFilterRules(t *testing.T) {
	rules := []*schema.Rule{
		{ID: "en_0", Title: "Attack"},
		{ID: "en_1", Title: "Skill Tests", Rules: []*schema.Rule{
			{ID: "en_1_0", Title: "Committing Cards"},
		}},
		{ID: "en_2", Title: "Elite"},
	}

	got := filterRules(rules, "commit")
	require.Len(t, got, 1)
	assert.Equal(t, "en_1", got[0].ID, "a parent is kept when a descendant matches")

	assert.Len(t, filterRules(rules, "attack"), 1, "match is case-insensitive on lowered query")
	assert.Empty(t, filterRules(rules, "parley"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 bytes", formatSize(512))
	assert.Equal(t, "2.0 KB", formatSize(2048))
	assert.Equal(t, "3.5 MB", formatSize(3*1024*1024+512*1024))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestReflectSchema_Card(t *testing.T) {
	s := reflectSchema(schemaTargets["cards"])
	def, ok := s.Definitions["Card"]
	require.True(t, ok, "card definition present")

	code, ok := def.Properties.Get("code")
	require.True(t, ok)
	assert.Equal(t, "string", code.Type)

	opts, ok := def.Properties.Get("deck_options")
	require.True(t, ok)
	assert.Empty(t, opts.Type, "raw JSON columns accept any document")

	_, ok = def.Properties.Get("LinkedCard")
	assert.False(t, ok, "in-memory back face is not part of the record")
}

func TestSchemaTargetsMatchValidArgs(t *testing.T) {
	for _, name := range schemaCmd.ValidArgs {
		assert.Contains(t, schemaTargets, name)
	}
}
