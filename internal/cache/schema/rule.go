package schema

import "strings"

// Rule is a row of the rules table. Child rules reference their parent by
// ParentID; Rules holds the parsed subtree and is not stored.
type Rule struct {
	ID       string  `db:"id" json:"id"`
	Lang     string  `db:"lang" json:"lang"`
	Position int     `db:"position" json:"position"`
	Title    string  `db:"title" json:"title"`
	Text     string  `db:"text" json:"text,omitempty"`
	ParentID *string `db:"parent_rule_id" json:"parent_rule_id,omitempty"`
	Rules    []*Rule `db:"-" json:"rules,omitempty"`
}

// HasChildren reports whether the rule is a "complex" rule.
func (r *Rule) HasChildren() bool {
	return len(r.Rules) > 0
}

// Validate checks the fields the rules table requires.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return missing("rule", r.Title, "id")
	}
	if strings.TrimSpace(r.Title) == "" {
		return missing("rule", r.ID, "title")
	}
	return nil
}
