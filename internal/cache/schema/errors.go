package schema

import (
	"errors"
	"fmt"
)

// ErrInvalid is the sentinel wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid record")

// ValidationError indicates a feed record is missing or has a bad field.
type ValidationError struct {
	Record string // "card", "taboo", "taboo card", "rule"
	Key    string // code or id of the record when known
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("invalid %s %s: %s %s", e.Record, e.Key, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s %s", e.Record, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// NestedJSONError reports a taboo list whose embedded card list is not valid JSON.
type NestedJSONError struct {
	TabooID int
	Err     error
}

func (e *NestedJSONError) Error() string {
	return fmt.Sprintf("taboo set %d: embedded cards field is not valid JSON: %v", e.TabooID, e.Err)
}

func (e *NestedJSONError) Unwrap() error {
	return e.Err
}

func missing(record, key, field string) error {
	return &ValidationError{Record: record, Key: key, Field: field, Reason: "is required"}
}
