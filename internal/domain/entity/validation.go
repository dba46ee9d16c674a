package entity

import "fmt"

// ValidationError is a business-rule violation on otherwise well-formed input.
// Re-applying the same input can never succeed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FieldDetails reports the violation keyed by field, the shape HTTP error
// bodies use.
func (e *ValidationError) FieldDetails() map[string]string {
	return map[string]string{e.Field: e.Reason}
}
