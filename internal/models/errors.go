package models

import (
	"errors"
	"fmt"
)

// ValidationError is a local, synchronous input failure. It names the rule
// that was violated so callers and tests can distinguish failure modes.
// A ValidationError never reaches the remote store and never mutates state.
type ValidationError struct {
	// Rule is a short stable identifier for the violated rule,
	// e.g. "percentage-sum" or "unknown-member".
	Rule string

	// Detail is a human-readable explanation.
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Rule, e.Detail)
}

// Errf builds a ValidationError for the given rule.
func Errf(rule, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
