// Package events defines the commerce events an app records and the
// construction-time checks that keep a malformed event from ever reaching
// the network.
//
// Every constructor validates its input and returns a *ValidationError on
// bad shape, so a value obtained from this package is always sendable.
package events

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a malformed event, item, or identifier field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func requireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "required"}
	}
	return nil
}
