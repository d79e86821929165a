package config

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error reports an invalid configuration value.
type Error struct {
	Field   string
	Problem string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Problem)
}

func invalid(field, format string, args ...interface{}) error {
	return &Error{Field: field, Problem: fmt.Sprintf(format, args...)}
}

// IsError reports whether err, or any error it wraps, is a configuration
// Error.
func IsError(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr)
}
