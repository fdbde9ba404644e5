// Package utils provides small shared helpers used across every role
// server: environment-variable lookup with typed defaults, and error
// wrapping for context propagation.
package utils

import "fmt"

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
