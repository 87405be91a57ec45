// internal/auth/errors.go
package auth

import "fmt"

// Reasons reported by AuthenticationError.
const (
	ReasonMissingCredentials   = "missing_credentials"
	ReasonMalformedCredentials = "malformed_credentials"
	ReasonBlocked              = "blocked"
)

// AuthenticationError is a fatal bootstrap failure. Retrying with the same
// input cannot succeed.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed (%s)", e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }
