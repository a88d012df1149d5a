package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned by Open when no upstream credential is
	// configured but one is required.
	ErrConfiguration = errors.New("no upstream credential configured")

	// ErrNoCredential is returned in client-supplied mode when the client sent
	// no Authorization header.
	ErrNoCredential = errors.New("no credential available")

	// ErrNotPersisted is returned by a Persister when nothing is stored.
	ErrNotPersisted = errors.New("no persisted credential")
)

// RefreshFailedError reports a refresh exchange that did not produce a token.
// StatusCode is zero when the token endpoint could not be reached.
type RefreshFailedError struct {
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *RefreshFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("credential refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("credential refresh failed: status %d: %s", e.StatusCode, e.Body)
}

// Unwrap returns the underlying transport or decoding error, if any.
func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}
