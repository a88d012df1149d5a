package translate

import "fmt"

// StreamError reports a failure that ended a stream before its End marker,
// either a broken upstream connection or an error event sent by the upstream.
// Headers are already committed when it surfaces, so the HTTP layer can only
// report it in-band and close the stream.
type StreamError struct {
	Err error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("upstream stream: %v", e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As checks.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// UpstreamError is an error event received inside an otherwise healthy stream.
type UpstreamError struct {
	// Type is the upstream error type, e.g. "overloaded_error".
	Type    string
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}
