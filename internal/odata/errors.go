package odata

import "fmt"

// ArgumentError reports a caller-supplied argument that failed
// validation before any request was made.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return e.Msg }

// Argumentf builds an ArgumentError.
func Argumentf(format string, args ...interface{}) *ArgumentError {
	return &ArgumentError{Msg: fmt.Sprintf(format, args...)}
}

// MetadataError means the service description could not be obtained.
// The bridge cannot start without one, so this is fatal.
type MetadataError struct {
	ServiceURL string
	Err        error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata unavailable for %s: %v", e.ServiceURL, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// AuthError is a 401/403 rejection that is not a CSRF failure.
type AuthError struct {
	Status int
	Msg    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (status %d): %s", e.Status, e.Msg)
}

// CSRFError means token acquisition failed or the retried request was
// rejected again.
type CSRFError struct {
	Msg string
	Err error
}

func (e *CSRFError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("CSRF token handling failed: %s: %v", e.Msg, e.Err)
	}
	return "CSRF token handling failed: " + e.Msg
}

func (e *CSRFError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx response from the service, with whatever
// the error body yielded.
type UpstreamError struct {
	Status  int
	Code    string
	Message string
	Details []string
	// Context is set in verbose-errors mode: method, URL, redacted headers.
	Context map[string]string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("OData error %d [%s]: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("OData error %d: %s", e.Status, e.Message)
}

// TransportError is a network-level failure. No response was received,
// so the synthesized status is 0. These are never retried.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed (status 0): %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PolicyError reports an operation blocked by the local gating flags
// rather than by the service.
type PolicyError struct {
	Msg string
}

func (e *PolicyError) Error() string { return e.Msg }
