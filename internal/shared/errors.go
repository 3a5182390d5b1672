package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrConfiguration      = fmt.Errorf("configuration error")
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed = fmt.Errorf("authentication failed")

	// Migration errors
	ErrSourceRead  = fmt.Errorf("source read failed")
	ErrConversion  = fmt.Errorf("conversion failed")
	ErrWrite       = fmt.Errorf("destination write failed")
	ErrUnsupported = fmt.Errorf("unsupported asset type")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNotFound           = fmt.Errorf("not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// APIError describes a non-2xx answer from one of the vendor APIs.
type APIError struct {
	Service    string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s %s: status %d: %s", e.Service, e.Method, e.Path, e.StatusCode, Truncate(e.Body, 300))
}

func (e *APIError) Unwrap() error { return ErrAPIRequest }

// AuthError is a failed token exchange. Body carries the upstream response for operators.
type AuthError struct {
	Platform   string
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s authentication failed: %v", e.Platform, e.Err)
	}
	return fmt.Sprintf("%s authentication failed: status %d: %s", e.Platform, e.StatusCode, Truncate(e.Body, 300))
}

func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAuthFailed, e.Err}
	}
	return []error{ErrAuthFailed}
}

// SourceReadError is returned once every endpoint for a collection has been tried.
type SourceReadError struct {
	AssetType string
	Tried     []string
	Err       error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("reading %s failed after %d endpoint(s): %v", e.AssetType, len(e.Tried), e.Err)
}

func (e *SourceReadError) Unwrap() []error { return []error{ErrSourceRead, e.Err} }

// WriteError is the terminal failure of a destination write after its retry/fallback chain.
type WriteError struct {
	Entity   string
	Name     string
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("creating %s %q failed after %d attempt(s): %v", e.Entity, e.Name, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Err} }

// StatusCode digs the upstream HTTP status out of err, or returns 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	return 0
}
