// Package apperr defines the failure kinds shared by the accounting and CRM integrations.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialNotFound is returned when no access credential is stored for a realm.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrNotFound marks a search that legitimately yielded nothing.
	ErrNotFound = errors.New("not found")
)

// RefreshFailed is returned when the authorization server rejected a refresh or could not be reached.
type RefreshFailed struct {
	RealmID string
	Err     error
}

func (e *RefreshFailed) Error() string {
	return fmt.Sprintf("refresh failed for realm %s: %v", e.RealmID, e.Err)
}

func (e *RefreshFailed) Unwrap() error { return e.Err }

// UpstreamError carries a failed response from the accounting or CRM API.
// Status is 0 when the request never produced a response.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status code: %d, body: %s", e.Op, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ValidationError reports malformed caller input detected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Kind names the category of err for the layer that maps failures to transport status codes.
func Kind(err error) string {
	var (
		refresh    *RefreshFailed
		upstream   *UpstreamError
		validation *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredentialNotFound), errors.As(err, &refresh):
		return "unauthorized"
	case errors.As(err, &validation):
		return "invalid"
	case errors.As(err, &upstream):
		return "upstream"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
