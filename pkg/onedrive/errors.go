package onedrive

import (
	"errors"
	"fmt"
)

// Precondition failures are returned synchronously by operation methods,
// before anything touches the network. Everything that happens after launch
// is reported through the events channel instead.
var (
	// ErrBusy is returned when an operation is started while another is in
	// flight. The client never queues; callers retry after the running
	// operation finishes.
	ErrBusy = errors.New("onedrive: an operation is already in flight")

	// ErrNotSignedIn is returned by authorized operations before sign-in.
	ErrNotSignedIn = errors.New("onedrive: not signed in")
)

// AuthorizationError reports that the remote end denied authorization, for
// example when the user rejects the consent prompt and the redirect carries
// an error_description instead of a code.
type AuthorizationError struct {
	Description string
}

func (e *AuthorizationError) Error() string {
	return "onedrive: authorization denied: " + e.Description
}

// TransportError is a failed HTTP exchange: a non-2xx status, carrying the
// service's own error code and message when the body supplied them.
type TransportError struct {
	Status  int
	Code    string
	Message string
}

func (e *TransportError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("onedrive: http %d", e.Status)
	}
	return fmt.Sprintf("onedrive: http %d: %s: %s", e.Status, e.Code, e.Message)
}

// ProtocolError is a syntactically valid response missing a field the
// operation needs, or one that is not JSON at all.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "onedrive: protocol error: " + e.Message
}
