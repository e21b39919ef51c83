package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies authentication failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindMissingCredentials is raised locally; no request is made.
	KindMissingCredentials
	KindInvalidCredentials
	// KindSessionExpired is raised for every 401 outside the login call.
	KindSessionExpired
	KindNetworkFailure
	KindServerRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingCredentials:
		return "missing_credentials"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindSessionExpired:
		return "session_expired"
	case KindNetworkFailure:
		return "network_failure"
	case KindServerRejected:
		return "server_rejected"
	default:
		return "unknown"
	}
}

// Error is an authentication or transport failure. Status and Message are
// set when the server produced a response.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

var (
	ErrMissingCredentials = &Error{Kind: KindMissingCredentials}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrSessionExpired     = &Error{Kind: KindSessionExpired}
	ErrNetworkFailure     = &Error{Kind: KindNetworkFailure}
	ErrServerRejected     = &Error{Kind: KindServerRejected}
)

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindMissingCredentials:
		return "email and password are required"
	case KindInvalidCredentials:
		return "invalid email or password"
	case KindSessionExpired:
		return "session expired"
	case KindNetworkFailure:
		if e.Err != nil {
			return fmt.Sprintf("network failure: %v", e.Err)
		}
		return "network failure"
	case KindServerRejected:
		return fmt.Sprintf("server rejected request (status %d)", e.Status)
	default:
		return "authentication error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrSessionExpired)
// works regardless of status or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Rejected builds a ServerRejected error with the server-supplied message.
func Rejected(status int, message string) *Error {
	return &Error{Kind: KindServerRejected, Status: status, Message: message}
}
