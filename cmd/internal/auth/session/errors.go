package session

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork is returned when the server cannot be reached.
	ErrNetwork = errors.New("network error")

	// ErrServer is returned for non-2xx or non-JSON responses.
	ErrServer = errors.New("server error")

	// ErrSessionExpired is returned when a call is still unauthorized after one renewal-and-retry cycle.
	// The session has been cleared; the user must authenticate again.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken is returned when a renewal is requested without a stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrRenewalFailed is returned when the refresh call fails. The user must authenticate again.
	ErrRenewalFailed = errors.New("token renewal failed")

	// ErrRenewalTimeout is returned to a waiter that gave up on an in-flight renewal.
	// The in-flight renewal itself keeps running.
	ErrRenewalTimeout = errors.New("token renewal timeout")

	// ErrMissingToken is returned when an auth response lacks the access or refresh token.
	ErrMissingToken = errors.New("missing token in response")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// NetworkError reports a transport-level failure for one call.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Method, e.Path, ErrNetwork, e.Err)
}

func (e NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// ServerError reports a non-2xx or non-JSON response.
// Message is the server-provided message when there is one.
type ServerError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %v: status %d", e.Method, e.Path, ErrServer, e.Status)
	}
	return fmt.Sprintf("%s %s: %v: status %d: %s", e.Method, e.Path, ErrServer, e.Status, e.Message)
}

func (e ServerError) Unwrap() error { return ErrServer }

// RenewalError wraps the cause of a failed renewal.
type RenewalError struct {
	Err error
}

func (e RenewalError) Error() string {
	return fmt.Sprintf("%v: %v", ErrRenewalFailed, e.Err)
}

func (e RenewalError) Unwrap() []error { return []error{ErrRenewalFailed, e.Err} }

// IsUnauthorized reports whether err is a 401 ServerError.
func IsUnauthorized(err error) bool {
	var se ServerError
	return errors.As(err, &se) && se.Status == http.StatusUnauthorized
}

// IsSessionEnded reports whether err means the user must authenticate again.
func IsSessionEnded(err error) bool {
	return errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrRenewalFailed) ||
		errors.Is(err, ErrNoRefreshToken)
}
