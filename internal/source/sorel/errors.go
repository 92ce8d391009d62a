package sorel

import "errors"

// Sentinel errors for Sorel Connect operations.
// Every error returned by this package is also tagged with a fault.Kind.
var (
	// ErrLoginRejected is returned when the login endpoint does not answer 200.
	ErrLoginRejected = errors.New("sorel: login rejected")

	// ErrNoSession is returned when login succeeds without a nabto-session cookie.
	ErrNoSession = errors.New("sorel: no session cookie in login response")

	// ErrSessionRejected is returned when a data endpoint answers 401 or 403.
	ErrSessionRejected = errors.New("sorel: session rejected")

	// ErrUnexpectedStatus is returned for any other non-200 data response.
	ErrUnexpectedStatus = errors.New("sorel: unexpected status")

	// ErrMalformedValue is returned when a raw value does not match its channel kind.
	ErrMalformedValue = errors.New("sorel: malformed value")
)
