package energiemon

import "errors"

// Sentinel errors for the energiemon sink.
var (
	// ErrUnknownSeries indicates a series key has no entry in the catalog.
	ErrUnknownSeries = errors.New("energiemon: series not in catalog")

	// ErrUnexpectedStatus indicates the API answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("energiemon: unexpected status")

	// ErrNotResolved indicates Send was called before Resolve succeeded.
	ErrNotResolved = errors.New("energiemon: series catalog not resolved")
)
