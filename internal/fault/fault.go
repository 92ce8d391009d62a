// Package fault classifies relay errors into a small set of kinds.
//
// Call sites wrap the underlying error with the kind that describes it,
// and callers further up decide what to do by asking for the kind:
//
//	if fault.IsFatal(err) {
//	    return err // stop the relay
//	}
//
// Only Auth and QueueCorruption are fatal. Fetch and Parse abort the current
// cycle's collection. Delivery is handled by requeueing the reading.
package fault

import "fmt"

// Kind is the category of a relay error.
type Kind int

const (
	// KindUnknown is reported for errors that carry no kind.
	KindUnknown Kind = iota

	// KindFetch covers network errors and unexpected HTTP statuses from the source.
	KindFetch

	// KindParse covers source payloads that cannot be decoded.
	KindParse

	// KindDelivery covers sink send failures. The reading is requeued.
	KindDelivery

	// KindAuth covers rejected source credentials or sessions.
	KindAuth

	// KindQueueCorruption covers every durable queue storage failure.
	KindQueueCorruption
)

// String returns the lower-case name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindParse:
		return "parse"
	case KindDelivery:
		return "delivery"
	case KindAuth:
		return "auth"
	case KindQueueCorruption:
		return "queue_corruption"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind must stop the relay.
func (k Kind) Fatal() bool {
	return k == KindAuth || k == KindQueueCorruption
}

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind

	// Op names the operation that failed, e.g. "sorel.authenticate".
	Op string

	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err tagged with kind. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf is Wrap with a formatted message in place of an underlying error.
func Wrapf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the most severe kind found anywhere in err's tree.
//
// Joined errors are searched in full, so a single rejected channel among
// several transient failures still reports KindAuth.
func KindOf(err error) Kind {
	worst := KindUnknown
	walk(err, func(e error) {
		if fe, ok := e.(*Error); ok && fe.Kind > worst {
			worst = fe.Kind
		}
	})
	return worst
}

// Is reports whether err carries kind anywhere in its tree.
func Is(err error, kind Kind) bool {
	found := false
	walk(err, func(e error) {
		if fe, ok := e.(*Error); ok && fe.Kind == kind {
			found = true
		}
	})
	return found
}

// IsFatal reports whether err must stop the relay.
func IsFatal(err error) bool {
	return KindOf(err).Fatal()
}

// walk visits err and every error it wraps, depth first.
func walk(err error, visit func(error)) {
	if err == nil {
		return
	}
	visit(err)

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			walk(inner, visit)
		}
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), visit)
	}
}
