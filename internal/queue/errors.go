package queue

import "errors"

// ErrCorrupt is returned for every queue storage failure: an unreadable or
// damaged file, a failed write, or a row that cannot be decoded.
//
// Errors wrapping ErrCorrupt also carry fault.KindQueueCorruption and are
// fatal to the relay.
var ErrCorrupt = errors.New("queue: storage corrupt or unavailable")

// ErrInvalidReading is returned by Enqueue for a reading that cannot be
// stored faithfully, such as a NaN or infinite number. Nothing is written.
var ErrInvalidReading = errors.New("queue: reading cannot be stored")
