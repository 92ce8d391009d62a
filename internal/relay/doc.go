// Package relay runs the solbox polling and delivery pipeline.
//
// A Scheduler ticks at the poll interval. Each tick is one cycle:
//
//  1. Authenticate to the source and read every channel
//  2. Send each fresh reading; failed sends are written to the durable queue
//  3. Drain up to the drain limit of queued readings, oldest first, stopping
//     at the first failure
//
// Delivery is at-least-once. A reading leaves the queue only after the sink
// confirmed it, so a crash at any point repeats a delivery rather than
// losing one.
//
// # Errors
//
// The Scheduler classifies errors with package fault. Fetch and Parse errors
// cost at most the affected readings of one cycle. Auth errors and queue
// corruption stop the relay; the binary then exits non-zero.
//
// # Timeouts
//
// Every cycle runs under a watchdog deadline (cycle_timeout) so a stalled
// network call cannot block the next cycle. Queue writes are exempt from the
// deadline.
package relay
