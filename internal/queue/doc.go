// Package queue provides the durable FIFO that holds readings a sink did
// not accept.
//
// The queue is one SQLite file (default /data/queue.dat) using the rollback
// journal and synchronous=FULL. Consumers follow a peek-then-confirm
// protocol:
//
//	entries, err := q.Peek(ctx, 100)
//	for _, e := range entries {
//	    if err := sink.Send(ctx, e.Reading); err != nil {
//	        break // e stays at the head
//	    }
//	    if err := q.Ack(ctx, e.Seq); err != nil {
//	        return err
//	    }
//	}
//
// A crash between Send and Ack redelivers the entry on the next run, which
// gives at-least-once delivery.
package queue
