package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/database"
	"github.com/nerrad567/solbox-relay/internal/reading"
	"github.com/nerrad567/solbox-relay/migrations"
)

// Stored value kinds.
const (
	kindNumber = "number"
	kindState  = "state"
)

// maxPeekPrealloc caps the slice capacity Peek reserves up front.
const maxPeekPrealloc = 256

// timeLayout keeps sub-second precision and the original UTC offset.
const timeLayout = time.RFC3339Nano

// Entry is a queued reading together with its position in the queue.
type Entry struct {
	// Seq is the FIFO position. Lower values were enqueued earlier.
	Seq int64

	Reading    reading.Reading
	EnqueuedAt time.Time
}

// Queue is a durable FIFO of readings awaiting delivery.
//
// Every mutating call is committed to disk before it returns. Entries are
// only removed by Ack, so a reading survives any crash between Peek and a
// confirmed send.
//
// Thread Safety:
//   - Safe for concurrent use; SQLite serialises access through one connection.
type Queue struct {
	db  *database.DB
	now func() time.Time
}

// Open opens or creates the queue file at cfg.Path.
//
// The file is integrity-checked and its schema migrated before use. A file
// that fails either step is reported as ErrCorrupt and left untouched.
//
// Parameters:
//   - ctx: Context for the startup checks
//   - cfg: Queue storage configuration
//
// Returns:
//   - *Queue: Ready queue
//   - error: ErrCorrupt (fault.KindQueueCorruption) on any storage failure
func Open(ctx context.Context, cfg config.QueueConfig) (*Queue, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, corrupt("open", err)
	}

	if err := db.IntegrityCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, corrupt("open", err)
	}

	if err := db.Migrate(ctx, migrations.Source); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, corrupt("open", err)
	}

	return &Queue{db: db, now: time.Now}, nil
}

// Close releases the queue file.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Path returns the queue file location.
func (q *Queue) Path() string {
	return q.db.Path()
}

// Enqueue appends r at the tail.
//
// Enqueueing a reading whose ID is already queued is a no-op, so a retry
// after an ambiguous failure cannot create a duplicate entry. Any other
// constraint failure is returned. A NaN or infinite number is rejected with
// ErrInvalidReading.
func (q *Queue) Enqueue(ctx context.Context, r reading.Reading) error {
	kind, value := kindNumber, r.Value().Float()
	if r.Value().IsState() {
		kind, value = kindState, 0
		if r.Value().On() {
			value = 1
		}
	} else if math.IsNaN(value) || math.IsInf(value, 0) {
		return fault.Wrap(fault.KindParse, "queue.enqueue",
			fmt.Errorf("%w: series %s value %v is not finite", ErrInvalidReading, r.SeriesKey(), value))
	}

	err := q.insert(ctx, row{
		readingID:  r.ID().String(),
		seriesKey:  r.SeriesKey(),
		observedAt: r.Timestamp().Format(timeLayout),
		kind:       kind,
		value:      value,
		unit:       r.Value().Unit(),
		enqueuedAt: q.now().UTC().Format(timeLayout),
	})
	if err != nil {
		return corrupt("enqueue", err)
	}
	return nil
}

// row is one delivery_queue record in its stored form.
type row struct {
	readingID  string
	seriesKey  string
	observedAt string
	kind       string
	value      float64
	unit       string
	enqueuedAt string
}

// insert writes rec. Only a reading_id conflict is ignored; NOT NULL, CHECK
// and STRICT type failures come back as errors.
func (q *Queue) insert(ctx context.Context, rec row) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO delivery_queue
			(reading_id, series_key, observed_at, value_kind, value, unit, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reading_id) DO NOTHING`,
		rec.readingID,
		rec.seriesKey,
		rec.observedAt,
		rec.kind,
		rec.value,
		rec.unit,
		rec.enqueuedAt,
	)
	return err
}

// Peek returns up to limit entries from the head, oldest first, without
// removing them. A limit of zero or less returns nothing.
func (q *Queue) Peek(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT seq, reading_id, series_key, observed_at, value_kind, value, unit, enqueued_at
		FROM delivery_queue
		ORDER BY seq
		LIMIT ?`, limit)
	if err != nil {
		return nil, corrupt("peek", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, min(limit, maxPeekPrealloc))
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, corrupt("peek", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, corrupt("peek", err)
	}

	return entries, nil
}

// Ack removes the entry with the given seq after a confirmed delivery.
// Acking a seq that is not queued is not an error.
func (q *Queue) Ack(ctx context.Context, seq int64) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM delivery_queue WHERE seq = ?", seq); err != nil {
		return corrupt("ack", err)
	}
	return nil
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM delivery_queue").Scan(&n); err != nil {
		return 0, corrupt("len", err)
	}
	return n, nil
}

// IsEmpty reports whether nothing is queued.
func (q *Queue) IsEmpty(ctx context.Context) (bool, error) {
	var exists int
	err := q.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM delivery_queue)").Scan(&exists)
	if err != nil {
		return false, corrupt("is_empty", err)
	}
	return exists == 0, nil
}

// Oldest returns when the head entry was enqueued.
// ok is false when the queue is empty.
func (q *Queue) Oldest(ctx context.Context) (enqueuedAt time.Time, ok bool, err error) {
	var raw string
	err = q.db.QueryRowContext(ctx,
		"SELECT enqueued_at FROM delivery_queue ORDER BY seq LIMIT 1",
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, corrupt("oldest", err)
	}

	enqueuedAt, err = time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, false, corrupt("oldest", fmt.Errorf("enqueued_at %q: %w", raw, err))
	}
	return enqueuedAt, true, nil
}

// HealthCheck verifies the queue file is readable.
func (q *Queue) HealthCheck(ctx context.Context) error {
	if err := q.db.HealthCheck(ctx); err != nil {
		return corrupt("health", err)
	}
	return nil
}

// scanEntry decodes one row. Any field that does not decode is an error;
// rows are never silently skipped.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                                   Entry
		rawID, series, observed, kind, unit string
		enqueued                            string
		value                               float64
	)
	if err := rows.Scan(&e.Seq, &rawID, &series, &observed, &kind, &value, &unit, &enqueued); err != nil {
		return Entry{}, fmt.Errorf("scanning row: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return Entry{}, fmt.Errorf("seq %d: reading_id %q: %w", e.Seq, rawID, err)
	}

	ts, err := time.Parse(timeLayout, observed)
	if err != nil {
		return Entry{}, fmt.Errorf("seq %d: observed_at %q: %w", e.Seq, observed, err)
	}

	e.EnqueuedAt, err = time.Parse(timeLayout, enqueued)
	if err != nil {
		return Entry{}, fmt.Errorf("seq %d: enqueued_at %q: %w", e.Seq, enqueued, err)
	}

	var v reading.Value
	switch kind {
	case kindNumber:
		v = reading.Number(value, unit)
	case kindState:
		v = reading.State(value != 0)
	default:
		return Entry{}, fmt.Errorf("seq %d: unknown value_kind %q", e.Seq, kind)
	}

	e.Reading = reading.Restore(id, series, ts, v)
	return e, nil
}

// corrupt tags a storage failure as queue corruption.
func corrupt(op string, err error) error {
	return fault.Wrap(fault.KindQueueCorruption, "queue."+op, fmt.Errorf("%w: %w", ErrCorrupt, err))
}
