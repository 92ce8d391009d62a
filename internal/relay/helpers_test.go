package relay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/queue"
	"github.com/nerrad567/solbox-relay/internal/reading"
	"github.com/nerrad567/solbox-relay/internal/source/sorel"
)

var errSinkDown = errors.New("sink down")

// fakeSink records accepted readings. fail decides per reading whether the
// send is refused; nil accepts everything.
type fakeSink struct {
	mu        sync.Mutex
	fail      func(r reading.Reading) bool
	delivered []reading.Reading
	attempts  int
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Send(ctx context.Context, r reading.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if err := ctx.Err(); err != nil {
		return fault.Wrap(fault.KindDelivery, "fake.send", err)
	}
	if s.fail != nil && s.fail(r) {
		return fault.Wrap(fault.KindDelivery, "fake.send", errSinkDown)
	}
	s.delivered = append(s.delivered, r)
	return nil
}

func (s *fakeSink) setFail(fail func(r reading.Reading) bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *fakeSink) deliveredIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, len(s.delivered))
	for i, r := range s.delivered {
		ids[i] = r.ID()
	}
	return ids
}

func down(reading.Reading) bool { return true }

// ackRecorder wraps a queue and records acknowledged sequence numbers.
type ackRecorder struct {
	*queue.Queue
	acked []int64
}

func (a *ackRecorder) Ack(ctx context.Context, seq int64) error {
	if err := a.Queue.Ack(ctx, seq); err != nil {
		return err
	}
	a.acked = append(a.acked, seq)
	return nil
}

func queuePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "queue.dat")
}

func openQueue(t *testing.T, path string) *queue.Queue {
	t.Helper()
	q, err := queue.Open(context.Background(), testQueueConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

var cycleStart = time.Date(2026, 10, 18, 12, 0, 0, 0, time.FixedZone("CEST", 2*60*60))

// batch returns one cycle's worth of readings for the default channels.
func batch(cycle int) []reading.Reading {
	ts := cycleStart.Add(time.Duration(cycle) * time.Minute)
	return []reading.Reading{
		reading.New("temp_kollektor", ts, reading.Number(float64(40+cycle), "C")),
		reading.New("temp_boiler_unten", ts, reading.Number(30, "C")),
		reading.New("temp_boiler_oben", ts, reading.Number(55, "°C")),
		reading.New("pumpe_status", ts, reading.State(cycle%2 == 0)),
	}
}

func ids(readings []reading.Reading) []uuid.UUID {
	out := make([]uuid.UUID, len(readings))
	for i, r := range readings {
		out[i] = r.ID()
	}
	return out
}

// fakeSource returns scripted results, one per Authenticate/ReadAll pair.
type fakeSource struct {
	mu       sync.Mutex
	authErr  []error
	readings [][]reading.Reading
	readErr  []error
	cycles   int
}

func (s *fakeSource) Authenticate(context.Context) (sorel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.cycles
	if i < len(s.authErr) && s.authErr[i] != nil {
		s.cycles++
		return sorel.Session{}, s.authErr[i]
	}
	return sorel.NewSession(fmt.Sprintf("session-%d", i)), nil
}

func (s *fakeSource) ReadAll(context.Context, sorel.Session) ([]reading.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.cycles
	s.cycles++

	var rs []reading.Reading
	if i < len(s.readings) {
		rs = s.readings[i]
	}
	var err error
	if i < len(s.readErr) {
		err = s.readErr[i]
	}
	return rs, err
}

func (s *fakeSource) cycleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

func testQueueConfig(path string) config.QueueConfig {
	return config.QueueConfig{Path: path, BusyTimeout: 5}
}
