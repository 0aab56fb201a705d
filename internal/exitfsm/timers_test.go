package exitfsm

import (
	"sync"
	"testing"
	"time"

	"eliteguard/internal/model"
)

type fakeTimeoutMetaStore struct {
	mu   sync.Mutex
	rows map[int64]model.TimeoutMeta
}

func newFakeTimeoutMetaStore() *fakeTimeoutMetaStore {
	return &fakeTimeoutMetaStore{rows: make(map[int64]model.TimeoutMeta)}
}

func (f *fakeTimeoutMetaStore) SetTimeoutMeta(meta model.TimeoutMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[meta.Ticket] = meta
	return nil
}

func (f *fakeTimeoutMetaStore) GetTimeoutMeta(ticket int64) (*model.TimeoutMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[ticket]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeTimeoutMetaStore) ClearTimeoutMeta(ticket int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, ticket)
	return nil
}

func TestTimeoutScanner_ExpiresOverdueEnteredPosition(t *testing.T) {
	persist := newFakePositionStore()
	store := NewStateStore(persist)
	sender := &recordingSender{}
	bus := NewCommandBus(sender)
	meta := newFakeTimeoutMetaStore()

	scanner := NewTimeoutScanner(store, bus, meta, func(tier string) time.Duration {
		return 90 * time.Minute
	})

	p := samplePosition(1)
	p.State = model.StateEntered
	store.Insert(p)
	if err := scanner.Arm(1, time.Now().UTC(), "TIER_BEGINNER"); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	scanner.sweepOnce(time.Now()) // not yet expired
	bus.mu.Lock()
	queuedBefore := bus.queue.Len()
	bus.mu.Unlock()
	if queuedBefore != 0 {
		t.Fatalf("expected no close command queued before expiry, got %d", queuedBefore)
	}

	scanner.sweepOnce(time.Now().Add(91 * time.Minute))

	bus.mu.Lock()
	queuedAfter := bus.queue.Len()
	bus.mu.Unlock()
	if queuedAfter != 1 {
		t.Fatalf("expected 1 close command queued after expiry, got %d", queuedAfter)
	}

	if m, _ := meta.GetTimeoutMeta(1); m != nil {
		t.Error("expected timeout meta row cleared once the timeout fires")
	}
}

func TestTimeoutScanner_DisarmClearsDeadline(t *testing.T) {
	persist := newFakePositionStore()
	store := NewStateStore(persist)
	sender := &recordingSender{}
	bus := NewCommandBus(sender)
	meta := newFakeTimeoutMetaStore()

	scanner := NewTimeoutScanner(store, bus, meta, func(tier string) time.Duration {
		return 10 * time.Minute
	})

	store.Insert(samplePosition(2))
	scanner.Arm(2, time.Now().UTC(), "TIER_BEGINNER")
	if err := scanner.Disarm(2); err != nil {
		t.Fatalf("Disarm: %v", err)
	}

	got, _ := store.Get(2)
	if !got.ExpiresAt.IsZero() {
		t.Error("expected ExpiresAt cleared after Disarm")
	}
	if m, _ := meta.GetTimeoutMeta(2); m != nil {
		t.Error("expected timeout meta row cleared after Disarm")
	}
}

func TestTimeoutScanner_IgnoresNonEnteredPositions(t *testing.T) {
	persist := newFakePositionStore()
	store := NewStateStore(persist)
	sender := &recordingSender{}
	bus := NewCommandBus(sender)

	scanner := NewTimeoutScanner(store, bus, nil, func(tier string) time.Duration {
		return time.Millisecond
	})

	p := samplePosition(3)
	p.State = model.StateClosed
	p.ExpiresAt = time.Now().Add(-time.Hour)
	store.Insert(p)

	scanner.sweepOnce(time.Now())
	bus.mu.Lock()
	queued := bus.queue.Len()
	bus.mu.Unlock()
	if queued != 0 || sender.count() != 0 {
		t.Errorf("expected no timeout command for a non-ENTERED position, got %d queued", queued)
	}
}
