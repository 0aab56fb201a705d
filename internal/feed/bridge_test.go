package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eliteguard/internal/model"
)

// fakeSource replays a fixed sequence of messages, then blocks until ctx
// is cancelled (simulating an idle, still-connected upstream).
type fakeSource struct {
	messages  []string
	connected bool
	connectErr error
}

func (f *fakeSource) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeSource) ReadMessage(ctx context.Context) (string, error) {
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		return msg, nil
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func (f *fakeSource) Close() error { f.connected = false; return nil }

type fakeDriver struct {
	mu        sync.Mutex
	snapshots []map[string]Quote
}

func (d *fakeDriver) DriveExits(snapshot map[string]Quote, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots = append(d.snapshots, snapshot)
}

func (d *fakeDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.snapshots)
}

type fakeCloseSink struct {
	mu      sync.Mutex
	closed  []int64
}

func (s *fakeCloseSink) PositionClosed(ticket int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, ticket)
}

func TestBridge_TickUpdatesQuotesAndDrivesExits(t *testing.T) {
	source := &fakeSource{messages: []string{
		`{"type":"tick","symbol":"EURUSD","bid":1.0950,"ask":1.0952}`,
	}}
	tickCh := make(chan model.Tick, 4)
	driver := &fakeDriver{}

	b := New(source, []string{"EURUSD"}, tickCh, nil, driver, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	b.Run(ctx)

	quotes := b.Quotes()
	q, ok := quotes["EURUSD"]
	if !ok || q.Bid != 1.0950 {
		t.Fatalf("expected EURUSD quote cached, got %+v", quotes)
	}
	if driver.count() == 0 {
		t.Error("expected exit drive to have fired at least once")
	}
	select {
	case tick := <-tickCh:
		if tick.Symbol != "EURUSD" {
			t.Errorf("unexpected tick forwarded: %+v", tick)
		}
	default:
		t.Error("expected a tick forwarded to tickCh")
	}
}

func TestBridge_UnmanagedSymbolNotDriven(t *testing.T) {
	source := &fakeSource{messages: []string{
		`{"type":"tick","symbol":"GBPUSD","bid":1.25,"ask":1.2502}`,
	}}
	tickCh := make(chan model.Tick, 4)
	driver := &fakeDriver{}

	b := New(source, []string{"EURUSD"}, tickCh, nil, driver, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	b.Run(ctx)

	for _, snap := range driver.snapshots {
		if _, ok := snap["GBPUSD"]; ok {
			t.Error("unmanaged symbol should never reach the exit driver")
		}
	}
}

func TestBridge_StatusFrameDetectsClose(t *testing.T) {
	source := &fakeSource{}
	tickCh := make(chan model.Tick, 4)
	sink := &fakeCloseSink{}

	b := New(source, nil, tickCh, nil, nil, sink)
	b.SeedOpenTickets([]int64{1, 2, 3})

	b.handleStatus(&StatusFrame{Positions: []int64{1, 3}})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.closed) != 1 || sink.closed[0] != 2 {
		t.Fatalf("expected ticket 2 reported closed, got %v", sink.closed)
	}
}

func TestBridge_SingleTicketStatusClose(t *testing.T) {
	b := New(&fakeSource{}, nil, make(chan model.Tick, 1), nil, nil, nil)
	b.SeedOpenTickets([]int64{99})

	var closed []int64
	b.closeSink = positionClosedFunc(func(ticket int64) {
		closed = append(closed, ticket)
	})

	b.handleStatus(&StatusFrame{Ticket: 99, Status: "TP_HIT"})
	if len(closed) != 1 || closed[0] != 99 {
		t.Fatalf("expected ticket 99 closed, got %v", closed)
	}
}

type positionClosedFunc func(ticket int64)

func (f positionClosedFunc) PositionClosed(ticket int64) { f(ticket) }

func TestBridge_ReconnectsOnConnectError(t *testing.T) {
	source := &fakeSource{connectErr: errors.New("refused")}
	b := New(source, nil, make(chan model.Tick, 1), nil, nil, nil)

	attempt := 0
	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		b.Run(ctx)
		close(done)
	}()
	<-done
	_ = attempt
}
