package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"eliteguard/internal/model"
)

// Source is the inbound transport the Bridge reads raw frames from: a
// single upstream PULL socket in spec §4.A's terms. Implementations own
// their own connect/reconnect primitives (dial, handshake); Bridge only
// calls Connect/ReadMessage/Close and drives the retry schedule around
// them.
type Source interface {
	Connect(ctx context.Context) error
	ReadMessage(ctx context.Context) (string, error)
	Close() error
}

// Quote is the latest bid/ask snapshot for one symbol.
type Quote struct {
	Bid float64
	Ask float64
	TS  time.Time
}

// ExitDriver is the Exit FSM's drive entry point: given the debounced
// quotes snapshot restricted to managed symbols, it evaluates every
// tracked open position against the new prices. Grounded on
// original_source/zmq_telemetry_bridge_resilient.py's
// drive_exits_for_active_positions hook.
type ExitDriver interface {
	DriveExits(snapshot map[string]Quote, now time.Time)
}

// PositionCloseSink receives tickets the close detector has determined
// are no longer open, so the Exit FSM can finalize bookkeeping without
// waiting for a confirmed CLOSE round trip.
type PositionCloseSink interface {
	PositionClosed(ticket int64)
}

// reconnect backoff schedule, spec §4.A: 5s, then 30s, capped at 60s
// (mirrors original_source's "no data 30s -> warn, 60s -> recover").
var reconnectBackoff = []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}

const driveMinGap = 100 * time.Millisecond

// Bridge is the Feed Bridge: it owns the single inbound connection,
// republishes parsed ticks/candles to the rest of the engine, maintains
// the live quotes cache, debounce-drives the Exit FSM, and detects
// position closes from upstream status frames.
type Bridge struct {
	source  Source
	managed map[string]bool

	tickCh  chan<- model.Tick
	batchCh chan<- OHLCBatch

	driver    ExitDriver
	closeSink PositionCloseSink

	mu          sync.Mutex
	quotes      map[string]Quote
	lastDriveTS time.Time
	knownOpen   map[int64]bool

	OnReconnect func()
	OnHeartbeat func()
}

// New creates a Bridge over source, forwarding parsed ticks to tickCh and
// batched candles to batchCh. managedSymbols is the set the Exit FSM
// drive restricts itself to (spec §4.A: "the subset of quotes whose keys
// intersect a configured managed symbols set").
func New(source Source, managedSymbols []string, tickCh chan<- model.Tick, batchCh chan<- OHLCBatch, driver ExitDriver, closeSink PositionCloseSink) *Bridge {
	managed := make(map[string]bool, len(managedSymbols))
	for _, s := range managedSymbols {
		managed[s] = true
	}
	return &Bridge{
		source:    source,
		managed:   managed,
		tickCh:    tickCh,
		batchCh:   batchCh,
		driver:    driver,
		closeSink: closeSink,
		quotes:    make(map[string]Quote),
		knownOpen: make(map[int64]bool),
	}
}

// SeedOpenTickets primes the close detector's known-open set, e.g. from
// the state store after a warm restart.
func (b *Bridge) SeedOpenTickets(tickets []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tickets {
		b.knownOpen[t] = true
	}
}

// Quotes returns a copy of the current quotes cache.
func (b *Bridge) Quotes() map[string]Quote {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]Quote, len(b.quotes))
	for k, v := range b.quotes {
		out[k] = v
	}
	return out
}

// Run connects to source and processes frames until ctx is cancelled,
// reconnecting with the spec §4.A backoff schedule on every disconnect.
func (b *Bridge) Run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := b.source.Connect(ctx); err != nil {
			log.Printf("[feed] connect failed: %v", err)
			if !b.sleepBackoff(ctx, &attempt) {
				return
			}
			continue
		}
		attempt = 0
		log.Println("[feed] connected to upstream")

		if b.OnReconnect != nil {
			b.OnReconnect()
		}

		b.readLoop(ctx)
		b.source.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
		if !b.sleepBackoff(ctx, &attempt) {
			return
		}
	}
}

// sleepBackoff waits the next entry in reconnectBackoff (holding at the
// last entry once exhausted), returning false if ctx was cancelled
// during the wait.
func (b *Bridge) sleepBackoff(ctx context.Context, attempt *int) bool {
	idx := *attempt
	if idx >= len(reconnectBackoff) {
		idx = len(reconnectBackoff) - 1
	}
	delay := reconnectBackoff[idx]
	*attempt++

	log.Printf("[feed] reconnecting in %v", delay)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// readLoop reads frames until the connection errors or ctx is cancelled.
func (b *Bridge) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := b.source.ReadMessage(ctx)
		if err != nil {
			log.Printf("[feed] read error: %v", err)
			return
		}

		now := time.Now().UTC()
		frame, err := ParseFrame(raw, now)
		if err != nil {
			log.Printf("[feed] discarding malformed frame: %v", err)
			continue
		}
		b.handleFrame(frame, now)
	}
}

func (b *Bridge) handleFrame(f Frame, now time.Time) {
	switch f.Kind {
	case KindTick:
		b.handleTick(f.Tick, now)
	case KindOHLCBatch:
		if b.batchCh != nil {
			select {
			case b.batchCh <- *f.Batch:
			default:
				log.Printf("[feed] batch channel full, dropping %s batch", f.Batch.Symbol)
			}
		}
	case KindHeartbeat:
		if b.OnHeartbeat != nil {
			b.OnHeartbeat()
		}
	case KindStatus:
		b.handleStatus(f.Status)
	case KindUnknown:
		// opaque frame, spec §4.A "republishes them unchanged" — nothing
		// to act on locally.
	}
}

func (b *Bridge) handleTick(t *model.Tick, now time.Time) {
	select {
	case b.tickCh <- *t:
	default:
		log.Printf("[feed] tick channel full, dropping tick for %s", t.Symbol)
	}

	b.mu.Lock()
	b.quotes[t.Symbol] = Quote{Bid: t.Bid, Ask: t.Ask, TS: now}
	driveDue := b.driver != nil && now.Sub(b.lastDriveTS) >= driveMinGap
	var snapshot map[string]Quote
	if driveDue {
		snapshot = b.managedSnapshotLocked()
		b.lastDriveTS = now
	}
	b.mu.Unlock()

	if driveDue && len(snapshot) > 0 {
		b.driver.DriveExits(snapshot, now)
	}
}

// managedSnapshotLocked must be called with b.mu held.
func (b *Bridge) managedSnapshotLocked() map[string]Quote {
	if len(b.managed) == 0 {
		return nil
	}
	out := make(map[string]Quote)
	for sym, q := range b.quotes {
		if b.managed[sym] {
			out[sym] = q
		}
	}
	return out
}

// handleStatus reconciles the close detector's known-open-ticket set
// against an upstream status frame, grounded on
// original_source/src/bitten_core/position_close_detector.py's
// process_tick_data/check_position_close.
func (b *Bridge) handleStatus(s *StatusFrame) {
	var closed []int64

	b.mu.Lock()
	switch {
	case len(s.Positions) > 0:
		current := make(map[int64]bool, len(s.Positions))
		for _, t := range s.Positions {
			current[t] = true
		}
		for t := range b.knownOpen {
			if !current[t] {
				closed = append(closed, t)
			}
		}
		b.knownOpen = current

	case s.Ticket != 0:
		switch s.Status {
		case "CLOSED", "TP_HIT", "SL_HIT":
			if b.knownOpen[s.Ticket] {
				closed = append(closed, s.Ticket)
				delete(b.knownOpen, s.Ticket)
			}
		default:
			b.knownOpen[s.Ticket] = true
		}
	}
	b.mu.Unlock()

	if b.closeSink == nil {
		return
	}
	for _, ticket := range closed {
		log.Printf("[feed] position %d closed (detected from status frame)", ticket)
		b.closeSink.PositionClosed(ticket)
	}
}
