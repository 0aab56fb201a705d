package engine

import (
	"sync"
	"time"

	"eliteguard/internal/exitfsm"
	"eliteguard/internal/feed"
	"eliteguard/internal/model"
)

// ExitBridge adapts the Feed Bridge's per-symbol quote snapshots and
// position-close notifications to the Exit FSM, implementing both
// feed.ExitDriver and feed.PositionCloseSink. It keeps internal/feed free
// of any direct internal/exitfsm dependency: the Feed Bridge only knows
// about bid/ask snapshots and ticket numbers, never about tiers, profiles,
// or commands.
type ExitBridge struct {
	store *exitfsm.StateStore
	mgr   *exitfsm.ExitProfileManager
	specs func(symbol string) model.SymbolSpec

	mu     sync.RWMutex
	latest map[string]feed.Quote
}

// NewExitBridge builds an ExitBridge over an already-wired StateStore and
// ExitProfileManager.
func NewExitBridge(store *exitfsm.StateStore, mgr *exitfsm.ExitProfileManager, specs func(symbol string) model.SymbolSpec) *ExitBridge {
	return &ExitBridge{store: store, mgr: mgr, specs: specs, latest: make(map[string]feed.Quote)}
}

// DriveExits implements feed.ExitDriver: for every open position whose
// symbol appears in the snapshot, evaluate its tier's exit profile
// against the latest bid/ask.
func (b *ExitBridge) DriveExits(snapshot map[string]feed.Quote, now time.Time) {
	b.mu.Lock()
	for sym, q := range snapshot {
		b.latest[sym] = q
	}
	b.mu.Unlock()

	for _, pos := range b.store.Snapshot() {
		if pos.State == model.StateClosed {
			continue
		}
		q, ok := snapshot[pos.Symbol]
		if !ok {
			continue
		}
		tick := exitfsm.Tick{Symbol: pos.Symbol, Bid: q.Bid, Ask: q.Ask, TS: now}
		_ = b.mgr.OnTick(pos.Ticket, tick)
	}
}

// PositionClosed implements feed.PositionCloseSink: the broker/EA closed a
// position outside the Exit FSM's own command flow (e.g. a manual close,
// a margin-call liquidation). Finalizes bookkeeping and still runs it
// through Sentry's CheckClose (via OnPositionClosed) so an out-of-band
// close too early is still flagged, using the last bid/ask this bridge
// observed for the position's symbol to estimate the realized R.
func (b *ExitBridge) PositionClosed(ticket int64) {
	pos, ok := b.store.Get(ticket)
	if !ok {
		return
	}

	currentR := 0.0
	if pos.RPips > 0 {
		b.mu.RLock()
		q, ok := b.latest[pos.Symbol]
		b.mu.RUnlock()
		if ok {
			spec := b.specs(pos.Symbol)
			price := q.Bid
			if pos.Direction == model.Sell {
				price = q.Ask
			}
			profitPips := spec.PriceToPips(pos.EntryPx, price)
			if (pos.Direction == model.Buy && price < pos.EntryPx) ||
				(pos.Direction == model.Sell && price > pos.EntryPx) {
				profitPips = -profitPips
			}
			currentR = profitPips / pos.RPips
		}
	}

	_ = b.mgr.OnPositionClosed(ticket, currentR)
}
