// Package engine is the composition root (spec §2 dataflow): it wires the
// Feed Bridge, Candle Builder, Pattern Engine, Scorer, Shield Filter,
// Publisher, and Exit FSM into one running pipeline. Grounded on teacher's
// cmd/mdengine/main.go channel-wiring shape, split here into a package so
// cmd/guard stays a thin env-config-and-signal-handling shell.
package engine

import (
	"sync"

	"eliteguard/internal/model"
	"eliteguard/internal/ringbuf"
)

// ringCapacity bounds how much closed-bar history each (symbol, tf) ring
// retains — enough for the deepest pattern lookback (spec §4.C's 20-bar
// windows) with headroom.
const ringCapacity = 256

// RingRegistry owns one ringbuf.Ring per (symbol, timeframe) and implements
// pattern.RingProvider. Per the DESIGN NOTE on ring ownership: the
// teacher's lock-free SPSC ring assumed a single consumer draining via
// Pop; here the Pattern Engine's detectors and the scorer
// (scoreAndPublish) both read the same symbol's history, so each ring is a
// multi-reader, copy-on-snapshot buffer guarded by its own RWMutex
// (ringbuf.Ring already provides that), registered here under a
// registry-level mutex that only guards the symbol->ring map itself.
type RingRegistry struct {
	mu   sync.RWMutex
	m1   map[string]*ringbuf.Ring
	m5   map[string]*ringbuf.Ring
	m15  map[string]*ringbuf.Ring
}

// NewRingRegistry builds an empty registry; rings are created lazily as
// candles for a new symbol arrive.
func NewRingRegistry() *RingRegistry {
	return &RingRegistry{
		m1:  make(map[string]*ringbuf.Ring),
		m5:  make(map[string]*ringbuf.Ring),
		m15: make(map[string]*ringbuf.Ring),
	}
}

func (g *RingRegistry) ringFor(table map[string]*ringbuf.Ring, symbol string) *ringbuf.Ring {
	g.mu.RLock()
	r, ok := table[symbol]
	g.mu.RUnlock()
	if ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := table[symbol]; ok {
		return r
	}
	r = ringbuf.New(ringCapacity)
	table[symbol] = r
	return r
}

// PushM1 appends a finalized M1 candle (from the Aggregator) to its
// symbol's ring.
func (g *RingRegistry) PushM1(c model.Candle) {
	if c.Forming {
		return
	}
	g.ringFor(g.m1, c.Symbol).Push(c)
}

// PushTF appends a finalized M5/M15 candle (from the TF Builder) to the
// table matching its TF field.
func (g *RingRegistry) PushTF(c model.Candle) {
	if c.Forming {
		return
	}
	switch c.TF {
	case 5:
		g.ringFor(g.m5, c.Symbol).Push(c)
	case 15:
		g.ringFor(g.m15, c.Symbol).Push(c)
	}
}

// Snapshot implements pattern.RingProvider.
func (g *RingRegistry) Snapshot(symbol string) (m1, m5, m15 []model.Candle) {
	g.mu.RLock()
	r1, r5, r15 := g.m1[symbol], g.m5[symbol], g.m15[symbol]
	g.mu.RUnlock()

	if r1 != nil {
		m1 = r1.Snapshot(0)
	}
	if r5 != nil {
		m5 = r5.Snapshot(0)
	}
	if r15 != nil {
		m15 = r15.Snapshot(0)
	}
	return m1, m5, m15
}
