// Package pattern implements the eight pure pattern detectors of spec §4.C
// and the engine that runs them against per-symbol candle rings on a fixed
// scan interval. Generalized from eliteguard/internal/strategy's
// Strategy/Engine shape: where a Strategy reacted to one incoming candle, a
// Detector looks back over a windowed ring snapshot, since every pattern here
// needs multi-bar history (e.g. "last 20 M1 closed bars").
package pattern

import (
	"context"
	"log"
	"math/rand"
	"time"

	"eliteguard/internal/markethours"
	"eliteguard/internal/model"
)

// Rings is the read-only view a Detector receives: closed-bar snapshots of
// the three ring buffers maintained by the Candle Builder, oldest-first.
// M1 may include one synthetic "forming" element per spec §4.B, but
// detectors that require only closed bars should trim it themselves.
type Rings struct {
	Symbol  string
	Spec    model.SymbolSpec
	Session model.Session
	M1      []model.Candle
	M5      []model.Candle
	M15     []model.Candle
}

// Detector is a pure function from (symbol, rings) to an optional
// PatternSignal. Implementations must be deterministic modulo the small
// confidence jitter spec §4.C permits for deduplication, and must return nil
// rather than fabricate data when the ring lacks enough history.
type Detector interface {
	Name() model.PatternKind
	Detect(r Rings) *model.PatternSignal
}

// RingProvider supplies the current closed-bar rings for a symbol. It is
// implemented by the candle-builder's ring registry.
type RingProvider interface {
	Snapshot(symbol string) (m1, m5, m15 []model.Candle)
}

// Engine runs every registered Detector against every managed symbol once
// per scan interval (spec §5: "Runs at most once per scan_interval, not
// re-entrant per symbol").
type Engine struct {
	detectors []Detector
	sigCh     chan *model.PatternSignal
}

// NewEngine creates an Engine with the given output buffer size.
func NewEngine(bufSize int) *Engine {
	return &Engine{sigCh: make(chan *model.PatternSignal, bufSize)}
}

// Register adds a Detector to the engine's run set.
func (e *Engine) Register(d Detector) {
	e.detectors = append(e.detectors, d)
}

// Signals returns the channel on which detected PatternSignals are
// delivered. Consumers (the scorer) should drain it continuously.
func (e *Engine) Signals() <-chan *model.PatternSignal {
	return e.sigCh
}

// Run drives the scan loop: every scanInterval, for every symbol, pull a
// ring snapshot from provider, classify the session, and invoke each
// detector. Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, symbols []string, specs func(string) model.SymbolSpec, provider RingProvider, scanInterval time.Duration) {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scanOnce(symbols, specs, provider)
		}
	}
}

func (e *Engine) scanOnce(symbols []string, specs func(string) model.SymbolSpec, provider RingProvider) {
	now := time.Now().UTC()
	session := markethours.Classify(now)

	for _, sym := range symbols {
		m1, m5, m15 := provider.Snapshot(sym)
		if len(m1) == 0 && len(m5) == 0 {
			continue
		}
		r := Rings{
			Symbol:  sym,
			Spec:    specs(sym),
			Session: session,
			M1:      m1,
			M5:      m5,
			M15:     m15,
		}
		for _, d := range e.detectors {
			sig := d.Detect(r)
			if sig == nil {
				continue
			}
			sig.Pair = sym
			sig.DetectedAt = now
			select {
			case e.sigCh <- sig:
			default:
				log.Printf("[pattern] signal channel full, dropping %s %s", sym, sig.PatternID)
			}
		}
	}
}

// jitter returns conf scaled by a uniform ±pct jitter, used by every
// detector for deduplication (spec §4.C: "±3% uniform jitter").
func jitter(conf float64, pct float64) float64 {
	factor := 1 + (rand.Float64()*2-1)*pct
	return conf * factor
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sessionTier maps the active session to a 0-20 confidence contribution
// used by several detectors; OVERLAP is the highest-liquidity window.
func sessionTier(s model.Session) float64 {
	switch s {
	case model.SessionOverlap:
		return 20
	case model.SessionLondon, model.SessionNY:
		return 12
	case model.SessionAsian:
		return 6
	default:
		return 0
	}
}
