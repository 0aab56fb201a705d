// Package closedetector detects a stalled upstream tick feed by
// observing price stability: a quote that never moves for StableFor
// is reported as no longer a live market. The Feed Bridge does not
// consult this package; its reconnects follow connect and read errors
// only.
package closedetector

import (
	"log"
	"time"
)

// Detector watches one symbol's quote stream and determines when the
// feed should be considered stalled.
type Detector struct {
	lastPrice   float64
	stableSince time.Time
	startedAt   time.Time

	// StableFor is how long price must remain unchanged before the
	// feed is considered stalled. Default: 60 seconds, per spec §4.A.
	StableFor time.Duration

	// MaxGrace is a hard deadline from the first observation: past
	// this point the feed is forced to rebind regardless of whether
	// price is still moving. Default: 10 minutes.
	MaxGrace time.Duration
}

// New creates a Detector with default tolerances.
func New() *Detector {
	return &Detector{
		StableFor: 60 * time.Second,
		MaxGrace:  10 * time.Minute,
	}
}

// Observe records a quote price and returns true if the upstream
// connection for this symbol should be rebound.
func (d *Detector) Observe(price float64, now time.Time) bool {
	if d.startedAt.IsZero() {
		d.startedAt = now
		d.lastPrice = price
		return false
	}

	if d.MaxGrace > 0 && now.Sub(d.startedAt) >= d.MaxGrace {
		log.Printf("[closedetector] hard deadline %v reached — forcing rebind", d.MaxGrace)
		return true
	}

	if price != d.lastPrice {
		d.lastPrice = price
		d.stableSince = now
		return false
	}

	if d.stableSince.IsZero() {
		d.stableSince = now
		return false
	}

	if now.Sub(d.stableSince) >= d.StableFor {
		log.Printf("[closedetector] price %v stable for %v — feed considered stalled", d.lastPrice, d.StableFor)
		return true
	}

	return false
}

// LastPrice returns the most recently observed price.
func (d *Detector) LastPrice() float64 {
	return d.lastPrice
}

// Reset clears observation state, e.g. immediately after a rebind.
func (d *Detector) Reset() {
	d.lastPrice = 0
	d.stableSince = time.Time{}
	d.startedAt = time.Time{}
}
