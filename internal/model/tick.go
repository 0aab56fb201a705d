package model

import "time"

// Tick is a single best-bid/best-ask quote for a currency pair.
type Tick struct {
	Symbol  string    `json:"symbol"`
	Bid     float64   `json:"bid"`
	Ask     float64   `json:"ask"`
	Volume  float64   `json:"volume"`
	TickTS  time.Time `json:"tick_ts"`            // UTC arrival timestamp
	EventTS time.Time `json:"event_ts,omitempty"` // upstream-provided canonical time
}

// CanonicalTS returns the best available timestamp for this tick.
// Prefers the upstream-provided EventTS; falls back to TickTS (arrival time).
func (t *Tick) CanonicalTS() time.Time {
	if !t.EventTS.IsZero() {
		return t.EventTS
	}
	return t.TickTS
}

// Mid returns the mid price between bid and ask.
func (t *Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// MinuteBucket returns the Unix-minute bucket this tick belongs to.
func (t *Tick) MinuteBucket() int64 {
	return t.CanonicalTS().Unix() / 60
}

// Key returns a unique key for this tick's symbol.
func (t *Tick) Key() string {
	return t.Symbol
}
