package model

import (
	"encoding/json"
	"time"
)

// Candle represents an OHLC bar for a single symbol at a given timeframe.
// Prices are plain float64 (pip-scale FX prices, not integer ticks).
type Candle struct {
	Symbol     string    `json:"symbol"`
	TF         int       `json:"tf"` // timeframe in whole minutes: 1=M1, 5=M5, 15=M15
	TS         time.Time `json:"ts"` // bucket start time (UTC, TF-aligned)
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	TicksCount int       `json:"ticks_count"` // number of ticks/children aggregated
	Forming    bool      `json:"forming"`      // true if bucket is still open
}

// Key returns "symbol:tf".
func (c *Candle) Key() string {
	return c.Symbol + ":" + Itoa(c.TF)
}

// JSON returns the JSON-encoded candle (errors ignored for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// StreamKey returns the Redis stream key: "candle:{tf}m:{symbol}".
func (c *Candle) StreamKey() string {
	return "candle:" + Itoa(c.TF) + "m:" + c.Symbol
}

// Merge folds n consecutive child candles into one aggregate bar, per spec §3:
// open of the aggregate is the first child's open, close is the last child's
// close, high/low are max/min over children, volume is the sum.
func Merge(symbol string, tf int, children []Candle) Candle {
	agg := Candle{
		Symbol: symbol,
		TF:     tf,
		TS:     children[0].TS,
		Open:   children[0].Open,
		High:   children[0].High,
		Low:    children[0].Low,
	}
	for _, c := range children {
		if c.High > agg.High {
			agg.High = c.High
		}
		if c.Low < agg.Low {
			agg.Low = c.Low
		}
		agg.Volume += c.Volume
		agg.TicksCount += c.TicksCount
	}
	agg.Close = children[len(children)-1].Close
	return agg
}
