// Package agg builds M1 OHLC candles from a stream of ticks.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"eliteguard/internal/model"
)

// candleState holds the in-progress M1 candle for one symbol in the
// current minute bucket.
type candleState struct {
	bucket int64 // Unix second of this minute's floor
	candle model.Candle
}

// Aggregator builds 1-minute OHLC candles from a stream of ticks. It
// runs in a single goroutine and emits finalized candles once the
// event-time watermark passes their bucket.
//
// Event-time watermark: candles are finalized based on the event-time
// watermark (newest minute-bucket start seen minus ReorderBuffer,
// at least 1s), not wall-clock
// time. This handles out-of-order ticks that arrive within the
// reorder window — common on multi-venue FX feeds.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*candleState // key = symbol

	flushInterval time.Duration

	// ReorderBuffer is the duration to hold out-of-order ticks before
	// considering their bucket finalized. Default: 2s.
	ReorderBuffer time.Duration

	maxEventTS int64 // newest minute-bucket start seen (Unix seconds)
	watermark  int64 // maxEventTS - ReorderBuffer (Unix seconds)

	OnDroppedTick func() // called when candleCh is full
	OnLateTick    func() // called when tick arrives behind watermark (event-time)
}

// New creates a new Aggregator with default settings.
func New() *Aggregator {
	return &Aggregator{
		states:        make(map[string]*candleState),
		flushInterval: 250 * time.Millisecond,
		ReorderBuffer: 2 * time.Second,
	}
}

// WatermarkDelay returns the current lag between wall-clock time and
// the event-time watermark. Useful for observability.
func (a *Aggregator) WatermarkDelay() time.Duration {
	a.mu.Lock()
	wm := a.watermark
	a.mu.Unlock()
	if wm == 0 {
		return 0
	}
	return time.Since(time.Unix(wm, 0))
}

// Run consumes ticks from tickCh in a single goroutine, aggregates
// into M1 candles, and sends finalized candles to candleCh. Blocks
// until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, candleCh chan<- model.Candle) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flushAll(candleCh)
			return

		case tick, ok := <-tickCh:
			if !ok {
				a.flushAll(candleCh)
				return
			}
			a.processTick(tick, candleCh)

		case <-ticker.C:
			a.flushOld(candleCh)
		}
	}
}

func minuteFloor(ts time.Time) int64 {
	return ts.Truncate(time.Minute).Unix()
}

// processTick incorporates a single tick into the M1 candle state,
// using the event-time watermark to determine whether it is late.
func (a *Aggregator) processTick(tick model.Tick, candleCh chan<- model.Candle) {
	bucket := minuteFloor(tick.CanonicalTS())
	price := tick.Mid()
	key := tick.Symbol

	a.mu.Lock()
	defer a.mu.Unlock()

	if bucket > a.maxEventTS {
		a.maxEventTS = bucket
		bufSec := int64(a.ReorderBuffer.Seconds())
		if bufSec < 1 {
			bufSec = 1
		}
		a.watermark = a.maxEventTS - bufSec
	}

	if a.watermark > 0 && bucket < a.watermark {
		cb := a.OnLateTick
		a.mu.Unlock()
		if cb != nil {
			cb()
		}
		a.mu.Lock()
		return
	}

	state, exists := a.states[key]

	if exists && bucket < state.bucket {
		// Belated tick for a bucket prior to the current open one but
		// still inside the reorder window: park it under a scratch
		// key so the live bucket is untouched.
		a.states[key+":"+time.Unix(bucket, 0).UTC().Format("15:04")] = &candleState{
			bucket: bucket,
			candle: model.Candle{
				Symbol:     tick.Symbol,
				TF:         1,
				TS:         time.Unix(bucket, 0).UTC(),
				Open:       price,
				High:       price,
				Low:        price,
				Close:      price,
				Volume:     tick.Volume,
				TicksCount: 1,
				Forming:    true,
			},
		}
		return
	}

	if exists && bucket > state.bucket {
		a.emit(state, candleCh)
		delete(a.states, key)
		exists = false
	}

	if !exists {
		a.states[key] = &candleState{
			bucket: bucket,
			candle: model.Candle{
				Symbol:     tick.Symbol,
				TF:         1,
				TS:         time.Unix(bucket, 0).UTC(),
				Open:       price,
				High:       price,
				Low:        price,
				Close:      price,
				Volume:     tick.Volume,
				TicksCount: 1,
				Forming:    true,
			},
		}
		return
	}

	c := &state.candle
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += tick.Volume
	c.TicksCount++
}

// flushOld emits candles for any bucket that is behind the event-time watermark.
func (a *Aggregator) flushOld(candleCh chan<- model.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.watermark == 0 {
		now := time.Now().Unix()
		for key, state := range a.states {
			if state.bucket < now-60 {
				a.emit(state, candleCh)
				delete(a.states, key)
			}
		}
		return
	}

	for key, state := range a.states {
		if state.bucket < a.watermark {
			a.emit(state, candleCh)
			delete(a.states, key)
		}
	}
}

// FlushSession finalizes and emits all in-progress candles. Called on
// feed shutdown so the last candle includes the closing price.
func (a *Aggregator) FlushSession(candleCh chan<- model.Candle) {
	a.flushAll(candleCh)
	log.Println("[agg] session flushed — all forming candles finalized")
}

func (a *Aggregator) flushAll(candleCh chan<- model.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, state := range a.states {
		a.emit(state, candleCh)
		delete(a.states, key)
	}
}

// emit sends a finalized candle to candleCh. Non-blocking to avoid deadlocks.
func (a *Aggregator) emit(state *candleState, candleCh chan<- model.Candle) {
	state.candle.Forming = false
	select {
	case candleCh <- state.candle:
	default:
		if a.OnDroppedTick != nil {
			a.OnDroppedTick()
		}
		log.Printf("[agg] candleCh full, dropping candle %s ts=%v", state.candle.Key(), state.candle.TS)
	}
}
