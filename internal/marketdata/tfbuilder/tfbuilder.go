// Package tfbuilder provides an incremental timeframe resampler.
// It consumes finalized M1 candles and maintains "forming" higher-TF
// candle states that are updated in O(1) per candle per TF (each higher
// TF is resampled directly from M1, not cascaded through the next-lower
// TF). When a TF bucket closes (a candle
// arrives in a new bucket), the previous TF candle is finalized and
// emitted.
package tfbuilder

import (
	"context"
	"log"
	"time"

	"eliteguard/internal/model"
)

// tfState holds the forming candle state for one (symbol, TF) pair.
type tfState struct {
	bucket  int64 // bucket start, Unix seconds
	candle  model.Candle
	started bool
}

// Builder resamples M1 candles into multiple higher timeframes (in
// whole minutes, e.g. 5, 15). Designed to run in a single goroutine
// (single consumer) driven off the candle builder's output.
type Builder struct {
	tfs []int // enabled TF durations in minutes

	// Per-TF per-symbol state.
	states []map[string]*tfState

	// Staleness validation: reject candles older than bucket_start -
	// tolerance. Default: 2 minutes. Set to 0 to disable.
	StaleTolerance time.Duration

	OnTFCandle    func(c model.Candle)
	OnStaleCandle func()
}

// New creates a TF builder with the given timeframes, in minutes.
func New(tfs []int) *Builder {
	states := make([]map[string]*tfState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*tfState, 64)
	}
	return &Builder{
		tfs:            tfs,
		states:         states,
		StaleTolerance: 2 * time.Minute,
	}
}

// UpdateTFs dynamically updates the enabled timeframes. Existing
// forming candles for removed TFs are finalized and emitted.
func (b *Builder) UpdateTFs(newTFs []int, outCh chan<- model.Candle) {
	newSet := make(map[int]bool, len(newTFs))
	for _, tf := range newTFs {
		newSet[tf] = true
	}

	for i, tf := range b.tfs {
		if !newSet[tf] {
			for _, st := range b.states[i] {
				if st.started {
					st.candle.Forming = false
					emit(outCh, st.candle)
				}
			}
		}
	}

	oldStates := make(map[int]map[string]*tfState, len(b.tfs))
	for i, tf := range b.tfs {
		oldStates[tf] = b.states[i]
	}

	b.tfs = newTFs
	b.states = make([]map[string]*tfState, len(newTFs))
	for i, tf := range newTFs {
		if old, ok := oldStates[tf]; ok {
			b.states[i] = old
		} else {
			b.states[i] = make(map[string]*tfState, 64)
		}
	}
}

// Run consumes M1 candles from candleCh, resamples them into higher
// TF candles, and sends finalized ones to outCh. Blocks until ctx is
// cancelled.
func (b *Builder) Run(ctx context.Context, candleCh <-chan model.Candle, outCh chan<- model.Candle) {
	for {
		select {
		case <-ctx.Done():
			b.flushAll(outCh)
			return
		case c, ok := <-candleCh:
			if !ok {
				b.flushAll(outCh)
				return
			}
			b.process(c, outCh)
		}
	}
}

// Run1 processes a single M1 candle against all TFs (hot path),
// avoiding channel overhead when called inline from the pipeline.
func (b *Builder) Run1(c model.Candle, outCh chan<- model.Candle) {
	b.process(c, outCh)
}

// process handles a single M1 candle against all enabled TFs. O(1)
// per TF.
func (b *Builder) process(c model.Candle, outCh chan<- model.Candle) {
	ts := c.TS.Unix()
	key := c.Symbol

	for i, tf := range b.tfs {
		tfSec := int64(tf) * 60
		bucket := ts - (ts % tfSec)

		st, exists := b.states[i][key]

		if b.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Second
			if lag > b.StaleTolerance {
				if b.OnStaleCandle != nil {
					b.OnStaleCandle()
				}
				continue
			}
		}

		if exists && bucket > st.bucket {
			st.candle.Forming = false
			emit(outCh, st.candle)
			if b.OnTFCandle != nil {
				b.OnTFCandle(st.candle)
			}
			exists = false
		}

		if !exists {
			newState := &tfState{
				bucket:  bucket,
				started: true,
				candle: model.Candle{
					Symbol:     c.Symbol,
					TF:         tf,
					TS:         time.Unix(bucket, 0).UTC(),
					Open:       c.Open,
					High:       c.High,
					Low:        c.Low,
					Close:      c.Close,
					Volume:     c.Volume,
					TicksCount: 1,
					Forming:    true,
				},
			}
			b.states[i][key] = newState
			snap := newState.candle
			emit(outCh, snap)
			continue
		}

		fc := &st.candle
		if c.High > fc.High {
			fc.High = c.High
		}
		if c.Low < fc.Low {
			fc.Low = c.Low
		}
		fc.Close = c.Close
		fc.Volume += c.Volume
		fc.TicksCount++

		snap := *fc
		emit(outCh, snap)
	}
}

// flushAll finalizes and emits all forming candles.
func (b *Builder) flushAll(outCh chan<- model.Candle) {
	for i := range b.tfs {
		for key, st := range b.states[i] {
			if st.started {
				st.candle.Forming = false
				emit(outCh, st.candle)
			}
			delete(b.states[i], key)
		}
	}
}

func emit(outCh chan<- model.Candle, c model.Candle) {
	select {
	case outCh <- c:
	default:
		log.Printf("[tfbuilder] outCh full, dropping TF candle %s tf=%d ts=%v", c.Key(), c.TF, c.TS)
	}
}

// TFs returns the current list of enabled timeframes, in minutes.
func (b *Builder) TFs() []int {
	return b.tfs
}
