package agg

import (
	"context"
	"testing"
	"time"

	"eliteguard/internal/model"
)

func mkTick(symbol string, bid, ask, vol float64, ts time.Time) model.Tick {
	return model.Tick{Symbol: symbol, Bid: bid, Ask: ask, Volume: vol, TickTS: ts}
}

func drainCandles(candleCh chan model.Candle) []model.Candle {
	var candles []model.Candle
	for {
		select {
		case c := <-candleCh:
			candles = append(candles, c)
		default:
			return candles
		}
	}
}

func TestAggregator_BasicCandle(t *testing.T) {
	agg := New()
	tickCh := make(chan model.Tick, 100)
	candleCh := make(chan model.Candle, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, candleCh)
		close(done)
	}()

	minute := time.Now().UTC().Truncate(time.Minute)

	// Three ticks in the same minute bucket
	tickCh <- mkTick("EURUSD", 1.1000, 1.1002, 1_000_000, minute)
	tickCh <- mkTick("EURUSD", 1.1005, 1.1007, 2_000_000, minute.Add(20*time.Second))
	tickCh <- mkTick("EURUSD", 1.0998, 1.1000, 500_000, minute.Add(40*time.Second))

	// Tick in the next minute triggers flush of the previous bucket
	tickCh <- mkTick("EURUSD", 1.1010, 1.1012, 1_000_000, minute.Add(time.Minute))

	time.Sleep(400 * time.Millisecond)
	cancel()
	<-done

	candles := drainCandles(candleCh)
	if len(candles) < 1 {
		t.Fatalf("expected at least 1 candle, got %d", len(candles))
	}

	c := candles[0]
	if c.Open != 1.1001 {
		t.Errorf("expected open=1.1001, got %v", c.Open)
	}
	if c.High != 1.1006 {
		t.Errorf("expected high=1.1006, got %v", c.High)
	}
	if c.Low != 1.0999 {
		t.Errorf("expected low=1.0999, got %v", c.Low)
	}
	if c.TicksCount != 3 {
		t.Errorf("expected ticks_count=3, got %d", c.TicksCount)
	}
	if c.Volume != 3_500_000 {
		t.Errorf("expected volume=3500000, got %v", c.Volume)
	}
}

func TestAggregator_MultipleSymbols(t *testing.T) {
	agg := New()
	tickCh := make(chan model.Tick, 100)
	candleCh := make(chan model.Candle, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, candleCh)
		close(done)
	}()

	minute := time.Now().UTC().Truncate(time.Minute)

	tickCh <- mkTick("EURUSD", 1.1000, 1.1002, 1, minute)
	tickCh <- mkTick("GBPUSD", 1.2500, 1.2503, 1, minute)

	tickCh <- mkTick("EURUSD", 1.1010, 1.1012, 1, minute.Add(time.Minute))
	tickCh <- mkTick("GBPUSD", 1.2510, 1.2513, 1, minute.Add(time.Minute))

	time.Sleep(400 * time.Millisecond)
	cancel()
	<-done

	count := len(drainCandles(candleCh))
	if count < 2 {
		t.Errorf("expected at least 2 candles, got %d", count)
	}
}

func TestAggregator_LateTick(t *testing.T) {
	agg := New()
	dropCh := make(chan struct{}, 10)
	agg.OnDroppedTick = func() { dropCh <- struct{}{} }

	tickCh := make(chan model.Tick, 100)
	candleCh := make(chan model.Candle, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, candleCh)
		close(done)
	}()

	minute := time.Now().UTC().Truncate(time.Minute)

	tickCh <- mkTick("EURUSD", 1.1000, 1.1002, 1, minute)
	tickCh <- mkTick("EURUSD", 1.0990, 1.0992, 1, minute.Add(-time.Minute))

	time.Sleep(300 * time.Millisecond)
	cancel()
	<-done

	t.Logf("aggregator handled a stale-minute tick without panicking")
}

func TestAggregator_ReorderBuffer(t *testing.T) {
	agg := New()
	agg.ReorderBuffer = 2 * time.Second

	tickCh := make(chan model.Tick, 100)
	candleCh := make(chan model.Candle, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, candleCh)
		close(done)
	}()

	base := time.Now().UTC().Truncate(time.Minute)

	// Out-of-order arrivals within the same minute bucket.
	tickCh <- mkTick("EURUSD", 1.1005, 1.1007, 5, base.Add(30*time.Second))
	tickCh <- mkTick("EURUSD", 1.1000, 1.1002, 10, base.Add(10*time.Second))
	tickCh <- mkTick("EURUSD", 1.0998, 1.1000, 3, base.Add(20*time.Second))

	// Advance the watermark past the base bucket.
	tickCh <- mkTick("EURUSD", 1.1010, 1.1012, 1, base.Add(3*time.Minute))

	time.Sleep(400 * time.Millisecond)
	cancel()
	<-done

	candles := drainCandles(candleCh)
	var baseCandle *model.Candle
	for i := range candles {
		if candles[i].TS.Unix() == base.Unix() {
			baseCandle = &candles[i]
			break
		}
	}
	if baseCandle == nil {
		t.Fatalf("did not find candle for base bucket ts=%v, got %d candles", base, len(candles))
	}

	if baseCandle.TicksCount != 3 {
		t.Errorf("expected ticks_count=3 (all out-of-order ticks merged), got %d", baseCandle.TicksCount)
	}
	if baseCandle.Volume != 18 {
		t.Errorf("expected volume=18 (5+10+3), got %v", baseCandle.Volume)
	}
}

func TestAggregator_WatermarkLateDrop(t *testing.T) {
	agg := New()
	agg.ReorderBuffer = 1 * time.Second

	lateCh := make(chan struct{}, 10)
	agg.OnLateTick = func() { lateCh <- struct{}{} }

	tickCh := make(chan model.Tick, 100)
	candleCh := make(chan model.Candle, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, candleCh)
		close(done)
	}()

	base := time.Now().UTC().Truncate(time.Minute)

	// Advance watermark far ahead.
	tickCh <- mkTick("EURUSD", 1.1000, 1.1002, 1, base.Add(5*time.Minute))
	time.Sleep(50 * time.Millisecond)

	// Now a tick for the long-finalized base bucket should be dropped.
	tickCh <- mkTick("EURUSD", 1.0900, 1.0902, 1, base)

	time.Sleep(300 * time.Millisecond)
	cancel()
	<-done

	close(lateCh)
	lateCalls := 0
	for range lateCh {
		lateCalls++
	}
	if lateCalls != 1 {
		t.Errorf("expected 1 late tick callback, got %d", lateCalls)
	}
}

func TestAggregator_EventTS(t *testing.T) {
	agg := New()
	agg.ReorderBuffer = 2 * time.Second

	tickCh := make(chan model.Tick, 100)
	candleCh := make(chan model.Candle, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, candleCh)
		close(done)
	}()

	arrival := time.Now().UTC().Truncate(time.Minute)
	event := arrival.Add(-2 * time.Minute)

	tickCh <- model.Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002, Volume: 1, TickTS: arrival, EventTS: event}
	tickCh <- mkTick("EURUSD", 1.1010, 1.1012, 1, arrival.Add(3*time.Minute))

	time.Sleep(400 * time.Millisecond)
	cancel()
	<-done

	candles := drainCandles(candleCh)
	found := false
	for _, c := range candles {
		if c.TS.Unix() == event.Unix() {
			found = true
		}
	}
	if !found {
		t.Errorf("expected candle bucketed at EventTS=%v, not found in %d candles", event, len(candles))
	}
}
