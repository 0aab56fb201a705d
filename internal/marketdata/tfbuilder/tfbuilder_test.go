package tfbuilder

import (
	"context"
	"testing"
	"time"

	"eliteguard/internal/model"
)

// makeCandle creates a test M1 candle at the given Unix second.
func makeCandle(symbol string, unixSec int64, open, high, low, close_, vol float64) model.Candle {
	return model.Candle{
		Symbol:     symbol,
		TF:         1,
		TS:         time.Unix(unixSec, 0).UTC(),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close_,
		Volume:     vol,
		TicksCount: 1,
	}
}

func TestBuilder_M5_Resampling(t *testing.T) {
	b := New([]int{5}) // M5
	b.StaleTolerance = 0
	outCh := make(chan model.Candle, 5000)

	baseTS := int64(1700000000)
	baseTS = baseTS - (baseTS % 300)

	// Feed 5 M1 candles (minutes 0..4) — all in the same M5 bucket.
	for i := int64(0); i < 5; i++ {
		ts := baseTS + i*60
		b.process(makeCandle("EURUSD", ts, 1.1000+float64(i)*0.0001, 1.1010+float64(i)*0.0001, 1.0990+float64(i)*0.0001, 1.1005+float64(i)*0.0001, 100), outCh)
	}

	for len(outCh) > 0 {
		c := <-outCh
		if !c.Forming {
			t.Fatalf("unexpected finalized candle before bucket close: %+v", c)
		}
	}

	// Trigger new bucket.
	b.process(makeCandle("EURUSD", baseTS+300, 1.1100, 1.1110, 1.1090, 1.1105, 100), outCh)

	var finalized *model.Candle
	for len(outCh) > 0 {
		c := <-outCh
		if !c.Forming {
			finalized = &c
			break
		}
	}

	if finalized == nil {
		t.Fatal("expected a finalized candle after bucket close")
	}
	c := *finalized
	if c.TF != 5 {
		t.Errorf("expected TF=5, got %d", c.TF)
	}
	if c.Symbol != "EURUSD" {
		t.Errorf("expected symbol=EURUSD, got %s", c.Symbol)
	}
	if c.Open != 1.1000 {
		t.Errorf("expected open=1.1000, got %v", c.Open)
	}
	if c.TicksCount != 5 {
		t.Errorf("expected ticks_count=5, got %d", c.TicksCount)
	}
	if c.Volume != 500 {
		t.Errorf("expected volume=500, got %v", c.Volume)
	}
	if c.Forming {
		t.Error("expected forming=false")
	}
}

func TestBuilder_MultipleTFs(t *testing.T) {
	b := New([]int{5, 15}) // M5 and M15
	b.StaleTolerance = 0
	outCh := make(chan model.Candle, 10000)

	baseTS := int64(1700000000)
	baseTS = baseTS - (baseTS % 900) // align to M15 boundary

	// Feed 15 M1 candles.
	for i := int64(0); i < 15; i++ {
		b.process(makeCandle("GBPUSD", baseTS+i*60, 1.2500, 1.2600, 1.2400, 1.2550, 10), outCh)
	}

	// Trigger new bucket for both TFs.
	b.process(makeCandle("GBPUSD", baseTS+900, 1.2600, 1.2700, 1.2500, 1.2650, 10), outCh)

	var candlesM5, candlesM15 []model.Candle
	for len(outCh) > 0 {
		c := <-outCh
		if c.Forming {
			continue
		}
		if c.TF == 5 {
			candlesM5 = append(candlesM5, c)
		} else if c.TF == 15 {
			candlesM15 = append(candlesM15, c)
		}
	}

	if len(candlesM5) != 3 {
		t.Errorf("expected 3 finalized M5 candles, got %d", len(candlesM5))
	}
	if len(candlesM15) != 1 {
		t.Errorf("expected 1 finalized M15 candle, got %d", len(candlesM15))
	}

	if len(candlesM15) > 0 {
		c := candlesM15[0]
		if c.TicksCount != 15 {
			t.Errorf("M15 candle ticks: expected 15, got %d", c.TicksCount)
		}
		if c.Volume != 150 {
			t.Errorf("M15 candle volume: expected 150, got %v", c.Volume)
		}
	}
}

func TestBuilder_MultiSymbol(t *testing.T) {
	b := New([]int{5})
	b.StaleTolerance = 0
	outCh := make(chan model.Candle, 5000)

	baseTS := int64(1700000000)
	baseTS = baseTS - (baseTS % 300)

	for i := int64(0); i < 5; i++ {
		b.process(makeCandle("EURUSD", baseTS+i*60, 1.10, 1.11, 1.09, 1.105, 1), outCh)
		b.process(makeCandle("USDJPY", baseTS+i*60, 150.0, 151.0, 149.0, 150.5, 2), outCh)
	}

	b.process(makeCandle("EURUSD", baseTS+300, 1.10, 1.11, 1.09, 1.105, 1), outCh)
	b.process(makeCandle("USDJPY", baseTS+300, 150.0, 151.0, 149.0, 150.5, 2), outCh)

	symbols := map[string]bool{}
	for len(outCh) > 0 {
		c := <-outCh
		if !c.Forming {
			symbols[c.Symbol] = true
		}
	}

	if !symbols["EURUSD"] || !symbols["USDJPY"] {
		t.Errorf("expected candles for both EURUSD and USDJPY, got %v", symbols)
	}
}

func TestBuilder_Run(t *testing.T) {
	b := New([]int{5})
	b.StaleTolerance = 0
	candleCh := make(chan model.Candle, 200)
	outCh := make(chan model.Candle, 5000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, candleCh, outCh)
		close(done)
	}()

	baseTS := int64(1700000000)
	baseTS = baseTS - (baseTS % 300)

	for i := int64(0); i <= 5; i++ {
		candleCh <- makeCandle("EURUSD", baseTS+i*60, 1.10, 1.11, 1.09, 1.105, 1)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	count := 0
	for {
		select {
		case <-outCh:
			count++
		default:
			goto drained
		}
	}
drained:

	if count < 1 {
		t.Errorf("expected at least 1 finalized TF candle, got %d", count)
	}
}

func TestBuilder_PartialBucket_NoFinalize(t *testing.T) {
	b := New([]int{5})
	b.StaleTolerance = 0
	outCh := make(chan model.Candle, 5000)

	baseTS := int64(1700000000)
	baseTS = baseTS - (baseTS % 300)

	// Only 3 M1 candles, no bucket close.
	for i := int64(0); i < 3; i++ {
		b.process(makeCandle("EURUSD", baseTS+i*60, 1.10, 1.11, 1.09, 1.105, 1), outCh)
	}

	for {
		select {
		case c := <-outCh:
			if !c.Forming {
				t.Fatalf("unexpected finalized candle from partial bucket: %+v", c)
			}
		default:
			return
		}
	}
}
