package bus

import (
	"context"
	"testing"
	"time"

	"eliteguard/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Candle, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)

	candle := model.Candle{
		Symbol: "EURUSD",
		TF:     1,
		Open:   1.1000,
		High:   1.1010,
		Low:    1.0990,
		Close:  1.1005,
	}

	input <- candle
	time.Sleep(50 * time.Millisecond)

	select {
	case c := <-out1:
		if c.Symbol != "EURUSD" {
			t.Errorf("out1: expected symbol EURUSD, got %s", c.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for candle")
	}

	select {
	case c := <-out2:
		if c.Symbol != "EURUSD" {
			t.Errorf("out2: expected symbol EURUSD, got %s", c.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for candle")
	}

	cancel()
}
