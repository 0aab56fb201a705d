package scoring

import (
	"testing"
	"time"

	"eliteguard/internal/model"
	"eliteguard/internal/pattern"
)

func spec() model.SymbolSpec {
	return model.SymbolSpec{
		Symbol:           "EURUSD",
		PipSize:          0.0001,
		MinStopPips:      5,
		Decimals:         5,
		PairQualityBonus: 20,
	}
}

func trendingCandles(n int, start, step float64) []model.Candle {
	out := make([]model.Candle, n)
	p := start
	for i := 0; i < n; i++ {
		out[i] = model.Candle{
			Symbol: "EURUSD",
			TF:     1,
			TS:     time.Unix(int64(i)*60, 0).UTC(),
			Open:   p, High: p + 0.0003, Low: p - 0.0001, Close: p + 0.0002,
			Volume: 1500,
		}
		p += step
	}
	return out
}

func TestScorer_PromotesStrongCandidate(t *testing.T) {
	m1 := trendingCandles(25, 1.1000, 0.0003)
	m5 := trendingCandles(15, 1.1000, 0.0015)
	m15 := trendingCandles(22, 1.1000, 0.0045)

	r := pattern.Rings{Symbol: "EURUSD", Spec: spec(), Session: model.SessionOverlap, M1: m1, M5: m5, M15: m15}
	cand := &model.PatternSignal{
		PatternID:      model.PatternLiquiditySweepReversal,
		Direction:      model.Buy,
		EntryPrice:     m1[len(m1)-1].Close,
		BaseConfidence: 80,
	}

	payouts, err := LoadPayoutTable("/nonexistent/payouts.yaml")
	if err != nil {
		t.Fatalf("unexpected error loading default payout table: %v", err)
	}
	scorer := NewScorer(DefaultConfig(), payouts, nil, nil)

	sig, err := scorer.Score(cand, r, time.Now())
	if err != nil {
		t.Fatalf("expected candidate to be promoted, got rejection: %v", err)
	}
	if sig.Pair != "EURUSD" {
		t.Errorf("expected pair EURUSD, got %s", sig.Pair)
	}
	if !sig.ValidateSides() {
		t.Errorf("expected valid BUY sides, got entry=%v sl=%v tp=%v", sig.EntryPrice, sig.StopLoss, sig.TakeProfit)
	}
}

func TestScorer_RejectsBelowGroupThreshold(t *testing.T) {
	m1 := trendingCandles(10, 1.1000, 0.00001)
	r := pattern.Rings{Symbol: "EURUSD", Spec: spec(), Session: model.SessionLondon, M1: m1}
	cand := &model.PatternSignal{
		PatternID:      model.PatternMomentumBurst,
		Direction:      model.Buy,
		EntryPrice:     1.1000,
		BaseConfidence: 50,
	}
	payouts, _ := LoadPayoutTable("/nonexistent/payouts.yaml")
	scorer := NewScorer(DefaultConfig(), payouts, nil, nil)

	if _, err := scorer.Score(cand, r, time.Now()); err == nil {
		t.Fatal("expected rejection below the group threshold")
	}
}

func TestScorer_CooldownRejectsSecondSignalSameSymbol(t *testing.T) {
	m1 := trendingCandles(25, 1.1000, 0.0003)
	m5 := trendingCandles(15, 1.1000, 0.0015)
	r := pattern.Rings{Symbol: "EURUSD", Spec: spec(), Session: model.SessionOverlap, M1: m1, M5: m5}
	mk := func() *model.PatternSignal {
		return &model.PatternSignal{
			PatternID:      model.PatternLiquiditySweepReversal,
			Direction:      model.Buy,
			EntryPrice:     m1[len(m1)-1].Close,
			BaseConfidence: 85,
		}
	}
	payouts, _ := LoadPayoutTable("/nonexistent/payouts.yaml")
	scorer := NewScorer(DefaultConfig(), payouts, nil, nil)

	now := time.Now()
	if _, err := scorer.Score(mk(), r, now); err != nil {
		t.Fatalf("expected first signal to pass, got %v", err)
	}
	if _, err := scorer.Score(mk(), r, now.Add(time.Minute)); err == nil {
		t.Fatal("expected second signal within cooldown to be rejected")
	}
}

func TestIsChoppy(t *testing.T) {
	flat := make([]model.Candle, 20)
	for i := range flat {
		flat[i] = model.Candle{High: 1.1001, Low: 1.0999, Close: 1.1000}
	}
	if !isChoppy(flat, 0.1) {
		t.Error("expected a flat range to be classified as choppy")
	}

	trending := trendingCandles(20, 1.1000, 0.001)
	if isChoppy(trending, 0.1) {
		t.Error("expected a strongly trending range not to be classified as choppy")
	}
}
