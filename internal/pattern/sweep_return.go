package pattern

import "eliteguard/internal/model"

// SweepAndReturn ("SRL") detects a bar that pierces a prior swing
// high/low and closes back inside with a large rejection wick, per
// spec §4.C. Aliased as SWEEP_RETURN in some operator tooling.
type SweepAndReturn struct{}

func (SweepAndReturn) Name() model.PatternKind { return model.PatternSweepAndReturn }

const sweepReturnLookback = 10

func (d SweepAndReturn) Detect(r Rings) *model.PatternSignal {
	if len(r.M5) < 12 {
		return nil
	}
	window := tail(r.M5, sweepReturnLookback+2)
	prior := window[:len(window)-1]
	if len(prior) < sweepReturnLookback {
		return nil
	}
	prior = tail(prior, sweepReturnLookback)
	bar := window[len(window)-1]

	swingHigh := highOf(prior)
	swingLow := lowOf(prior)
	barRange := bar.High - bar.Low
	if barRange <= 0 {
		return nil
	}

	var dir model.Direction
	var sweepDist float64
	var wickFrac float64

	switch {
	case bar.High > swingHigh && bar.Close < swingHigh:
		// Pierced resistance, closed back inside: fade down.
		dir = model.Sell
		sweepDist = r.Spec.PriceToPips(bar.High, swingHigh)
		wickFrac = (bar.High - maxF(bar.Open, bar.Close)) / barRange
	case bar.Low < swingLow && bar.Close > swingLow:
		// Pierced support, closed back inside: fade up.
		dir = model.Buy
		sweepDist = r.Spec.PriceToPips(bar.Low, swingLow)
		wickFrac = (minF(bar.Open, bar.Close) - bar.Low) / barRange
	default:
		return nil
	}

	if wickFrac < 0.6 {
		return nil
	}

	sweepScore := clamp(sweepDist/15*30, 0, 30)
	wickScore := clamp((wickFrac-0.6)/0.4*30, 0, 30)
	rejectionScore := clamp(barRangePosition(bar)*20, 0, 20)
	if dir == model.Sell {
		rejectionScore = clamp((1-barRangePosition(bar))*20, 0, 20)
	}

	conf := jitter(sweepScore+wickScore+rejectionScore+sessionTier(r.Session)*0.5, 0.03)

	entry := bar.Close
	var sl, tp float64
	if dir == model.Sell {
		sl = r.Spec.PricePlusPips(bar.High, model.Buy, r.Spec.MinStopPips)
		tp = entry - (swingHigh - swingLow)
	} else {
		sl = r.Spec.PricePlusPips(bar.Low, model.Sell, r.Spec.MinStopPips)
		tp = entry + (swingHigh - swingLow)
	}

	return &model.PatternSignal{
		PatternID:      model.PatternSweepAndReturn,
		Direction:      dir,
		EntryPrice:     entry,
		BaseConfidence: conf,
		Timeframe:      5,
		CalculatedSL:   &sl,
		CalculatedTP:   &tp,
		SLPips:         r.Spec.PriceToPips(entry, sl),
		TPPips:         r.Spec.PriceToPips(entry, tp),
		PatternMetadata: map[string]any{
			"sweep_distance_pips": sweepDist,
			"wick_fraction":       wickFrac,
		},
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
