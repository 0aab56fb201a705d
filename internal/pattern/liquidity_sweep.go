package pattern

import "eliteguard/internal/model"

// LiquiditySweepReversal detects a sharp move that sweeps a recent
// high/low and reverses, per spec §4.C.
type LiquiditySweepReversal struct{}

func (LiquiditySweepReversal) Name() model.PatternKind { return model.PatternLiquiditySweepReversal }

func (d LiquiditySweepReversal) Detect(r Rings) *model.PatternSignal {
	if len(r.M1) < 3 {
		return nil
	}
	window := tail(r.M1, 20)
	last5 := tail(window, 5)
	if len(last5) < 2 {
		return nil
	}

	recentHigh := highOf(last5)
	recentLow := lowOf(last5)
	pipMovement := r.Spec.PriceToPips(recentHigh, recentLow)
	if pipMovement < 15 {
		return nil
	}

	vol10 := tail(window, 10)
	meanVol := meanVolume(vol10)
	if meanVol <= 0 {
		return nil
	}
	recentVolume := sumVolume(last5)
	volumeSurge := recentVolume / meanVol
	if volumeSurge < 1.5 {
		return nil
	}

	latest := window[len(window)-1]
	var prev3 model.Candle
	if len(window) >= 4 {
		prev3 = window[len(window)-4]
	} else {
		prev3 = window[0]
	}

	var dir model.Direction
	switch {
	case latest.Close >= recentHigh || latest.Close > prev3.Close:
		dir = model.Sell
	case latest.Close <= recentLow || latest.Close < prev3.Close:
		dir = model.Buy
	default:
		return nil
	}

	movementScore := clamp(pipMovement/30*40, 0, 40)
	surgeScore := clamp((volumeSurge-1.0)/1.5*30, 0, 30)
	sess := sessionTier(r.Session)

	trendUp := latest.Close > window[0].Close
	trendScore := 0.0
	if (dir == model.Buy && trendUp) || (dir == model.Sell && !trendUp) {
		trendScore = 10
	}

	conf := jitter(movementScore+surgeScore+sess+trendScore, 0.03)

	rng := recentHigh - recentLow
	entry := latest.Close
	var sl, tp float64
	if dir == model.Sell {
		sl = r.Spec.PricePlusPips(recentHigh, model.Buy, 5) // 5 pips above swept high
		tp = entry - 0.6*rng
	} else {
		sl = r.Spec.PricePlusPips(recentLow, model.Sell, 5) // 5 pips below swept low
		tp = entry + 0.6*rng
	}

	return &model.PatternSignal{
		PatternID:      model.PatternLiquiditySweepReversal,
		Direction:      dir,
		EntryPrice:     entry,
		BaseConfidence: conf,
		Timeframe:      1,
		TFAlignment:    0,
		CalculatedSL:   &sl,
		CalculatedTP:   &tp,
		SLPips:         r.Spec.PriceToPips(entry, sl),
		TPPips:         r.Spec.PriceToPips(entry, tp),
		PatternMetadata: map[string]any{
			"pip_movement": pipMovement,
			"volume_surge": volumeSurge,
		},
	}
}
