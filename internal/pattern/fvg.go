package pattern

import "eliteguard/internal/model"

// FairValueGapFill detects an unfilled 3-bar imbalance on M5 and a
// current price sitting near its midpoint, per spec §4.C.
type FairValueGapFill struct{}

func (FairValueGapFill) Name() model.PatternKind { return model.PatternFairValueGapFill }

func (d FairValueGapFill) Detect(r Rings) *model.PatternSignal {
	if len(r.M5) < 10 {
		return nil
	}
	window := tail(r.M5, 10)

	const gapPipThreshold = 4.0
	var gapLow, gapHigh float64
	found := false

	for i := 2; i < len(window); i++ {
		prev := window[i-1]
		cur := window[i]
		gapPips := r.Spec.PriceToPips(cur.Low, prev.High)
		if cur.Low > prev.High && gapPips > gapPipThreshold {
			gapLow = prev.High
			gapHigh = cur.Low
			found = true
		}
	}
	if !found {
		return nil
	}

	mid := (gapLow + gapHigh) / 2
	latest := window[len(window)-1]
	price := latest.Close
	if r.Spec.PriceToPips(price, mid) > 3 {
		return nil
	}

	var dir model.Direction
	if price < mid {
		dir = model.Buy
	} else {
		dir = model.Sell
	}

	gapSize := r.Spec.PriceToPips(gapLow, gapHigh)
	proximity := clamp(3-r.Spec.PriceToPips(price, mid), 0, 3) / 3 * 15
	sizeScore := clamp(gapSize/10*15, 0, 15)

	conf := jitter(model.BaseScore[model.PatternFairValueGapFill]+sizeScore+proximity+sessionTier(r.Session)*0.5, 0.03)

	var sl, tp float64
	if dir == model.Buy {
		sl = r.Spec.PricePlusPips(gapLow, model.Sell, r.Spec.MinStopPips)
		tp = gapHigh + (gapHigh - gapLow)
	} else {
		sl = r.Spec.PricePlusPips(gapHigh, model.Buy, r.Spec.MinStopPips)
		tp = gapLow - (gapHigh - gapLow)
	}

	return &model.PatternSignal{
		PatternID:      model.PatternFairValueGapFill,
		Direction:      dir,
		EntryPrice:     price,
		BaseConfidence: conf,
		Timeframe:      5,
		CalculatedSL:   &sl,
		CalculatedTP:   &tp,
		SLPips:         r.Spec.PriceToPips(price, sl),
		TPPips:         r.Spec.PriceToPips(price, tp),
		PatternMetadata: map[string]any{
			"gap_low":  gapLow,
			"gap_high": gapHigh,
		},
	}
}
