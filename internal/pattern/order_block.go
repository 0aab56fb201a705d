package pattern

import "eliteguard/internal/model"

// OrderBlockBounce detects price retesting the edge of a recent M5
// trading range and bouncing, per spec §4.C.
type OrderBlockBounce struct{}

func (OrderBlockBounce) Name() model.PatternKind { return model.PatternOrderBlockBounce }

func (d OrderBlockBounce) Detect(r Rings) *model.PatternSignal {
	if len(r.M5) < 10 {
		return nil
	}
	window := tail(r.M5, 10)
	high5 := highOf(window)
	low5 := lowOf(window)
	rng := high5 - low5
	if rng <= 0 {
		return nil
	}

	latest := window[len(window)-1]
	price := latest.Close

	var dir model.Direction
	var level float64
	switch {
	case price <= low5+0.25*rng:
		dir = model.Buy
		level = low5
	case price >= high5-0.25*rng:
		dir = model.Sell
		level = high5
	default:
		return nil
	}

	proximity := 1 - clamp(absF(price-level)/rng, 0, 1)
	rangePips := r.Spec.PriceToPips(high5, low5)
	rangeScore := clamp(rangePips/50*20, 0, 20)

	touches := 0
	for _, c := range window {
		if c.Close >= level-0.1*rng && c.Close <= level+0.1*rng {
			touches++
		}
	}
	touchScore := clamp(float64(touches)*3, 0, 15)

	conf := jitter(model.BaseScore[model.PatternOrderBlockBounce]-10+proximity*20+rangeScore*0.5+touchScore+sessionTier(r.Session)*0.3, 0.03)

	entry := price
	var sl, tp float64
	if dir == model.Buy {
		sl = r.Spec.PricePlusPips(level, model.Sell, r.Spec.MinStopPips)
		tp = entry + 0.5*rng
	} else {
		sl = r.Spec.PricePlusPips(level, model.Buy, r.Spec.MinStopPips)
		tp = entry - 0.5*rng
	}

	return &model.PatternSignal{
		PatternID:      model.PatternOrderBlockBounce,
		Direction:      dir,
		EntryPrice:     entry,
		BaseConfidence: conf,
		Timeframe:      5,
		CalculatedSL:   &sl,
		CalculatedTP:   &tp,
		SLPips:         r.Spec.PriceToPips(entry, sl),
		TPPips:         r.Spec.PriceToPips(entry, tp),
		PatternMetadata: map[string]any{
			"level":   level,
			"touches": touches,
		},
	}
}
