package pattern

import "eliteguard/internal/model"

// MomentumBurst detects a short run of same-direction M1 closes with a
// minimum cumulative move, per spec §4.C. Feature-flagged upstream; the
// detector itself carries no flag state.
type MomentumBurst struct{}

func (MomentumBurst) Name() model.PatternKind { return model.PatternMomentumBurst }

func (d MomentumBurst) Detect(r Rings) *model.PatternSignal {
	if len(r.M1) < 5 {
		return nil
	}
	window := tail(r.M1, 5)
	last3 := tail(window, 3)

	up := true
	down := true
	for i := 1; i < len(last3); i++ {
		if last3[i].Close <= last3[i-1].Close {
			up = false
		}
		if last3[i].Close >= last3[i-1].Close {
			down = false
		}
	}
	if !up && !down {
		return nil
	}

	var dir model.Direction
	if up {
		dir = model.Buy
	} else {
		dir = model.Sell
	}

	first := last3[0]
	latest := last3[len(last3)-1]
	move := r.Spec.PriceToPips(first.Close, latest.Close)
	if move < 3 {
		return nil
	}

	conf := model.BaseScore[model.PatternMomentumBurst]
	if move >= 5 {
		conf += 5
	}
	if move >= 8 {
		conf += 5
	}
	if meanVolume(window) > 0 && latest.Volume > 1.25*meanVolume(window) {
		conf += 5
	}
	conf = jitter(conf, 0.03)

	entry := latest.Close
	var sl, tp float64
	if dir == model.Buy {
		sl = r.Spec.PricePlusPips(entry, model.Sell, r.Spec.MinStopPips)
		tp = r.Spec.PricePlusPips(entry, model.Buy, move*0.8)
	} else {
		sl = r.Spec.PricePlusPips(entry, model.Buy, r.Spec.MinStopPips)
		tp = r.Spec.PricePlusPips(entry, model.Sell, move*0.8)
	}

	return &model.PatternSignal{
		PatternID:      model.PatternMomentumBurst,
		Direction:      dir,
		EntryPrice:     entry,
		BaseConfidence: conf,
		Timeframe:      1,
		CalculatedSL:   &sl,
		CalculatedTP:   &tp,
		SLPips:         r.Spec.PriceToPips(entry, sl),
		TPPips:         r.Spec.PriceToPips(entry, tp),
		PatternMetadata: map[string]any{
			"move_pips": move,
		},
	}
}
