package pattern

import "eliteguard/internal/model"

// MicroBreakoutRetest detects a break of the prior 10-bar high/low
// followed by a retest back within a few pips of the broken level, per
// spec §4.C. Feature-flagged upstream.
type MicroBreakoutRetest struct{}

func (MicroBreakoutRetest) Name() model.PatternKind { return model.PatternMicroBreakoutRetest }

func (d MicroBreakoutRetest) Detect(r Rings) *model.PatternSignal {
	if len(r.M1) < 15 {
		return nil
	}
	window := tail(r.M1, 15)

	for i := 10; i < len(window); i++ {
		prior := window[i-10 : i]
		priorHigh := highOf(prior)
		priorLow := lowOf(prior)
		brk := window[i]

		var dir model.Direction
		var level float64
		switch {
		case brk.Close > priorHigh:
			dir = model.Buy
			level = priorHigh
		case brk.Close < priorLow:
			dir = model.Sell
			level = priorLow
		default:
			continue
		}

		last := window[len(window)-1]
		if r.Spec.PriceToPips(last.Close, level) > 3 {
			continue
		}

		last2 := tail(window, 2)
		biasOK := false
		if len(last2) == 2 {
			if dir == model.Buy && last2[1].Close > last2[0].Close {
				biasOK = true
			}
			if dir == model.Sell && last2[1].Close < last2[0].Close {
				biasOK = true
			}
		}
		if !biasOK {
			continue
		}

		conf := jitter(model.BaseScore[model.PatternMicroBreakoutRetest], 0.03)
		entry := last.Close
		var sl, tp float64
		if dir == model.Buy {
			sl = r.Spec.PricePlusPips(entry, model.Sell, 3)
			tp = r.Spec.PricePlusPips(entry, model.Buy, 4.5)
		} else {
			sl = r.Spec.PricePlusPips(entry, model.Buy, 3)
			tp = r.Spec.PricePlusPips(entry, model.Sell, 4.5)
		}

		return &model.PatternSignal{
			PatternID:      model.PatternMicroBreakoutRetest,
			Direction:      dir,
			EntryPrice:     entry,
			BaseConfidence: conf,
			Timeframe:      1,
			CalculatedSL:   &sl,
			CalculatedTP:   &tp,
			SLPips:         r.Spec.PriceToPips(entry, sl),
			TPPips:         r.Spec.PriceToPips(entry, tp),
			PatternMetadata: map[string]any{
				"broken_level": level,
			},
		}
	}
	return nil
}
