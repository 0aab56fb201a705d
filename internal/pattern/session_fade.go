package pattern

import "eliteguard/internal/model"

// SessionOpenFade fades the initial session-open move back toward its
// 50% retracement in the first few minutes of LONDON/NY, per spec
// §4.C. Feature-flagged upstream.
type SessionOpenFade struct {
	OpenWindowMinutes int
}

func NewSessionOpenFade() *SessionOpenFade {
	return &SessionOpenFade{OpenWindowMinutes: 5}
}

func (SessionOpenFade) Name() model.PatternKind { return model.PatternSessionOpenFade }

func (d *SessionOpenFade) Detect(r Rings) *model.PatternSignal {
	if len(r.M1) < 10 {
		return nil
	}
	latest := r.M1[len(r.M1)-1]
	h := latest.TS.UTC().Hour()
	m := latest.TS.UTC().Minute()
	if (h != 8 && h != 13) || m >= d.OpenWindowMinutes {
		return nil
	}

	window := tail(r.M1, 7)
	if len(window) < 7 {
		return nil
	}
	sessionOpen := window[0]
	move := r.Spec.PriceToPips(sessionOpen.Close, latest.Close)
	if move < 10 {
		return nil
	}

	var dir model.Direction
	if latest.Close > sessionOpen.Close {
		dir = model.Sell // fade the move down
	} else {
		dir = model.Buy // fade the move up
	}

	retrace := (sessionOpen.Close + latest.Close) / 2
	conf := jitter(model.BaseScore[model.PatternSessionOpenFade]+clamp((move-10)/10*10, 0, 10), 0.03)

	entry := latest.Close
	var sl, tp float64
	if dir == model.Sell {
		sl = r.Spec.PricePlusPips(entry, model.Buy, 5)
		tp = minF(retrace, r.Spec.PricePlusPips(entry, model.Sell, 8))
	} else {
		sl = r.Spec.PricePlusPips(entry, model.Sell, 5)
		tp = maxF(retrace, r.Spec.PricePlusPips(entry, model.Buy, 8))
	}

	return &model.PatternSignal{
		PatternID:      model.PatternSessionOpenFade,
		Direction:      dir,
		EntryPrice:     entry,
		BaseConfidence: conf,
		Timeframe:      1,
		CalculatedSL:   &sl,
		CalculatedTP:   &tp,
		SLPips:         r.Spec.PriceToPips(entry, sl),
		TPPips:         r.Spec.PriceToPips(entry, tp),
		PatternMetadata: map[string]any{
			"session_open_move_pips": move,
		},
	}
}
