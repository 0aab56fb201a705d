package pattern

import (
	"eliteguard/internal/markethours"
	"eliteguard/internal/model"
)

// VCBBreakout ("volatility-compression breakout") scans M5 for the
// tightest recent compression window and fires when M1 price breaks out
// of it with sufficient strength. Only EURUSD/GBPUSD during
// LONDON/OVERLAP, per spec §4.C.
type VCBBreakout struct {
	MinBars, MaxBars int
	CompressionMax   float64 // range/ATR ceiling to qualify as "compressed"
	MinStrength      float64 // breakout distance as a fraction of comp_range
}

func NewVCBBreakout() *VCBBreakout {
	return &VCBBreakout{MinBars: 4, MaxBars: 10, CompressionMax: 1.2, MinStrength: 0.15}
}

func (VCBBreakout) Name() model.PatternKind { return model.PatternVCBBreakout }

func (d *VCBBreakout) Detect(r Rings) *model.PatternSignal {
	if r.Symbol != "EURUSD" && r.Symbol != "GBPUSD" {
		return nil
	}
	if len(r.M1) < 20 || len(r.M5) < 10 {
		return nil
	}
	if !markethours.IsOptimalVCBWindow(r.M1[len(r.M1)-1].TS) {
		return nil
	}

	atr14 := atr(r.M5, 14)
	if atr14 <= 0 {
		return nil
	}

	type compression struct {
		high, low, quality float64
		bars               int
	}
	var best *compression

	m5 := tail(r.M5, 20)
	for length := d.MinBars; length <= d.MaxBars && length <= len(m5); length++ {
		w := tail(m5, length)
		h := highOf(w)
		l := lowOf(w)
		rng := h - l
		ratio := rng / atr14
		if ratio > d.CompressionMax {
			continue
		}
		quality := clamp((d.CompressionMax-ratio)/d.CompressionMax*100, 0, 100)
		if best == nil || quality > best.quality {
			best = &compression{high: h, low: l, quality: quality, bars: length}
		}
	}
	if best == nil {
		return nil
	}

	minStrength := d.MinStrength
	if best.quality > 80 {
		minStrength *= 1.15
	}
	compRange := best.high - best.low
	if compRange <= 0 {
		return nil
	}

	latest := r.M1[len(r.M1)-1]
	var dir model.Direction
	switch {
	case latest.Close > best.high+minStrength*compRange:
		dir = model.Buy
	case latest.Close < best.low-minStrength*compRange:
		dir = model.Sell
	default:
		return nil
	}

	last5M1 := tail(r.M1, 5)
	aligned := 0
	for i := 1; i < len(last5M1); i++ {
		up := last5M1[i].Close > last5M1[i-1].Close
		if (dir == model.Buy && up) || (dir == model.Sell && !up) {
			aligned++
		}
	}
	momentumAlignment := float64(aligned) / float64(maxInt(1, len(last5M1)-1))
	if momentumAlignment < 0.6 {
		return nil
	}

	breakoutStrength := clamp(absF(latest.Close-best.high)/compRange, 0, 1) * 100
	volSurge := clamp((latest.Volume/meanVolume(last5M1)-1)*50, 0, 20)

	conf := jitter(model.BaseScore[model.PatternVCBBreakout]+best.quality*0.15+breakoutStrength*0.1+volSurge+sessionTier(r.Session)*0.4, 0.03)

	entry := latest.Close
	var sl, tp float64
	if dir == model.Buy {
		sl = r.Spec.PricePlusPips(best.low, model.Sell, r.Spec.MinStopPips)
		tp = entry + compRange
	} else {
		sl = r.Spec.PricePlusPips(best.high, model.Buy, r.Spec.MinStopPips)
		tp = entry - compRange
	}

	return &model.PatternSignal{
		PatternID:      model.PatternVCBBreakout,
		Direction:      dir,
		EntryPrice:     entry,
		BaseConfidence: conf,
		Timeframe:      1,
		CalculatedSL:   &sl,
		CalculatedTP:   &tp,
		SLPips:         r.Spec.PriceToPips(entry, sl),
		TPPips:         r.Spec.PriceToPips(entry, tp),
		PatternMetadata: map[string]any{
			"compression_quality": best.quality,
			"compression_bars":    best.bars,
		},
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
