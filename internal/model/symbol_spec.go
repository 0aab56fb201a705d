package model

import "math"

// SymbolSpec holds the static, per-symbol trading parameters used for price
// normalization, pip conversion, and exit-distance calculations. Grounded on
// original_source/src/bitten_core/symbols.py's get_symbol_config/get_pip_size
// table, with a DEFAULT fallback for unconfigured symbols.
type SymbolSpec struct {
	Symbol           string  `yaml:"symbol" json:"symbol"`
	PipSize          float64 `yaml:"pip_size" json:"pip_size"`
	PointsPerPip     int     `yaml:"points_per_pip" json:"points_per_pip"`
	MinStopPips      float64 `yaml:"min_stop_pips" json:"min_stop_pips"`
	BEOffsetMinPips  float64 `yaml:"be_offset_min_pips" json:"be_offset_min_pips"`
	TrailMinPips     float64 `yaml:"trail_min_pips" json:"trail_min_pips"`
	ATRMultDefault   float64 `yaml:"atr_mult_default" json:"atr_mult_default"`
	Decimals         int     `yaml:"decimals" json:"decimals"`

	// PairQualityBonus feeds the scorer's session-optimal pair bonus
	// (spec §4.D.3: "+min(12, pair_quality_bonus x 0.5)"). 0 for pairs
	// with no particular session edge.
	PairQualityBonus float64 `yaml:"pair_quality_bonus" json:"pair_quality_bonus"`
}

// DefaultSymbolSpec is used for any symbol absent from the configured table.
var DefaultSymbolSpec = SymbolSpec{
	Symbol:          "DEFAULT",
	PipSize:         0.0001,
	PointsPerPip:    10,
	MinStopPips:     5,
	BEOffsetMinPips: 2,
	TrailMinPips:    12,
	ATRMultDefault:  2.0,
	Decimals:        5,
}

// Direction of a position or signal.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// PriceToPips returns the pip distance between two prices for this symbol.
func (s SymbolSpec) PriceToPips(p1, p2 float64) float64 {
	if s.PipSize == 0 {
		return 0
	}
	return math.Abs(p1-p2) / s.PipSize
}

// PricePlusPips adds pips to entry, considering direction, and normalizes
// the result to the symbol's decimal precision.
func (s SymbolSpec) PricePlusPips(entry float64, dir Direction, pips float64) float64 {
	pipValue := pips * s.PipSize
	var result float64
	if dir == Buy {
		result = entry + pipValue
	} else {
		result = entry - pipValue
	}
	return s.Normalize(result)
}

// SpreadPips computes the bid/ask spread in pips.
func (s SymbolSpec) SpreadPips(bid, ask float64) float64 {
	if s.PipSize == 0 {
		return 0
	}
	return math.Abs(ask-bid) / s.PipSize
}

// BEOffsetPips computes a safe breakeven offset: the max of the configured
// minimum offset, double the current spread, and the minimum stop distance.
func (s SymbolSpec) BEOffsetPips(currentSpreadPips float64) float64 {
	spreadOffset := currentSpreadPips * 2
	return maxF(s.BEOffsetMinPips, spreadOffset, s.MinStopPips)
}

// CalculateTrailDistance returns the trailing-stop distance in pips, either
// ATR-derived (scaled by ATRMultDefault, floored at TrailMinPips) or a fixed
// 20-pip step floored the same way.
func (s SymbolSpec) CalculateTrailDistance(atrValue float64, method string) float64 {
	if method == "ATR" && atrValue > 0 && s.PipSize != 0 {
		atrPips := atrValue / s.PipSize
		dist := atrPips * s.ATRMultDefault
		return maxF(dist, s.TrailMinPips)
	}
	return maxF(20, s.TrailMinPips)
}

// Normalize rounds a price to the symbol's conventional decimal precision.
func (s SymbolSpec) Normalize(price float64) float64 {
	d := s.Decimals
	if d == 0 {
		d = 5
	}
	mult := math.Pow(10, float64(d))
	return math.Round(price*mult) / mult
}

// ValidateSLDistance checks that sl sits a safe distance from entry on the
// correct side for the direction.
func (s SymbolSpec) ValidateSLDistance(entry, sl float64, dir Direction) (bool, string) {
	slPips := s.PriceToPips(entry, sl)
	if slPips < s.MinStopPips {
		return false, "SL too close to entry"
	}
	if dir == Buy && sl >= entry {
		return false, "BUY SL must be below entry"
	}
	if dir == Sell && sl <= entry {
		return false, "SELL SL must be above entry"
	}
	return true, ""
}

func maxF(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
