package model

import "time"

// PatternKind identifies one of the eight detectors in spec §4.C.
type PatternKind string

const (
	PatternLiquiditySweepReversal PatternKind = "LIQUIDITY_SWEEP_REVERSAL"
	PatternOrderBlockBounce       PatternKind = "ORDER_BLOCK_BOUNCE"
	PatternFairValueGapFill       PatternKind = "FAIR_VALUE_GAP_FILL"
	PatternVCBBreakout            PatternKind = "VCB_BREAKOUT"
	PatternSweepAndReturn         PatternKind = "SWEEP_AND_RETURN"
	PatternMomentumBurst          PatternKind = "MOMENTUM_BURST"
	PatternSessionOpenFade        PatternKind = "SESSION_OPEN_FADE"
	PatternMicroBreakoutRetest    PatternKind = "MICRO_BREAKOUT_RETEST"
)

// BaseScore is the starting confidence for each pattern kind, per spec §4.C.
var BaseScore = map[PatternKind]float64{
	PatternLiquiditySweepReversal: 75,
	PatternOrderBlockBounce:       70,
	PatternFairValueGapFill:       65,
	PatternVCBBreakout:            72, // combo-tuned midpoint of the 70-75 band
	PatternSweepAndReturn:         0,  // computed per-signal
	PatternMomentumBurst:          70,
	PatternSessionOpenFade:        75,
	PatternMicroBreakoutRetest:    72,
}

// ReversalPatterns is the set treated as "reversal" family for RR-floor and
// mode-classification purposes (spec §4.D.7, §4.D.4).
var ReversalPatterns = map[PatternKind]bool{
	PatternLiquiditySweepReversal: true,
	PatternOrderBlockBounce:       true,
	PatternFairValueGapFill:       true,
	PatternVCBBreakout:            true,
	PatternSweepAndReturn:         true,
}

// PatternSignal is the transient candidate produced by a detector and
// consumed by the scorer; it is either discarded or promoted to a Signal.
type PatternSignal struct {
	PatternID       PatternKind `json:"pattern_id"`
	Direction       Direction   `json:"direction"`
	EntryPrice      float64     `json:"entry_price"`
	BaseConfidence  float64     `json:"base_confidence"`
	FinalScore      float64     `json:"final_score"`
	Timeframe       int         `json:"timeframe"`
	Pair            string      `json:"pair"`
	TFAlignment     float64     `json:"tf_alignment"`
	CalculatedSL    *float64    `json:"calculated_sl,omitempty"`
	CalculatedTP    *float64    `json:"calculated_tp,omitempty"`
	SLPips          float64     `json:"sl_pips"`
	TPPips          float64     `json:"tp_pips"`
	PatternMetadata map[string]any `json:"pattern_metadata,omitempty"`
	DetectedAt      time.Time   `json:"detected_at"`
}
