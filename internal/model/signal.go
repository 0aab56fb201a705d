package model

import (
	"encoding/json"
	"time"
)

// SignalMode classifies the signal's urgency/hold-time profile (spec §4.D.4).
type SignalMode string

const (
	ModeRapid  SignalMode = "RAPID"
	ModeSniper SignalMode = "SNIPER"
)

// SignalType is the presentation label shown downstream; orthogonal to Mode
// per spec §9 open-question decision.
type SignalType string

const (
	TypeRapidAssault   SignalType = "RAPID_ASSAULT"
	TypePrecisionStrike SignalType = "PRECISION_STRIKE"
)

// Session is one of the FX trading sessions, UTC-hour based (see Glossary).
type Session string

const (
	SessionLondon    Session = "LONDON"
	SessionOverlap   Session = "OVERLAP"
	SessionNY        Session = "NY"
	SessionAsian     Session = "ASIAN"
	SessionOffHours  Session = "OFF_HOURS"
)

// Signal is the externally observable, final record published downstream.
// Once published its contents are final; further information is attached as
// a separate outcome event (spec §3).
type Signal struct {
	SignalID         string     `json:"signal_id"` // ELITE_GUARD_<pair>_<unix_ts>
	Pair             string     `json:"pair"`
	Direction        Direction  `json:"direction"`
	PatternID        PatternKind `json:"pattern_id"`
	SignalMode       SignalMode `json:"signal_mode"`
	SignalType       SignalType `json:"signal_type"`
	EntryPrice       float64    `json:"entry_price"`
	StopLoss         float64    `json:"stop_loss"`
	TakeProfit       float64    `json:"take_profit"`
	StopPips         float64    `json:"stop_pips"`
	TargetPips       float64    `json:"target_pips"`
	RiskReward       float64    `json:"risk_reward"`
	Confidence       float64    `json:"confidence"`
	Session          Session    `json:"session"`
	ExpiresAt        time.Time  `json:"expires_at"`
	XPReward         int        `json:"xp_reward"`
	ShieldScore      float64    `json:"shield_score"`
	CitadelShielded  bool       `json:"citadel_shielded"`
	MLTier           string     `json:"ml_tier"`
	CreatedAt        time.Time  `json:"created_at"`
}

// JSON returns the JSON-encoded signal (errors ignored, hot-path usage).
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// ValidateSides checks the no-cross-side TP/SL invariant from spec §3:
// BUY requires sl < entry < tp; SELL requires tp < entry < sl.
func (s *Signal) ValidateSides() bool {
	if s.Direction == Buy {
		return s.StopLoss < s.EntryPrice && s.EntryPrice < s.TakeProfit
	}
	return s.TakeProfit < s.EntryPrice && s.EntryPrice < s.StopLoss
}
