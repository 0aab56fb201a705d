// Package scoring implements the confluence-scoring and gating pipeline of
// spec §4.D: chop filter, ML tier gate, confluence bonuses, mode
// classification, TP/SL optimization, cooldown/dedup, and the RR floor.
package scoring

import (
	"fmt"
	"math"
	"time"

	"eliteguard/internal/markethours"
	"eliteguard/internal/model"
	"eliteguard/internal/pattern"
)

// NewsEvaluator is the external news-intelligence gate of spec §6. Score
// rejects a candidate with "news_block" when Block is set and otherwise
// subtracts Penalty (the REDUCE-window penalty); no stage upstream of the
// scorer consults it.
type NewsEvaluator interface {
	Evaluate(symbol string, at time.Time) NewsAction
}

// NewsAction is one evaluator's verdict for a symbol at an instant.
type NewsAction struct {
	Block   bool
	Penalty float64
}

// PatternStatsStore answers the ML tier gate's historical win-rate check
// (spec §4.D.2: "patterns mapped to historically disabled (symbol,
// pattern, session) combos... dropped").
type PatternStatsStore interface {
	WinRate(symbol string, kind model.PatternKind, session model.Session) (winRate float64, trades int, ok bool)
}

// Config holds the pipeline's tunable thresholds, all defaulted per spec §4.D.
type Config struct {
	GroupThreshold   float64       // default 70: ML tier gate publication floor
	ChopThreshold    float64       // default 0.1
	MinRR            float64       // default 0.8: hard reject floor
	SniperMinRR      float64       // default 2.0: TP/SL optimization's raise-to-min-rr
	Cooldown         time.Duration // default 5 min, per symbol
	DailyLimit       int           // default 0 = unlimited
	HourlyTier1Quota int           // default 0 = unlimited
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		GroupThreshold:   70,
		ChopThreshold:    0.1,
		MinRR:            0.8,
		SniperMinRR:      2.0,
		Cooldown:         5 * time.Minute,
		DailyLimit:       0,
		HourlyTier1Quota: 0,
	}
}

// Scorer runs the full scoring pipeline for one candidate PatternSignal at
// a time, tracking per-symbol cooldown and daily/hourly counters across
// calls (spec §4.D.6).
type Scorer struct {
	cfg     Config
	payouts *PayoutTable
	news    NewsEvaluator
	stats   PatternStatsStore

	lastFired  map[string]time.Time // symbol -> last promoted signal time
	dailyDate  string
	dailyCount int
	hourlyBucket string
	hourlyCount  int
}

// NewScorer builds a Scorer. news and stats may be nil (no penalty / no
// historical-disable check applied).
func NewScorer(cfg Config, payouts *PayoutTable, news NewsEvaluator, stats PatternStatsStore) *Scorer {
	return &Scorer{
		cfg:       cfg,
		payouts:   payouts,
		news:      news,
		stats:     stats,
		lastFired: make(map[string]time.Time),
	}
}

// Reject is returned when a candidate fails a gate; Reason names the gate.
type Reject struct {
	Reason string
}

func (r *Reject) Error() string { return "signal rejected: " + r.Reason }

// Score runs the full pipeline in spec order and returns a promotable
// Signal, or a *Reject explaining why the candidate was dropped.
func (s *Scorer) Score(cand *model.PatternSignal, r pattern.Rings, now time.Time) (*model.Signal, error) {
	// 1. Extreme-chop filter.
	if isChoppy(r.M5, s.cfg.ChopThreshold) {
		return nil, &Reject{"chop_filter"}
	}

	// 2. ML tier gate.
	if cand.BaseConfidence < s.cfg.GroupThreshold {
		return nil, &Reject{"below_group_threshold"}
	}
	if s.stats != nil {
		if rate, trades, ok := s.stats.WinRate(r.Symbol, cand.PatternID, r.Session); ok && trades >= 10 && rate < 0.40 {
			return nil, &Reject{"historically_disabled_combo"}
		}
	}

	// 3. Confluence scoring.
	score := s.applyConfluence(cand, r, now)

	// News gate: BLOCK rejects the candidate here; REDUCE subtracts its penalty.
	if s.news != nil {
		action := s.news.Evaluate(r.Symbol, now)
		if action.Block {
			return nil, &Reject{"news_block"}
		}
		score -= action.Penalty
	}

	// Final cap: >95 compressed logarithmically toward an asymptote at 98.
	score = capScore(score)

	// 4. Mode classification, by pattern family alone (TP pips are computed
	// only in step 5 and do not feed back into the mode).
	mode := classifyMode(cand)

	// 5. TP/SL optimization (authoritative exit levels).
	entry := cand.EntryPrice
	payout := s.payouts.For(string(cand.PatternID), r.Symbol)
	atr14 := atr(r.M5, 14)
	slPips := atr14 / r.Spec.PipSize * payout.SLAtrMult
	tpPips := atr14 / r.Spec.PipSize * payout.TPAtrMult
	sessionMult := markethours.SessionMultiplier(r.Session)
	slPips *= sessionMult
	tpPips *= sessionMult

	if mode == model.ModeSniper && slPips > 0 && tpPips/slPips < s.cfg.SniperMinRR {
		tpPips = slPips * s.cfg.SniperMinRR
	}

	var sl, tp float64
	if cand.Direction == model.Buy {
		sl = r.Spec.PricePlusPips(entry, model.Sell, slPips)
		tp = r.Spec.PricePlusPips(entry, model.Buy, tpPips)
	} else {
		sl = r.Spec.PricePlusPips(entry, model.Buy, slPips)
		tp = r.Spec.PricePlusPips(entry, model.Sell, tpPips)
	}

	// 6. Cooldown and daily dedup.
	if last, ok := s.lastFired[r.Symbol]; ok && now.Sub(last) < s.cfg.Cooldown {
		return nil, &Reject{"cooldown"}
	}
	if s.cfg.DailyLimit > 0 {
		day := now.Format("2006-01-02")
		if day != s.dailyDate {
			s.dailyDate = day
			s.dailyCount = 0
		}
		if s.dailyCount >= s.cfg.DailyLimit {
			return nil, &Reject{"daily_limit"}
		}
	}
	if s.cfg.HourlyTier1Quota > 0 && model.ReversalPatterns[cand.PatternID] {
		hour := now.Format("2006-01-02T15")
		if hour != s.hourlyBucket {
			s.hourlyBucket = hour
			s.hourlyCount = 0
		}
		if s.hourlyCount >= s.cfg.HourlyTier1Quota {
			return nil, &Reject{"hourly_tier1_quota"}
		}
	}

	// 7. Risk-reward floor.
	rr := 0.0
	if slPips > 0 {
		rr = tpPips / slPips
	}
	if rr < s.cfg.MinRR {
		return nil, &Reject{"rr_floor"}
	}

	// All gates passed: commit the cooldown/dedup counters.
	s.lastFired[r.Symbol] = now
	if s.cfg.DailyLimit > 0 {
		s.dailyCount++
	}
	if s.cfg.HourlyTier1Quota > 0 && model.ReversalPatterns[cand.PatternID] {
		s.hourlyCount++
	}

	sig := &model.Signal{
		SignalID:   fmt.Sprintf("ELITE_GUARD_%s_%d", r.Symbol, now.Unix()),
		Pair:       r.Symbol,
		Direction:  cand.Direction,
		PatternID:  cand.PatternID,
		SignalMode: mode,
		SignalType: modeToType(mode),
		EntryPrice: entry,
		StopLoss:   sl,
		TakeProfit: tp,
		StopPips:   slPips,
		TargetPips: tpPips,
		RiskReward: rr,
		Confidence: score,
		Session:    model.Session(r.Session),
		ExpiresAt:  now.Add(30 * time.Minute),
		XPReward:   100,
		MLTier:     string(mode),
		CreatedAt:  now,
	}
	if !sig.ValidateSides() {
		return nil, &Reject{"contract_violation_sides"}
	}
	return sig, nil
}

// isChoppy implements spec §4.D.1 over the last 20 M5 bars.
func isChoppy(m5 []model.Candle, threshold float64) bool {
	w := window(m5, 20)
	if len(w) < 6 {
		return false
	}
	last := w[len(w)-1].Close
	sixBack := w[len(w)-6].Close
	rng := highOfAll(w) - lowOfAll(w)
	if rng <= 0 {
		return true
	}
	return math.Abs(last-sixBack)/rng < threshold
}

func highOfAll(c []model.Candle) float64 {
	h := c[0].High
	for _, x := range c[1:] {
		if x.High > h {
			h = x.High
		}
	}
	return h
}

func lowOfAll(c []model.Candle) float64 {
	l := c[0].Low
	for _, x := range c[1:] {
		if x.Low < l {
			l = x.Low
		}
	}
	return l
}

// applyConfluence adds spec §4.D.3's bonuses to the candidate's base
// confidence and returns the running score (pre-cap, pre-news-penalty).
func (s *Scorer) applyConfluence(cand *model.PatternSignal, r pattern.Rings, now time.Time) float64 {
	score := cand.BaseConfidence

	// Session-optimal pair bonus.
	score += math.Min(12, r.Spec.PairQualityBonus*0.5)
	if r.Spec.PairQualityBonus > 0 {
		score *= 1.05
	}

	// Volume confirmation: last-5-M1 average volume > 1000. Ticks are not
	// retained at scoring time, so the last five closed M1 candles stand in
	// for "last 5 ticks" (same recency window, coarser granularity).
	last5M1 := window(r.M1, 5)
	if len(last5M1) > 0 && meanVolume(last5M1) > 1000 {
		score += 3
	}

	// Tight spread: approximated from the latest M1 bar's range, since the
	// scorer does not see live bid/ask at candidate time.
	if len(r.M1) > 0 {
		latest := r.M1[len(r.M1)-1]
		spreadPips := r.Spec.PriceToPips(latest.High, latest.Low)
		if spreadPips < 2.5 {
			score += 2
		}
	}

	// Multi-timeframe alignment: 3 vs 10 period MA on M1 and M5.
	m1Aligned := maDirectionMatch(r.M1, 3, 10, cand.Direction)
	m5Aligned := maDirectionMatch(r.M5, 3, 10, cand.Direction)
	switch {
	case m1Aligned && m5Aligned:
		score += 8
		cand.TFAlignment = 0.9
	case m1Aligned || m5Aligned:
		score += 4
		cand.TFAlignment = 0.6
	}

	// Volatility band: ATR(10) on M5 within [0.0003, 0.0008].
	atr10 := atr(r.M5, 10)
	if atr10 >= 0.0003 && atr10 <= 0.0008 {
		score += 3
	}

	// Momentum confirmation: all four sub-gates.
	if momentumConfirmed(r, cand.Direction) {
		score += 5
	}

	// Micro-trend alignment: 8 vs 21 M15 SMA direction.
	if maDirectionMatch(r.M15, 8, 21, cand.Direction) {
		score += 3
	}

	return score
}

func momentumConfirmed(r pattern.Rings, dir model.Direction) bool {
	last5 := window(r.M1, 5)
	if len(last5) < 5 {
		return false
	}
	avgVol := meanVolume(window(r.M1, 20))
	latest := last5[len(last5)-1]

	volOK := avgVol > 0 && latest.Volume >= 1.25*avgVol

	rng := latest.High - latest.Low
	posOK := false
	if rng > 0 {
		pos := (latest.Close - latest.Low) / rng
		if dir == model.Buy {
			posOK = pos >= 0.8
		} else {
			posOK = pos <= 0.2
		}
	}

	first := last5[0]
	moveOK := false
	moveSign := latest.Close - first.Close
	if dir == model.Buy {
		moveOK = moveSign > 0
	} else {
		moveOK = moveSign < 0
	}

	prev := last5[len(last5)-2]
	followOK := false
	if dir == model.Buy {
		followOK = latest.Close > prev.Close
	} else {
		followOK = latest.Close < prev.Close
	}

	return volOK && posOK && moveOK && followOK
}

func meanVolume(c []model.Candle) float64 {
	if len(c) == 0 {
		return 0
	}
	var sum float64
	for _, x := range c {
		sum += x.Volume
	}
	return sum / float64(len(c))
}

// capScore applies the >95 logarithmic compression toward 98, hard-capped.
func capScore(score float64) float64 {
	if score <= 95 {
		if score < 0 {
			return 0
		}
		return score
	}
	excess := score - 95
	compressed := 95 + 3*(1-math.Exp(-excess/6))
	if compressed > 98 {
		return 98
	}
	return compressed
}

// classifyMode implements spec §4.D.4. tp_pips isn't known yet at this
// point in the pipeline (optimization runs after), so pattern family alone
// decides: MOMENTUM_BURST, SESSION_OPEN_FADE, MICRO_BREAKOUT_RETEST and
// every other non-reversal pattern are RAPID, reversal patterns are SNIPER.
// No tp_pips threshold is applied, before or after the TP/SL optimization.
func classifyMode(cand *model.PatternSignal) model.SignalMode {
	switch cand.PatternID {
	case model.PatternMomentumBurst, model.PatternSessionOpenFade, model.PatternMicroBreakoutRetest:
		return model.ModeRapid
	}
	if model.ReversalPatterns[cand.PatternID] {
		return model.ModeSniper
	}
	return model.ModeRapid
}

func modeToType(mode model.SignalMode) model.SignalType {
	if mode == model.ModeSniper {
		return model.TypePrecisionStrike
	}
	return model.TypeRapidAssault
}
