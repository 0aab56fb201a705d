// Package markethours classifies UTC wall-clock time into FX trading
// sessions. Unlike a single-exchange open/close calendar, FX trades
// continuously Mon–Fri; session membership instead drives detector
// gating (e.g. VCB Breakout only during LONDON/OVERLAP) and the TP/SL
// optimization table's session multiplier.
package markethours

import (
	"time"

	"eliteguard/internal/model"
)

// Session UTC-hour boundaries (spec §10 GLOSSARY). OVERLAP and NY
// both claim hour 12–13/13–16; OVERLAP is checked first since it is
// the more specific (narrower, higher-liquidity) classification.
const (
	londonStart  = 7
	londonEnd    = 12
	overlapStart = 12
	overlapEnd   = 16
	nyStart      = 13
	nyEnd        = 22
	asianStart   = 22
	asianEnd     = 7 // wraps past midnight
)

// Classify returns the FX session active at the given instant, based
// purely on its UTC hour.
func Classify(t time.Time) model.Session {
	h := t.UTC().Hour()
	switch {
	case h >= overlapStart && h < overlapEnd:
		return model.SessionOverlap
	case h >= londonStart && h < londonEnd:
		return model.SessionLondon
	case h >= nyStart && h < nyEnd:
		return model.SessionNY
	case h >= asianStart || h < asianEnd:
		return model.SessionAsian
	default:
		return model.SessionOffHours
	}
}

// IsWeekday returns true if t (UTC) falls Mon–Fri. FX closes over the
// weekend even though sessions are otherwise continuous.
func IsWeekday(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsMarketOpen returns true if FX is trading at t: a weekday, and not
// in the Friday-evening/Sunday-evening weekend gap.
func IsMarketOpen(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return u.Hour() >= 21 // market reopens Sunday ~21:00 UTC
	case time.Friday:
		return u.Hour() < 21 // market closes Friday ~21:00 UTC
	default:
		return true
	}
}

// IsOptimalVCBWindow reports whether t falls in a session where the
// VCB Breakout detector is permitted to run (spec §4.C: EURUSD/GBPUSD
// during LONDON or OVERLAP only).
func IsOptimalVCBWindow(t time.Time) bool {
	s := Classify(t)
	return s == model.SessionLondon || s == model.SessionOverlap
}

// IsSessionOpenWindow reports whether t falls in the first minutesOut
// of LONDON's or NY's opening hour, used to gate Session Open Fade
// (spec §4.C: first 5 minutes of UTC hour 8 or 13).
func IsSessionOpenWindow(t time.Time, minutesOut int) bool {
	u := t.UTC()
	if u.Hour() != 8 && u.Hour() != 13 {
		return false
	}
	return u.Minute() < minutesOut
}

// SessionMultiplier is the TP/SL optimization table's per-session
// scaling factor (spec §4.D.5): OVERLAP widens targets, ASIAN
// tightens them, LONDON/NY/OFF_HOURS pass through unchanged.
func SessionMultiplier(s model.Session) float64 {
	switch s {
	case model.SessionOverlap:
		return 1.2
	case model.SessionAsian:
		return 0.8
	default:
		return 1.0
	}
}
