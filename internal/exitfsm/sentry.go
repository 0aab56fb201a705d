package exitfsm

import (
	"log"
	"sync"
	"sync/atomic"

	"eliteguard/internal/metrics"
)

// ViolationType enumerates the milestone-transition violations Sentry
// watches for, per spec §4.G. Grounded directly on
// original_source/src/bitten_core/diagnostics/sentry.py.
type ViolationType string

const (
	ViolationEarlyPartial    ViolationType = "EARLY_PARTIAL"    // partial at current_r < 1.25
	ViolationEarlyBEMove     ViolationType = "EARLY_BE_MOVE"    // BE move before TP1
	ViolationEarlyTrailStart ViolationType = "EARLY_TRAIL_START" // trail start before TP1
	ViolationBadExit         ViolationType = "BAD_EXIT"          // closed at current_r < 0.2
)

// Severity of a recorded violation.
type Severity string

const (
	SeverityHigh Severity = "HIGH"
)

// AutoDisableThreshold is the consecutive bad-exit streak that flips the
// engine's feature flag off (spec §4.G default: 2).
const AutoDisableThreshold = 2

// Alerter receives Sentry alerts for out-of-band notification (ops
// channel, paging, etc). A no-op Alerter is valid.
type Alerter interface {
	Alert(violation ViolationType, severity Severity, ticket int64, detail string)
}

// Sentry is the Exit FSM's safety monitor: it inspects every milestone
// transition and tracks a rolling "bad exit streak" that auto-disables the
// engine when it crosses AutoDisableThreshold.
type Sentry struct {
	alerter Alerter
	metrics *metrics.Metrics
	enabled atomic.Bool

	mu              sync.Mutex
	badExitStreak   int
	violationCounts map[ViolationType]int
}

// NewSentry creates a Sentry with the engine initially enabled. m may be
// nil in tests that don't care about Prometheus observability.
func NewSentry(alerter Alerter, m *metrics.Metrics) *Sentry {
	s := &Sentry{alerter: alerter, metrics: m, violationCounts: make(map[ViolationType]int)}
	s.enabled.Store(true)
	return s
}

// EngineEnabled reports whether the hybrid engine is currently enabled.
// False after an auto-disable trip.
func (s *Sentry) EngineEnabled() bool {
	return s.enabled.Load()
}

// CheckPartial flags a premature partial close (spec: "Partial at
// current_r < 1.25 -> HIGH, alert").
func (s *Sentry) CheckPartial(ticket int64, currentR float64) {
	if currentR < 1.25 {
		s.record(ViolationEarlyPartial, SeverityHigh, ticket, "partial close before R>=1.25")
	}
}

// CheckBEMove flags a breakeven move requested before TP1 fired.
func (s *Sentry) CheckBEMove(ticket int64, tp1Done bool) {
	if !tp1Done {
		s.record(ViolationEarlyBEMove, SeverityHigh, ticket, "BE move before TP1")
	}
}

// CheckTrailStart flags trailing activation requested before TP1 fired.
func (s *Sentry) CheckTrailStart(ticket int64, tp1Done bool) {
	if !tp1Done {
		s.record(ViolationEarlyTrailStart, SeverityHigh, ticket, "trail start before TP1")
	}
}

// CheckClose updates the bad-exit streak on every position close. A close
// at current_r < 0.2 extends the streak and, once it reaches
// AutoDisableThreshold, flips the engine off. Any exit with r > 0.5 resets
// the streak (spec §4.G).
func (s *Sentry) CheckClose(ticket int64, currentR float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case currentR < 0.2:
		s.badExitStreak++
		s.violationCounts[ViolationBadExit]++
		if s.alerter != nil {
			s.alerter.Alert(ViolationBadExit, SeverityHigh, ticket, "closed at current_r < 0.2")
		}
		if s.badExitStreak >= AutoDisableThreshold && s.enabled.Load() {
			s.enabled.Store(false)
			log.Printf("[sentry] bad-exit streak reached %d, auto-disabling engine", s.badExitStreak)
			if s.alerter != nil {
				s.alerter.Alert(ViolationBadExit, SeverityHigh, ticket, "engine auto-disabled")
			}
			if s.metrics != nil {
				s.metrics.AutoDisableEvents.Inc()
			}
		}
	case currentR > 0.5:
		s.badExitStreak = 0
	}
}

func (s *Sentry) record(v ViolationType, sev Severity, ticket int64, detail string) {
	s.mu.Lock()
	s.violationCounts[v]++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SentryViolations.WithLabelValues(string(v), string(sev)).Inc()
	}
	log.Printf("[sentry] violation=%s severity=%s ticket=%d detail=%s", v, sev, ticket, detail)
	if s.alerter != nil {
		s.alerter.Alert(v, sev, ticket, detail)
	}
}

// Resume manually flips the engine back on after an auto-disable trip and
// resets the bad-exit streak, so the next close starts a clean count. The
// admin console gates this behind an operator TOTP code (spec §4.G: a
// tripped Sentry requires deliberate human review before resuming).
func (s *Sentry) Resume() {
	s.mu.Lock()
	s.badExitStreak = 0
	s.mu.Unlock()
	s.enabled.Store(true)
	log.Printf("[sentry] engine manually resumed")
}

// Summary returns a copy of the accumulated violation counts, for the
// admin console / health endpoint.
func (s *Sentry) Summary() map[ViolationType]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ViolationType]int, len(s.violationCounts))
	for k, v := range s.violationCounts {
		out[k] = v
	}
	return out
}
