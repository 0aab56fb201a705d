package exitfsm

import "testing"

type recordingAlerter struct {
	alerts []string
}

func (a *recordingAlerter) Alert(v ViolationType, sev Severity, ticket int64, detail string) {
	a.alerts = append(a.alerts, string(v))
}

func TestSentry_FlagsEarlyPartial(t *testing.T) {
	alerter := &recordingAlerter{}
	s := NewSentry(alerter, nil)
	s.CheckPartial(1, 0.8)
	if len(alerter.alerts) != 1 || alerter.alerts[0] != string(ViolationEarlyPartial) {
		t.Errorf("expected an EARLY_PARTIAL alert, got %v", alerter.alerts)
	}
}

func TestSentry_AllowsPartialAtOrAboveThreshold(t *testing.T) {
	alerter := &recordingAlerter{}
	s := NewSentry(alerter, nil)
	s.CheckPartial(1, 1.25)
	if len(alerter.alerts) != 0 {
		t.Errorf("expected no alert at current_r == 1.25, got %v", alerter.alerts)
	}
}

func TestSentry_AutoDisablesAfterBadExitStreak(t *testing.T) {
	s := NewSentry(nil, nil)
	if !s.EngineEnabled() {
		t.Fatal("expected engine enabled initially")
	}

	s.CheckClose(1, 0.1)
	if !s.EngineEnabled() {
		t.Fatal("expected engine still enabled after a single bad exit")
	}
	s.CheckClose(2, 0.05)
	if s.EngineEnabled() {
		t.Error("expected engine disabled after reaching AutoDisableThreshold bad exits")
	}
}

func TestSentry_GoodExitResetsStreak(t *testing.T) {
	s := NewSentry(nil, nil)
	s.CheckClose(1, 0.1)
	s.CheckClose(2, 0.6) // resets streak
	s.CheckClose(3, 0.1)
	if !s.EngineEnabled() {
		t.Error("expected streak reset by a good exit to prevent auto-disable")
	}
}

func TestSentry_SummaryCountsViolations(t *testing.T) {
	s := NewSentry(nil, nil)
	s.CheckPartial(1, 0.5)
	s.CheckPartial(2, 0.5)
	summary := s.Summary()
	if summary[ViolationEarlyPartial] != 2 {
		t.Errorf("expected 2 EARLY_PARTIAL violations, got %d", summary[ViolationEarlyPartial])
	}
}
