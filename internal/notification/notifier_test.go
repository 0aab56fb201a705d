package notification

import (
	"context"
	"testing"

	"eliteguard/internal/exitfsm"
)

type recordingNotifier struct {
	alerts []Alert
}

func (r *recordingNotifier) Send(ctx context.Context, alert Alert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}

func TestSentryAlerter_FansOutToAllNotifiers(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{}
	s := NewSentryAlerter(context.Background(), a, b)

	s.Alert(exitfsm.ViolationBadExit, exitfsm.SeverityHigh, 42, "closed too early")

	if len(a.alerts) != 1 || len(b.alerts) != 1 {
		t.Fatalf("expected both notifiers to receive the alert, got a=%d b=%d", len(a.alerts), len(b.alerts))
	}
	if a.alerts[0].Level != LevelCritical {
		t.Errorf("expected CRITICAL level for SeverityHigh, got %v", a.alerts[0].Level)
	}
}

func TestLogNotifier_NeverErrors(t *testing.T) {
	n := NewLogNotifier()
	if err := n.Send(context.Background(), Alert{Level: LevelInfo, Title: "t", Message: "m"}); err != nil {
		t.Errorf("LogNotifier.Send: %v", err)
	}
}
