package closedetector

import (
	"testing"
	"time"
)

func TestDetector_PriceStabilization(t *testing.T) {
	base := time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)
	d := New()
	d.StableFor = 3 * time.Second

	if d.Observe(1.1000, base) {
		t.Error("first observation should never trigger rebind")
	}

	if d.Observe(1.1010, base.Add(1*time.Second)) {
		t.Error("should not rebind when price is changing")
	}
	if d.Observe(1.1020, base.Add(2*time.Second)) {
		t.Error("should not rebind when price is changing")
	}

	if d.Observe(1.1020, base.Add(3*time.Second)) {
		t.Error("should not rebind yet, only 1s stable")
	}

	if !d.Observe(1.1020, base.Add(5*time.Second)) {
		t.Error("should rebind — price stable for 3s")
	}

	if d.LastPrice() != 1.1020 {
		t.Errorf("expected last price 1.1020, got %v", d.LastPrice())
	}
}

func TestDetector_HardDeadline(t *testing.T) {
	base := time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)
	d := New()
	d.MaxGrace = 2 * time.Minute

	if d.Observe(1.1000, base) {
		t.Error("first observation should never trigger rebind")
	}
	if d.Observe(1.1010, base.Add(1*time.Minute)) {
		t.Error("should not rebind before hard deadline")
	}

	if !d.Observe(1.1020, base.Add(3*time.Minute)) {
		t.Error("should rebind — past hard deadline even though price changed")
	}
}

func TestDetector_PriceChangeResetsStability(t *testing.T) {
	base := time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)
	d := New()
	d.StableFor = 2 * time.Second

	d.Observe(1.1000, base)
	d.Observe(1.1000, base.Add(1*time.Second))

	d.Observe(1.1010, base.Add(1500*time.Millisecond))

	if d.Observe(1.1010, base.Add(2*time.Second)) {
		t.Error("should not rebind — only 0.5s since price change")
	}

	if !d.Observe(1.1010, base.Add(3500*time.Millisecond)) {
		t.Error("should rebind — 2s stable after the price change")
	}
}

func TestDetector_Reset(t *testing.T) {
	base := time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)
	d := New()
	d.StableFor = time.Second

	d.Observe(1.1000, base)
	d.Observe(1.1000, base.Add(2*time.Second))
	d.Reset()

	if d.LastPrice() != 0 {
		t.Errorf("expected last price reset to 0, got %v", d.LastPrice())
	}
	if d.Observe(1.2000, base.Add(3*time.Second)) {
		t.Error("first observation after reset should never trigger rebind")
	}
}
