package markethours

import (
	"testing"
	"time"

	"eliteguard/internal/model"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 7, 27, hour, minute, 0, 0, time.UTC) // Monday
}

func TestClassify(t *testing.T) {
	cases := []struct {
		hour, minute int
		want         model.Session
	}{
		{7, 0, model.SessionLondon},
		{11, 59, model.SessionLondon},
		{12, 0, model.SessionOverlap},
		{15, 59, model.SessionOverlap},
		{16, 0, model.SessionNY},
		{21, 59, model.SessionNY},
		{22, 0, model.SessionAsian},
		{23, 30, model.SessionAsian},
		{3, 0, model.SessionAsian},
		{6, 59, model.SessionAsian},
	}
	for _, tc := range cases {
		got := Classify(at(tc.hour, tc.minute))
		if got != tc.want {
			t.Errorf("Classify(%02d:%02d) = %s, want %s", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestIsMarketOpen_Weekend(t *testing.T) {
	fri2230 := time.Date(2026, 7, 31, 22, 0, 0, 0, time.UTC) // Friday night
	if IsMarketOpen(fri2230) {
		t.Error("expected market closed Friday 22:00 UTC")
	}
	sat := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if IsMarketOpen(sat) {
		t.Error("expected market closed Saturday")
	}
	sunLate := time.Date(2026, 8, 2, 22, 0, 0, 0, time.UTC)
	if !IsMarketOpen(sunLate) {
		t.Error("expected market open Sunday late evening")
	}
}

func TestIsOptimalVCBWindow(t *testing.T) {
	if !IsOptimalVCBWindow(at(8, 0)) {
		t.Error("expected LONDON to be a VCB window")
	}
	if !IsOptimalVCBWindow(at(13, 0)) {
		t.Error("expected OVERLAP to be a VCB window")
	}
	if IsOptimalVCBWindow(at(23, 0)) {
		t.Error("expected ASIAN not to be a VCB window")
	}
}

func TestIsSessionOpenWindow(t *testing.T) {
	if !IsSessionOpenWindow(at(8, 3), 5) {
		t.Error("expected 08:03 to be within the session open window")
	}
	if IsSessionOpenWindow(at(8, 6), 5) {
		t.Error("expected 08:06 to be outside the session open window")
	}
	if !IsSessionOpenWindow(at(13, 0), 5) {
		t.Error("expected 13:00 to be within the NY session open window")
	}
	if IsSessionOpenWindow(at(12, 59), 5) {
		t.Error("expected 12:59 not to be a session open window")
	}
}

func TestSessionMultiplier(t *testing.T) {
	if SessionMultiplier(model.SessionOverlap) != 1.2 {
		t.Error("expected OVERLAP multiplier 1.2")
	}
	if SessionMultiplier(model.SessionAsian) != 0.8 {
		t.Error("expected ASIAN multiplier 0.8")
	}
	if SessionMultiplier(model.SessionLondon) != 1.0 {
		t.Error("expected LONDON multiplier 1.0")
	}
	if SessionMultiplier(model.SessionNY) != 1.0 {
		t.Error("expected NY multiplier 1.0")
	}
}
