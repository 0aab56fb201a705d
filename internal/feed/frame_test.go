package feed

import (
	"testing"
	"time"
)

func TestParseFrame_Heartbeat(t *testing.T) {
	f, err := ParseFrame("HEARTBEAT 12345", time.Now())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Kind != KindHeartbeat {
		t.Errorf("expected KindHeartbeat, got %v", f.Kind)
	}
}

func TestParseFrame_HeartbeatJSON(t *testing.T) {
	f, err := ParseFrame(`{"type":"heartbeat"}`, time.Now())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Kind != KindHeartbeat {
		t.Errorf("expected KindHeartbeat, got %v", f.Kind)
	}
}

func TestParseFrame_Tick(t *testing.T) {
	f, err := ParseFrame(`{"type":"tick","symbol":"EURUSD","bid":1.0950,"ask":1.0952,"volume":3}`, time.Now())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Kind != KindTick {
		t.Fatalf("expected KindTick, got %v", f.Kind)
	}
	if f.Tick.Symbol != "EURUSD" || f.Tick.Bid != 1.0950 || f.Tick.Ask != 1.0952 {
		t.Errorf("unexpected tick: %+v", f.Tick)
	}
}

func TestParseFrame_BareTickNoType(t *testing.T) {
	f, err := ParseFrame(`{"symbol":"GBPUSD","bid":1.25,"ask":1.2502}`, time.Now())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Kind != KindTick {
		t.Fatalf("expected KindTick, got %v", f.Kind)
	}
}

func TestParseFrame_PrefixedTick(t *testing.T) {
	f, err := ParseFrame(`tick {"symbol":"USDJPY","bid":155.0,"ask":155.02}`, time.Now())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Kind != KindTick || f.Tick.Symbol != "USDJPY" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseFrame_OHLCPrefixed(t *testing.T) {
	f, err := ParseFrame(`OHLC {"symbol":"EURUSD","timeframe":"M1","M1":[]}`, time.Now())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Kind != KindOHLCBatch || f.Batch.Symbol != "EURUSD" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseFrame_Status(t *testing.T) {
	f, err := ParseFrame(`{"type":"status","ticket":42,"status":"CLOSED"}`, time.Now())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Kind != KindStatus || f.Status.Ticket != 42 || f.Status.Status != "CLOSED" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseFrame_StatusBulk(t *testing.T) {
	f, err := ParseFrame(`{"type":"status","positions":[1,2,3]}`, time.Now())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Kind != KindStatus || len(f.Status.Positions) != 3 {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseFrame_UnknownJSONObject(t *testing.T) {
	f, err := ParseFrame(`{"type":"weird_thing","foo":"bar"}`, time.Now())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Kind != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", f.Kind)
	}
}

func TestParseFrame_MalformedIsError(t *testing.T) {
	_, err := ParseFrame(`not json at all {{{`, time.Now())
	if err == nil {
		t.Fatal("expected an error for malformed frame")
	}
}

func TestParseFrame_EmptyIsError(t *testing.T) {
	_, err := ParseFrame("", time.Now())
	if err == nil {
		t.Fatal("expected an error for empty frame")
	}
}
