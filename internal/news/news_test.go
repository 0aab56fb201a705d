package news

import (
	"testing"
	"time"
)

func fixedCalendar(events ...Event) *Calendar {
	return &Calendar{Events: events}
}

func TestEvaluator_BlocksWithinTier1Window(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	cal := fixedCalendar(Event{Country: "USD", Impact: "high", Title: "Nonfarm Payrolls", At: at})

	e := NewEvaluator(cal)
	action := e.Evaluate("EURUSD", at.Add(10*time.Minute))
	if !action.Block {
		t.Error("expected BLOCK within the tier-1 window")
	}
}

func TestEvaluator_NormalOutsideTier1Window(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	cal := fixedCalendar(Event{Country: "USD", Impact: "high", Title: "Nonfarm Payrolls", At: at})

	e := NewEvaluator(cal)
	action := e.Evaluate("EURUSD", at.Add(time.Hour))
	if action.Block {
		t.Error("expected no block an hour outside the event")
	}
}

func TestEvaluator_ReducesWithinTier2Window(t *testing.T) {
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	cal := fixedCalendar(Event{Country: "EUR", Impact: "medium", Title: "Manufacturing PMI", At: at})

	e := NewEvaluator(cal)
	action := e.Evaluate("EURUSD", at.Add(20*time.Minute))
	if action.Block {
		t.Error("expected REDUCE, not BLOCK, for a medium-impact event")
	}
	if action.Penalty != tier2ConfidencePenalty {
		t.Errorf("expected penalty %v, got %v", tier2ConfidencePenalty, action.Penalty)
	}
}

func TestEvaluator_IgnoresIrrelevantCurrency(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cal := fixedCalendar(Event{Country: "JPY", Impact: "high", Title: "Interest Rate Decision", At: at})

	e := NewEvaluator(cal)
	action := e.Evaluate("EURUSD", at.Add(5*time.Minute))
	if action.Block {
		t.Error("expected no block for a currency not in the pair")
	}
}

func TestEvaluator_DisabledAlwaysNormal(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cal := fixedCalendar(Event{Country: "USD", Impact: "high", Title: "FOMC", At: at})

	e := NewEvaluator(cal)
	e.SetEnabled(false)
	action := e.Evaluate("EURUSD", at)
	if action.Block || action.Penalty != 0 {
		t.Error("expected NORMAL when disabled regardless of calendar")
	}
}

func TestSymbolCurrencies_SplitsPairAndHandlesMetals(t *testing.T) {
	eurusd := symbolCurrencies("EURUSD")
	if len(eurusd) != 2 {
		t.Fatalf("expected 2 currencies for EURUSD, got %v", eurusd)
	}

	xau := symbolCurrencies("XAUUSD")
	if len(xau) != 1 || xau[0] != "USD" {
		t.Errorf("expected only USD relevance for XAUUSD, got %v", xau)
	}
}

func TestLoadCalendar_MissingFileYieldsEmpty(t *testing.T) {
	cal, err := LoadCalendar("/nonexistent/path/calendar.yaml")
	if err != nil {
		t.Fatalf("LoadCalendar: %v", err)
	}
	if len(cal.Events) != 0 {
		t.Error("expected empty calendar for a missing file")
	}
}
