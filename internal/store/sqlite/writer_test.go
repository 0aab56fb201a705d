package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"eliteguard/internal/model"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWriter_PositionRoundTrip(t *testing.T) {
	w := newTestWriter(t)

	p := &model.Position{Ticket: 101, Symbol: "EURUSD", State: model.StateEntered, EntryPx: 1.1}
	if err := w.SavePosition(p); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	got, ok, err := w.LoadPosition(101)
	if err != nil || !ok {
		t.Fatalf("LoadPosition: ok=%v err=%v", ok, err)
	}
	if got.Symbol != "EURUSD" {
		t.Errorf("expected symbol EURUSD, got %s", got.Symbol)
	}

	if err := w.DeletePosition(101); err != nil {
		t.Fatalf("DeletePosition: %v", err)
	}
	if _, ok, _ := w.LoadPosition(101); ok {
		t.Error("expected position gone after delete")
	}
}

func TestWriter_LoadAllOpenPositionsExcludesClosed(t *testing.T) {
	w := newTestWriter(t)

	w.SavePosition(&model.Position{Ticket: 1, Symbol: "EURUSD", State: model.StateEntered})
	w.SavePosition(&model.Position{Ticket: 2, Symbol: "GBPUSD", State: model.StateClosed})

	open, err := w.LoadAllOpenPositions()
	if err != nil {
		t.Fatalf("LoadAllOpenPositions: %v", err)
	}
	if len(open) != 1 || open[0].Ticket != 1 {
		t.Errorf("expected only ticket 1 open, got %+v", open)
	}
}

func TestWriter_TimeoutMetaRoundTrip(t *testing.T) {
	w := newTestWriter(t)

	meta := model.TimeoutMeta{Ticket: 5, OpenTSUTC: "2026-01-01T00:00:00Z", PreTP1MaxHoldMin: 90}
	if err := w.SetTimeoutMeta(meta); err != nil {
		t.Fatalf("SetTimeoutMeta: %v", err)
	}

	got, err := w.GetTimeoutMeta(5)
	if err != nil || got == nil {
		t.Fatalf("GetTimeoutMeta: got=%v err=%v", got, err)
	}
	if got.PreTP1MaxHoldMin != 90 {
		t.Errorf("expected PreTP1MaxHoldMin 90, got %d", got.PreTP1MaxHoldMin)
	}

	if err := w.ClearTimeoutMeta(5); err != nil {
		t.Fatalf("ClearTimeoutMeta: %v", err)
	}
	if got, _ := w.GetTimeoutMeta(5); got != nil {
		t.Error("expected timeout meta cleared")
	}
}

func TestWriter_EntitlementDefaultsToBeginner(t *testing.T) {
	w := newTestWriter(t)

	tier, err := w.GetUserTier("user1")
	if err != nil {
		t.Fatalf("GetUserTier: %v", err)
	}
	if tier != "TIER_BEGINNER" {
		t.Errorf("expected default TIER_BEGINNER, got %s", tier)
	}
}

func TestWriter_SetUserTierUpdatesAndTracksHistory(t *testing.T) {
	w := newTestWriter(t)

	if err := w.SetUserTier("user1", "TIER_PLUS", "admin", "upgrade"); err != nil {
		t.Fatalf("SetUserTier: %v", err)
	}
	tier, err := w.GetUserTier("user1")
	if err != nil {
		t.Fatalf("GetUserTier: %v", err)
	}
	if tier != "TIER_PLUS" {
		t.Errorf("expected TIER_PLUS after upgrade, got %s", tier)
	}

	var count int
	if err := w.db.QueryRow(`SELECT COUNT(*) FROM tier_history WHERE user_id = ?`, "user1").Scan(&count); err != nil {
		t.Fatalf("query tier_history: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 tier_history row, got %d", count)
	}
}

func TestWriter_EventLogAppendAndPrune(t *testing.T) {
	w := newTestWriter(t)

	if err := w.AppendEvent("signal_published", []byte(`{"pair":"EURUSD"}`)); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	var count int
	if err := w.db.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&count); err != nil {
		t.Fatalf("query event_log: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 event_log row, got %d", count)
	}

	// A negative age puts the cutoff an hour in the future, so the row is older.
	if err := w.PruneEvents(-time.Hour); err != nil {
		t.Fatalf("PruneEvents: %v", err)
	}
	if err := w.db.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&count); err != nil {
		t.Fatalf("query event_log after prune: %v", err)
	}
	if count != 0 {
		t.Errorf("expected event_log empty after prune, got %d rows", count)
	}
}
