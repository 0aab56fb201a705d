package filelog

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"eliteguard/internal/model"
)

func TestWriter_AppendTruthAndTracking(t *testing.T) {
	dir := t.TempDir()
	truthPath := filepath.Join(dir, "truth.jsonl")
	trackPath := filepath.Join(dir, "track.jsonl")

	w, err := New(truthPath, trackPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	sig := &model.Signal{SignalID: "ELITE_GUARD_EURUSD_1", Pair: "EURUSD"}
	if err := w.AppendTruth(context.Background(), sig); err != nil {
		t.Fatalf("AppendTruth: %v", err)
	}
	if err := w.AppendTracking(context.Background(), sig, map[string]any{"would_fire": true}); err != nil {
		t.Fatalf("AppendTracking: %v", err)
	}

	countLines(t, truthPath, 1)
	countLines(t, trackPath, 1)
}

func TestWriter_NoTrackingPathIsNoOp(t *testing.T) {
	dir := t.TempDir()
	w, err := New(filepath.Join(dir, "truth.jsonl"), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	sig := &model.Signal{SignalID: "x"}
	if err := w.AppendTracking(context.Background(), sig, nil); err != nil {
		t.Errorf("expected no-op AppendTracking to succeed, got %v", err)
	}
}

func countLines(t *testing.T, path string, want int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
	}
	if n != want {
		t.Errorf("expected %d lines in %s, got %d", want, path, n)
	}
}
