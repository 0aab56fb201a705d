// Package filelog implements model.TruthLogWriter: the append-only,
// fsync'd truth log and optional richer tracking mirror of spec §4.F.
// Grounded on teacher's single-writer file-handle pattern in
// store/sqlite/writer.go (the Writer alone holds the file handles and a
// mutex serializes every append; callers never touch *os.File directly).
package filelog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"eliteguard/internal/model"
)

// Writer appends one JSON line per call to the truth log and, if a
// tracking path was configured, a second richer line to the tracking log.
type Writer struct {
	mu       sync.Mutex
	truthLog *os.File
	trackLog *os.File
}

// New opens the truth log (created if absent) and, if trackPath is
// non-empty, the tracking log too.
func New(truthPath, trackPath string) (*Writer, error) {
	truth, err := os.OpenFile(truthPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open truth log: %w", err)
	}
	w := &Writer{truthLog: truth}

	if trackPath != "" {
		track, err := os.OpenFile(trackPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			truth.Close()
			return nil, fmt.Errorf("open tracking log: %w", err)
		}
		w.trackLog = track
	}
	return w, nil
}

// AppendTruth appends one required-fields-only record (spec §4.F: "one
// line per signal; required fields listed in §4.F").
func (w *Writer) AppendTruth(ctx context.Context, s *model.Signal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return appendJSONLine(w.truthLog, s)
}

// AppendTracking appends the secondary mirror with richer metadata (ATR,
// session, volatility, would_fire/fired flags), if a tracking log was
// configured. No-op otherwise.
func (w *Writer) AppendTracking(ctx context.Context, s *model.Signal, extra map[string]any) error {
	if w.trackLog == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	record := map[string]any{
		"signal":    s,
		"logged_at": time.Now().UTC(),
	}
	for k, v := range extra {
		record[k] = v
	}
	return appendJSONLine(w.trackLog, record)
}

func appendJSONLine(f *os.File, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

// Close closes both log files.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.truthLog.Close()
	if w.trackLog != nil {
		if terr := w.trackLog.Close(); terr != nil && err == nil {
			err = terr
		}
	}
	return err
}
