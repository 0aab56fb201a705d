// Package feed implements the Feed Bridge of spec §4.A: the boundary
// between the single upstream market-data source and the rest of the
// engine. It parses the upstream's dynamically-typed frames (spec §9),
// maintains the live quotes[symbol] snapshot, debounces the Exit FSM
// drive, and detects position closes from upstream status frames.
//
// Grounded on original_source/zmq_telemetry_bridge_resilient.py's
// process_message dispatch (OHLC-prefixed / HEARTBEAT-prefixed / JSON
// tick, in that order) and original_source/src/bitten_core/position_close_detector.py's
// known-open-ticket reconciliation.
package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"eliteguard/internal/errs"
	"eliteguard/internal/model"
)

// Kind tags the sum type a parsed Frame carries (spec §9).
type Kind string

const (
	KindTick      Kind = "TICK"
	KindOHLCBatch Kind = "OHLC_BATCH"
	KindHeartbeat Kind = "HEARTBEAT"
	KindStatus    Kind = "STATUS"
	KindUnknown   Kind = "UNKNOWN"
)

// OHLCBatch is a batched multi-timeframe candle push, spec §9's
// `{"symbol":…,"timeframe":"M1|M5|M15","M1":[…],"M5":[…],…}` shape.
type OHLCBatch struct {
	Symbol    string         `json:"symbol"`
	Timeframe string         `json:"timeframe"`
	M1        []model.Candle `json:"M1,omitempty"`
	M5        []model.Candle `json:"M5,omitempty"`
	M15       []model.Candle `json:"M15,omitempty"`
}

// StatusFrame carries position lifecycle information used by the
// close detector: either a single ticket transition or a bulk snapshot
// of every ticket the upstream currently considers open.
type StatusFrame struct {
	Ticket    int64   `json:"ticket,omitempty"`
	Status    string  `json:"status,omitempty"` // "OPEN", "CLOSED", "TP_HIT", "SL_HIT"
	Positions []int64 `json:"positions,omitempty"`
}

// Frame is the tagged union every inbound message is parsed into. Exactly
// one of Tick/Batch/Status is non-nil, selected by Kind.
type Frame struct {
	Kind   Kind
	Tick   *model.Tick
	Batch  *OHLCBatch
	Status *StatusFrame
	Raw    string
}

// rawFrame is the generic envelope spec §9 describes for the JSON-object
// frame form: `{"type":"tick"|"heartbeat"|"status"|"candle_batch"|"OHLC", …}`.
type rawFrame struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Volume    float64 `json:"volume"`
	Timestamp float64 `json:"timestamp"`
	Ticket    int64   `json:"ticket"`
	Status    string  `json:"status"`
	Positions []int64 `json:"positions"`
}

// ParseFrame classifies and decodes one inbound upstream message. Per
// spec §4.A, all frames are best-effort: a message that cannot be
// interpreted at all (not valid JSON, not a recognized string prefix)
// returns ErrMalformedInput wrapped with the original text; callers log
// and discard rather than propagate. A recognized-but-unclassifiable
// JSON object yields KindUnknown rather than an error.
func ParseFrame(raw string, now time.Time) (Frame, error) {
	trimmed := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(trimmed, "HEARTBEAT"):
		return Frame{Kind: KindHeartbeat, Raw: trimmed}, nil

	case strings.HasPrefix(trimmed, "OHLC "):
		return parseOHLC(trimmed[len("OHLC "):], trimmed)

	case strings.HasPrefix(trimmed, "tick "):
		return parseTickEnvelope(trimmed[len("tick "):], trimmed, now)
	}

	if trimmed == "" {
		return Frame{}, fmt.Errorf("%w: empty frame", errs.ErrMalformedInput)
	}

	return parseTickEnvelope(trimmed, trimmed, now)
}

func parseOHLC(body, raw string) (Frame, error) {
	var batch OHLCBatch
	if err := json.Unmarshal([]byte(body), &batch); err != nil {
		return Frame{}, fmt.Errorf("%w: OHLC frame: %v", errs.ErrMalformedInput, err)
	}
	return Frame{Kind: KindOHLCBatch, Batch: &batch, Raw: raw}, nil
}

func parseTickEnvelope(body, raw string, now time.Time) (Frame, error) {
	var rf rawFrame
	if err := json.Unmarshal([]byte(body), &rf); err != nil {
		return Frame{}, fmt.Errorf("%w: frame: %v", errs.ErrMalformedInput, err)
	}

	switch strings.ToLower(rf.Type) {
	case "heartbeat":
		return Frame{Kind: KindHeartbeat, Raw: raw}, nil

	case "status":
		return Frame{Kind: KindStatus, Status: &StatusFrame{
			Ticket: rf.Ticket, Status: rf.Status, Positions: rf.Positions,
		}, Raw: raw}, nil

	case "candle_batch", "ohlc":
		var batch OHLCBatch
		if err := json.Unmarshal([]byte(body), &batch); err != nil {
			return Frame{}, fmt.Errorf("%w: candle_batch frame: %v", errs.ErrMalformedInput, err)
		}
		return Frame{Kind: KindOHLCBatch, Batch: &batch, Raw: raw}, nil

	case "tick", "":
		if rf.Symbol == "" || (rf.Bid == 0 && rf.Ask == 0) {
			// Carries neither a recognized type nor tick fields: a
			// structurally valid but semantically opaque frame.
			if rf.Ticket != 0 || len(rf.Positions) > 0 {
				return Frame{Kind: KindStatus, Status: &StatusFrame{
					Ticket: rf.Ticket, Status: rf.Status, Positions: rf.Positions,
				}, Raw: raw}, nil
			}
			return Frame{Kind: KindUnknown, Raw: raw}, nil
		}
		t := &model.Tick{
			Symbol: rf.Symbol,
			Bid:    rf.Bid,
			Ask:    rf.Ask,
			Volume: rf.Volume,
			TickTS: now,
		}
		if rf.Timestamp > 0 {
			t.EventTS = time.Unix(0, int64(rf.Timestamp*float64(time.Second))).UTC()
		}
		return Frame{Kind: KindTick, Tick: t, Raw: raw}, nil

	default:
		return Frame{Kind: KindUnknown, Raw: raw}, nil
	}
}
