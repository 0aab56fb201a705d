// Package publisher implements the Signal Publisher of spec §4.F: the
// terminal stage that serializes a final Signal to the outbound bus and
// logs it to the truth/tracking sinks. Grounded on teacher's
// store/redis/writer.go pipelined-publish pattern for the outbound half;
// the durable-log half is delegated to model.TruthLogWriter
// (internal/store/filelog).
package publisher

import (
	"context"
	"fmt"

	"eliteguard/internal/errs"
	"eliteguard/internal/model"
)

// Bus is the outbound channel a published Signal is serialized to
// (Redis Streams + Pub/Sub in production, grounded on
// internal/store/redis.Writer.PublishSignal).
type Bus interface {
	PublishSignal(ctx context.Context, s *model.Signal) error
}

// TrackingMeta carries the richer metadata spec §4.F allows mirroring to
// the secondary tracking JSONL: ATR, session, volatility, and whether the
// signal would have fired / actually fired downstream.
type TrackingMeta struct {
	ATR        float64 `json:"atr"`
	Volatility float64 `json:"volatility"`
	WouldFire  bool    `json:"would_fire"`
	Fired      bool    `json:"fired"`
}

// Publisher wires the outbound Bus to the durable TruthLogWriter.
type Publisher struct {
	bus   Bus
	truth model.TruthLogWriter
}

// New builds a Publisher over an already-opened Bus and TruthLogWriter.
func New(bus Bus, truth model.TruthLogWriter) *Publisher {
	return &Publisher{bus: bus, truth: truth}
}

// Publish serializes sig to the outbound bus and appends it to the truth
// log (and optional tracking log). Rejects signals with no confidence
// breakdown or invalid SL/TP sides, per spec §4.F's hard requirement.
func (p *Publisher) Publish(ctx context.Context, sig *model.Signal, track *TrackingMeta) error {
	if sig.Confidence <= 0 {
		return fmt.Errorf("%w: signal %s has no confidence breakdown", errs.ErrContractViolation, sig.SignalID)
	}
	if !sig.ValidateSides() {
		return fmt.Errorf("%w: signal %s fails side validation", errs.ErrContractViolation, sig.SignalID)
	}

	if err := p.bus.PublishSignal(ctx, sig); err != nil {
		return fmt.Errorf("publish to bus: %w", err)
	}
	if err := p.truth.AppendTruth(ctx, sig); err != nil {
		return fmt.Errorf("append truth log: %w", err)
	}

	if track != nil {
		extra := map[string]any{
			"atr":        track.ATR,
			"volatility": track.Volatility,
			"would_fire": track.WouldFire,
			"fired":      track.Fired,
		}
		if err := p.truth.AppendTracking(ctx, sig, extra); err != nil {
			return fmt.Errorf("append tracking log: %w", err)
		}
	}
	return nil
}

// Close closes the underlying truth log.
func (p *Publisher) Close() error {
	return p.truth.Close()
}
