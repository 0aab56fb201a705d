package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"eliteguard/internal/metrics"

	goredis "github.com/go-redis/redis/v8"
)

// streamMaxLen bounds the durable events stream, mirroring the
// candle-stream trimming pattern in store/redis/writer.go.
const streamMaxLen = 5000

// eventsStream is the single Redis Stream every envelope is XAdd'd to;
// consumers fan out by event_type on their own side, per
// event_bus.py's single-topic-per-bus design.
const eventsStream = "eventbus:events"

// RedisPublisher is the subset of *redis.Writer's client eventbus needs,
// narrowed to keep this package decoupled from the store/redis package's
// concrete type.
type RedisPublisher interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.IntCmd
}

// Collector durably mirrors every published event, and stores envelopes
// that fail schema validation under "<event_type>_rejected", backed by
// store/sqlite.Writer.AppendEvent.
type Collector interface {
	AppendEvent(eventType string, payload []byte) error
	PruneEvents(maxAge time.Duration) error
}

// Bus publishes validated Envelopes to a Redis Stream (the durable
// pub/sub layer spec §4.H consumers read from) and falls back to the
// SQLite collector — as a dead-letter sink for invalid envelopes, and
// as a durability backstop when Redis itself is unreachable. Grounded
// on original_source/event_bus/event_bus.py's publish-with-fallback
// shape, reusing store/redis.Writer's XAdd pattern and
// store/sqlite.Writer's AppendEvent/PruneEvents verbatim rather than
// inventing a new storage path.
type Bus struct {
	redis     RedisPublisher
	collector Collector
	metrics   *metrics.Metrics
}

// New builds a Bus. collector may be nil if no durable mirror is
// configured (validation failures are then only logged).
func New(redis RedisPublisher, collector Collector, m *metrics.Metrics) *Bus {
	return &Bus{redis: redis, collector: collector, metrics: m}
}

// Publish validates env, XAdds it to the events stream, and always
// mirrors it to the SQLite collector (if configured) so a consumer
// that falls behind the stream's MaxLen trim can still replay history.
// A validation failure never reaches Redis: it is logged and, if a
// collector is configured, appended under a "_rejected" event type for
// manual inspection rather than silently dropped.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	if err := env.Validate(); err != nil {
		log.Printf("[eventbus] rejecting invalid envelope (type=%q): %v", env.EventType, err)
		if b.collector != nil {
			if payload, merr := json.Marshal(env); merr == nil {
				_ = b.collector.AppendEvent(env.EventType+"_rejected", payload)
			}
		}
		if b.metrics != nil {
			b.metrics.EventBusRejected.Inc()
		}
		return err
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	if b.redis != nil {
		if _, err := b.redis.XAdd(ctx, &goredis.XAddArgs{
			Stream: eventsStream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"event_type": env.EventType,
				"data":       string(payload),
			},
		}).Result(); err != nil {
			log.Printf("[eventbus] redis XAdd failed, falling back to sqlite mirror: %v", err)
			if b.metrics != nil {
				b.metrics.EventBusRedisErrors.Inc()
			}
		} else if b.metrics != nil {
			b.metrics.EventBusPublished.Inc()
		}
	}

	if b.collector != nil {
		if err := b.collector.AppendEvent(env.EventType, payload); err != nil {
			log.Printf("[eventbus] sqlite collector append failed: %v", err)
		}
	}
	return nil
}

// PruneLoop periodically trims the SQLite collector's backlog, mirroring
// event_bus.py's scheduled retention sweep. Blocks until ctx is
// cancelled.
func (b *Bus) PruneLoop(ctx context.Context, interval, maxAge time.Duration) {
	if b.collector == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.collector.PruneEvents(maxAge); err != nil {
				log.Printf("[eventbus] prune failed: %v", err)
			}
		}
	}
}
