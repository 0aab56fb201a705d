package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"eliteguard/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: ~3h of M1 candles + buffer.
	streamM1MaxLen   = 10800
	defaultLatestTTL = 30 * time.Minute

	// Shield Filter consensus quotes are only useful for a few seconds;
	// spec §4.E rejects any quote older than 60s outright.
	consensusQuoteTTL = 90 * time.Second
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string
	Password string
	DB       int
}

// Writer writes candles, signals and Exit FSM commands to Redis. It also
// offers a consensus-quote cache (SetConsensusQuote/GetConsensusQuote),
// which nothing in the engine calls; the Shield Filter keeps its own
// in-memory quote cache.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads candles (any TF) from candleCh and writes them to Redis.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-candleCh:
			if !ok {
				return
			}
			w.writeCandle(ctx, candle)
		}
	}
}

// PublishCandleBatch writes multiple candles in a single pipeline.
func (w *Writer) PublishCandleBatch(ctx context.Context, candles []model.Candle) {
	if len(candles) == 0 {
		return
	}

	pipe := w.client.Pipeline()
	for _, c := range candles {
		if c.Forming {
			// Forming snapshots are preview-only: publish, don't persist.
			pipe.Publish(ctx, c.StreamKey()+":forming", string(c.JSON()))
			continue
		}
		w.pipelineCandle(ctx, pipe, c)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] candle batch pipeline error (%d candles): %v", len(candles), err)
	}
}

// writeCandle performs pipelined writes for one finalized candle.
func (w *Writer) writeCandle(ctx context.Context, candle model.Candle) {
	if candle.Forming {
		w.client.Publish(ctx, candle.StreamKey()+":forming", string(candle.JSON()))
		return
	}

	pipe := w.client.Pipeline()
	w.pipelineCandle(ctx, pipe, candle)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] pipeline error for %s: %v", candle.Key(), err)
	}
}

func (w *Writer) pipelineCandle(ctx context.Context, pipe goredis.Pipeliner, candle model.Candle) {
	latestKey := fmt.Sprintf("candle:%dm:latest:%s", candle.TF, candle.Symbol)
	streamKey := candle.StreamKey()
	pubsubCh := "pub:" + streamKey
	jsonData := string(candle.JSON())

	maxLen := int64(streamM1MaxLen / candle.TF)
	if maxLen < 500 {
		maxLen = 500
	}

	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)
}

// PublishSignal writes a published Signal to its outbound stream and
// pubsub channel (spec §4.F).
func (w *Writer) PublishSignal(ctx context.Context, s *model.Signal) error {
	jsonData := string(s.JSON())
	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: "signals:" + s.Pair,
		MaxLen: 2000,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, "pub:signal:"+s.Pair, jsonData)
	_, err := pipe.Exec(ctx)
	return err
}

// PublishCommand writes an Exit FSM command to its ticket's outbound
// stream and pubsub channel, the command-channel analogue of
// PublishSignal (spec §4.G: commands are dispatched to the execution
// venue over an outbound PUSH socket; here that socket is a Redis stream
// keyed by ticket so the EA-side consumer can claim in order).
func (w *Writer) PublishCommand(ctx context.Context, cmd *model.Command) error {
	jsonData, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: fmt.Sprintf("commands:%d", cmd.Ticket),
		MaxLen: 500,
		Approx: true,
		Values: map[string]interface{}{"data": string(jsonData)},
	})
	pipe.Publish(ctx, fmt.Sprintf("pub:command:%d", cmd.Ticket), string(jsonData))
	_, err = pipe.Exec(ctx)
	return err
}

// SetConsensusQuote caches a cross-broker consensus mid price for a
// symbol under shield:consensus:<symbol>. The Shield Filter does not read
// this cache.
func (w *Writer) SetConsensusQuote(ctx context.Context, symbol string, mid float64, at time.Time) error {
	key := "shield:consensus:" + symbol
	payload := fmt.Sprintf("%f|%d", mid, at.Unix())
	return w.client.Set(ctx, key, payload, consensusQuoteTTL).Err()
}

// GetConsensusQuote returns the cached consensus mid and its age, or
// ok=false if absent/expired.
func (w *Writer) GetConsensusQuote(ctx context.Context, symbol string) (mid float64, ageSec int64, ok bool, err error) {
	key := "shield:consensus:" + symbol
	val, gerr := w.client.Get(ctx, key).Result()
	if gerr == goredis.Nil {
		return 0, 0, false, nil
	}
	if gerr != nil {
		return 0, 0, false, gerr
	}
	var ts int64
	if _, serr := fmt.Sscanf(val, "%f|%d", &mid, &ts); serr != nil {
		return 0, 0, false, serr
	}
	return mid, time.Now().Unix() - ts, true, nil
}

// LoadTFRegistry reads the tf:enabled set from Redis. Returns an empty
// slice if the key doesn't exist.
func (w *Writer) LoadTFRegistry(ctx context.Context) ([]int, error) {
	members, err := w.client.SMembers(ctx, "tf:enabled").Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis SMEMBERS tf:enabled: %w", err)
	}

	tfs := make([]int, 0, len(members))
	for _, m := range members {
		n := 0
		for _, c := range m {
			if c >= '0' && c <= '9' {
				n = n*10 + int(c-'0')
			}
		}
		if n > 0 {
			tfs = append(tfs, n)
		}
	}
	return tfs, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
