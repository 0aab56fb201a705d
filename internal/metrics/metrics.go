package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	TicksTotal    prometheus.Counter
	CandlesTotal  prometheus.Counter
	FeedRebinds   prometheus.Counter
	DroppedTicks  prometheus.Counter
	RedisWriteDur prometheus.Histogram
	SQLiteCommit  prometheus.Histogram
	CandleLag     prometheus.Gauge

	TFCandlesTotal *prometheus.CounterVec
	TFBuildDur     prometheus.Histogram

	RingBufOverflow prometheus.Counter

	FanoutDropsTotal     *prometheus.CounterVec
	ChannelSaturationPct *prometheus.GaugeVec

	StaleCandlesRejected prometheus.Counter

	PELMessagesReclaimed prometheus.Counter

	RedisCircuitBreakerState prometheus.Gauge
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	E2ELatency       prometheus.Histogram
	WatermarkDelay   prometheus.Gauge
	LateTicks        prometheus.Counter
	ReorderBufferLen prometheus.Gauge

	MarketState        prometheus.Gauge
	SessionTransitions *prometheus.CounterVec

	// Pattern detection / scoring (spec §4.C, §4.D)
	PatternsDetected  *prometheus.CounterVec // labels: pattern_id
	ScoringDur        prometheus.Histogram
	SignalsPublished  *prometheus.CounterVec // labels: pair, mode
	SignalsRejected   *prometheus.CounterVec // labels: reason
	ChopFilterDropped prometheus.Counter

	// Shield Filter (spec §4.E)
	ShieldRejections *prometheus.CounterVec // labels: reason
	ShieldScore      prometheus.Histogram

	// Exit FSM (spec §4.G)
	CommandsEnqueued  *prometheus.CounterVec // labels: command_type
	CommandsRetried   prometheus.Counter
	MilestonesHit     *prometheus.CounterVec // labels: milestone
	SentryViolations  *prometheus.CounterVec // labels: violation_type, severity
	AutoDisableEvents prometheus.Counter

	// Event Bus (spec §4.H)
	EventBusPublished   prometheus.Counter
	EventBusRejected    prometheus.Counter
	EventBusRedisErrors prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_ticks_total",
			Help: "Total ticks received from the feed bridge",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_candles_total",
			Help: "Total M1 candles emitted",
		}),
		FeedRebinds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_feed_rebinds_total",
			Help: "Total upstream feed rebind attempts",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_dropped_ticks_total",
			Help: "Ticks dropped (late or channel full)",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eliteguard_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eliteguard_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eliteguard_candle_lag_seconds",
			Help: "Lag between candle timestamp and emission time",
		}),

		TFCandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_tf_candles_total",
			Help: "Total TF candles emitted (by timeframe)",
		}, []string{"tf"}),
		TFBuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eliteguard_tf_build_duration_seconds",
			Help:    "TF resampler processing latency per candle",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),

		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_ringbuf_overflow_total",
			Help: "Ring buffer overwrites (evicted candles)",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_fanout_drops_total",
			Help: "Candles dropped by FanOut bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eliteguard_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		StaleCandlesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_stale_candles_rejected_total",
			Help: "Candles rejected by TF Builder due to staleness",
		}),

		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_pel_messages_reclaimed_total",
			Help: "Event bus messages reclaimed from dead consumers via XCLAIM",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eliteguard_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),

		E2ELatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eliteguard_e2e_latency_seconds",
			Help:    "End-to-end latency from tick ingest to signal publish",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		WatermarkDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eliteguard_watermark_delay_seconds",
			Help: "Lag between wall-clock time and event-time watermark",
		}),
		LateTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_late_ticks_total",
			Help: "Ticks dropped because they arrived behind the event-time watermark",
		}),
		ReorderBufferLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eliteguard_reorder_buffer_len",
			Help: "Current number of candle buckets held in the reorder buffer",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eliteguard_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_session_transitions_total",
			Help: "Market session transitions (open, close, feed_rebind)",
		}, []string{"type"}),

		PatternsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_patterns_detected_total",
			Help: "Pattern candidates detected, by pattern_id",
		}, []string{"pattern_id"}),
		ScoringDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eliteguard_scoring_duration_seconds",
			Help:    "Confluence scoring pipeline latency",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_signals_published_total",
			Help: "Signals published downstream, by pair and mode",
		}, []string{"pair", "mode"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_signals_rejected_total",
			Help: "Candidate signals rejected before publish, by reason",
		}, []string{"reason"}),
		ChopFilterDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_chop_filter_dropped_total",
			Help: "Candidates dropped by the chop filter",
		}),

		ShieldRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_shield_rejections_total",
			Help: "Shield Filter rejections, by reason",
		}, []string{"reason"}),
		ShieldScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eliteguard_shield_score",
			Help:    "Shield Filter consensus scores",
			Buckets: []float64{0, 25, 50, 65, 75, 85, 95, 100},
		}),

		CommandsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_commands_enqueued_total",
			Help: "Exit FSM commands enqueued, by command_type",
		}, []string{"command_type"}),
		CommandsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_commands_retried_total",
			Help: "Command bus retry attempts",
		}),
		MilestonesHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_milestones_hit_total",
			Help: "Exit milestones reached, by milestone",
		}, []string{"milestone"}),
		SentryViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eliteguard_sentry_violations_total",
			Help: "Safety monitor violations, by violation_type and severity",
		}, []string{"violation_type", "severity"}),
		AutoDisableEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_auto_disable_total",
			Help: "Times the bad-exit streak tripped auto-disable",
		}),

		EventBusPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_eventbus_published_total",
			Help: "Envelopes published to the event bus Redis stream",
		}),
		EventBusRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_eventbus_rejected_total",
			Help: "Envelopes rejected by schema validation",
		}),
		EventBusRedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eliteguard_eventbus_redis_errors_total",
			Help: "Event bus publishes that fell back to the sqlite mirror after a Redis error",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.CandlesTotal,
		m.FeedRebinds,
		m.DroppedTicks,
		m.RedisWriteDur,
		m.SQLiteCommit,
		m.CandleLag,
		m.TFCandlesTotal,
		m.TFBuildDur,
		m.RingBufOverflow,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.StaleCandlesRejected,
		m.PELMessagesReclaimed,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.E2ELatency,
		m.WatermarkDelay,
		m.LateTicks,
		m.ReorderBufferLen,
		m.MarketState,
		m.SessionTransitions,
		m.PatternsDetected,
		m.ScoringDur,
		m.SignalsPublished,
		m.SignalsRejected,
		m.ChopFilterDropped,
		m.ShieldRejections,
		m.ShieldScore,
		m.CommandsEnqueued,
		m.CommandsRetried,
		m.MilestonesHit,
		m.SentryViolations,
		m.AutoDisableEvents,
		m.EventBusPublished,
		m.EventBusRejected,
		m.EventBusRedisErrors,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	TFBuilderOK    bool      `json:"tf_builder_ok"`
	EnabledTFs     []int     `json:"enabled_tfs"`
	EngineEnabled  bool      `json:"engine_enabled"` // flipped off by Sentry auto-disable

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:     time.Now(),
		EngineEnabled: true,
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetTFBuilderOK(v bool) {
	h.mu.Lock()
	h.TFBuilderOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
	h.mu.Unlock()
}

// SetEngineEnabled reflects the Sentry auto-disable flag (spec §4.G).
func (h *HealthStatus) SetEngineEnabled(v bool) {
	h.mu.Lock()
	h.EngineEnabled = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}
	if !h.EngineEnabled {
		overallStatus = "auto_disabled"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		TFBuilderOK     bool    `json:"tf_builder_ok"`
		EngineEnabled   bool    `json:"engine_enabled"`
		EnabledTFs      []int   `json:"enabled_tfs"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		TFBuilderOK:     h.TFBuilderOK,
		EngineEnabled:   h.EngineEnabled,
		EnabledTFs:      h.EnabledTFs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
