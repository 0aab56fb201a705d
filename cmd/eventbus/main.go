// Command eventbus runs the standalone Event Bus collector (spec §4.H):
// an always-on HTTP sink that validates and durably mirrors events
// published by any other component (engine, console, exit FSM) to the
// Redis stream and the SQLite backlog. Grounded on teacher's
// cmd/mdengine/main.go composition-root shape (env config, metrics/health
// server, context-cancel + signal.Notify shutdown).
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"eliteguard/internal/config"
	"eliteguard/internal/eventbus"
	"eliteguard/internal/metrics"
	redisstore "eliteguard/internal/store/redis"
	sqlitestore "eliteguard/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[eventbus] starting...")

	cfg := config.Load()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsAddr := getEnv("EVENTBUS_METRICS_ADDR", ":9091")
	metricsSrv := metrics.NewServer(metricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	sqlWriter, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[eventbus] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)

	var redisWriter *redisstore.Writer
	redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[eventbus] WARNING: redis init failed: %v (mirroring to sqlite only)", err)
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
	}

	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	var pub eventbus.RedisPublisher
	if redisWriter != nil {
		pub = redisWriter.Client()
	}
	bus := eventbus.New(pub, sqlWriter, prom)

	go bus.PruneLoop(ctx, 1*time.Hour, 7*24*time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/publish", publishHandler(bus))
	httpAddr := getEnv("EVENTBUS_HTTP_ADDR", ":9092")
	srv := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		log.Printf("[eventbus] publish endpoint listening on %s", httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[eventbus] http server error: %v", err)
		}
	}()

	log.Println("[eventbus] ready")

	<-sigCh
	log.Println("[eventbus] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}
	log.Println("[eventbus] shutdown complete.")
}

// publishRequest is the wire shape accepted at /publish, mirroring
// Envelope minus Timestamp (stamped server-side).
type publishRequest struct {
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Data          json.RawMessage `json:"data"`
	CorrelationID string          `json:"correlation_id"`
}

func publishHandler(bus *eventbus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var req publishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}

		env, err := eventbus.NewEnvelope(req.EventType, req.Source, req.Data, req.CorrelationID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := bus.Publish(r.Context(), env); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
