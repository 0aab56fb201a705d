// Command guard is the Elite Guard signal engine's composition root: it
// starts the Feed Bridge, Candle Builder, Pattern Engine, Scorer, Shield
// Filter, Publisher, and Exit FSM (internal/engine.Engine) as one running
// pipeline. Grounded on teacher's cmd/mdengine/main.go shape — env config,
// metrics/health server, context-cancel + signal.Notify shutdown, staged
// startup order (storage, then transport, then the pipeline itself).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"eliteguard/internal/config"
	"eliteguard/internal/engine"
	"eliteguard/internal/feed"
	"eliteguard/internal/metrics"
	redisstore "eliteguard/internal/store/redis"
	sqlitestore "eliteguard/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[guard] starting...")

	cfg := config.Load()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[guard] creating sqlite dir: %v", err)
	}
	sqlWriter, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[guard] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)

	// Unlike cmd/eventbus, the engine cannot degrade gracefully without
	// Redis: the Command Bus dispatches exit commands over it and the
	// Publisher publishes signals over it (spec §4.F, §4.G). Fail fast.
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[guard] redis init failed: %v", err)
	}
	defer redisWriter.Close()
	health.SetRedisConnected(true)

	health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)

	if err := os.MkdirAll(filepath.Dir(cfg.TruthLogPath), 0o755); err != nil {
		log.Fatalf("[guard] creating truth log dir: %v", err)
	}
	if cfg.TrackingLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.TrackingLogPath), 0o755); err != nil {
			log.Fatalf("[guard] creating tracking log dir: %v", err)
		}
	}

	source := feed.NewWSSource(cfg.UpstreamAddr)
	eng, err := engine.New(cfg, source, prom, health, redisWriter, sqlWriter)
	if err != nil {
		log.Fatalf("[guard] engine wiring failed: %v", err)
	}

	go eng.Run(ctx)
	health.SetFeedConnected(true)
	health.SetEngineEnabled(true)

	log.Println("[guard] ready")

	<-sigCh
	log.Println("[guard] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[guard] shutdown complete.")
}
