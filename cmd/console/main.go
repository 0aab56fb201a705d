// Command console is a small TOTP-gated admin surface (spec §4.G): its
// only job today is letting an on-call operator manually resume the
// hybrid engine after Sentry's auto-disable trips, without giving the
// engine process itself an admin HTTP surface to defend. Grounded on
// teacher's cmd/mdengine/main.go composition-root shape (env config,
// metrics/health server, signal-driven shutdown); the TOTP check itself
// follows teacher's own github.com/pquerna/otp/totp usage in
// cmd/mdengine/main.go's broker login, here validating an operator code
// instead of generating a login code.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eliteguard/internal/config"
	"eliteguard/internal/metrics"
	redisstore "eliteguard/internal/store/redis"

	"github.com/pquerna/otp/totp"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[console] starting...")

	cfg := config.Load()
	secret := getEnv("CONSOLE_TOTP_SECRET", "")
	if secret == "" {
		log.Fatal("[console] CONSOLE_TOTP_SECRET must be set (operator's enrolled TOTP secret)")
	}

	health := metrics.NewHealthStatus()
	metricsAddr := getEnv("CONSOLE_METRICS_ADDR", ":9093")
	metricsSrv := metrics.NewServer(metricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[console] redis init failed: %v", err)
	}
	defer redisWriter.Close()
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, redisWriter.Client(), nil, 10*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/sentry/resume", resumeHandler(redisWriter, secret))
	httpAddr := getEnv("CONSOLE_HTTP_ADDR", ":9094")
	srv := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		log.Printf("[console] admin endpoint listening on %s", httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[console] http server error: %v", err)
		}
	}()

	log.Println("[console] ready")

	<-sigCh
	log.Println("[console] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Println("[console] shutdown complete.")
}

// resumeHandler validates a TOTP code against the operator's enrolled
// secret, then publishes the resume signal the engine's Sentry watcher
// consumes (internal/engine.Engine.watchAdminCommands). A bad or missing
// code never reaches Redis.
func resumeHandler(redisWriter *redisstore.Writer, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    6,
			Algorithm: totp.AlgorithmSHA1,
		})
		if err != nil || !valid {
			log.Printf("[console] rejected sentry/resume: invalid TOTP code")
			http.Error(w, "invalid code", http.StatusUnauthorized)
			return
		}

		if err := redisWriter.Client().Publish(r.Context(), "admin:sentry:resume", "resume").Err(); err != nil {
			http.Error(w, "publish failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		log.Printf("[console] sentry resume approved and published")
		w.WriteHeader(http.StatusAccepted)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
