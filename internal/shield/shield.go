// Package shield implements the Shield Filter post-processor of spec §4.E:
// a cross-broker consensus check that either enhances an accepted Signal or
// rejects it outright. Grounded on
// original_source/citadel_shield_filter.py's get_consensus_price /
// detect_manipulation / enhance_signal_score / validate_and_enhance, with
// the concrete broker-API scaffolding replaced by an explicit QuoteSource
// interface so deployments and tests wire their own sources instead of the
// Python source's global singleton lookups.
package shield

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"eliteguard/internal/model"
)

// QuoteSource returns the current mid price for symbol from one external
// venue. Simulated/demo sources must never be wired into a live deployment
// (spec §4.E) — that guarantee lives at the composition root, not here.
type QuoteSource interface {
	Name() string
	Quote(ctx context.Context, symbol string) (mid float64, ok bool, err error)
}

const (
	minSources        = 3
	maxOutliers       = 1
	minConfidence     = 75.0
	maxDeviationPct   = 0.5
	maxConsensusAge   = 60 * time.Second
	bucketWidth       = 15 * time.Second
	outlierZThreshold = 2.0
)

type cacheEntry struct {
	bucket  int64
	mid     float64
	at      time.Time
}

// Shield runs the consensus check against a fixed set of external quote
// sources, bucketed per (symbol, 15s window) to avoid hammering sources
// every cycle.
type Shield struct {
	sources []QuoteSource

	mu    sync.Mutex
	cache map[string]cacheEntry // "symbol|source" -> last successful quote in its bucket
}

// New builds a Shield over the given sources.
func New(sources []QuoteSource) *Shield {
	return &Shield{sources: sources, cache: make(map[string]cacheEntry)}
}

// Result is what Validate returns: either an enhancement to apply to the
// Signal, or a rejection reason.
type Result struct {
	Accepted    bool
	Reason      string
	ShieldScore float64
	Consensus   float64
	NumSources  int
	NumOutliers int
}

// Validate runs the consensus check for sig and returns the verdict. On
// acceptance, callers apply the returned ShieldScore/Consensus to the
// Signal themselves (Shield does not mutate model.Signal, keeping this
// package dependency-free of the signal's XP/tier fields).
func (s *Shield) Validate(ctx context.Context, sig *model.Signal, now time.Time) Result {
	quotes := s.gather(ctx, sig.Pair, now)
	if len(quotes) < minSources {
		// Pass-through without enhancement: not enough independent sources
		// to form a consensus, but the signal itself is not rejected.
		return Result{Accepted: true, NumSources: len(quotes)}
	}

	median, sigma := medianStddev(quotes)
	outliers := 0
	for _, q := range quotes {
		if sigma > 0 && math.Abs(q-median) > outlierZThreshold*sigma {
			outliers++
		}
	}
	confidence := float64(len(quotes)-outliers) / float64(len(quotes)) * 100

	if median == 0 {
		return Result{Accepted: false, Reason: "no_consensus"}
	}
	deviationPct := math.Abs(sig.EntryPrice-median) / median * 100

	switch {
	case deviationPct > maxDeviationPct:
		return Result{Accepted: false, Reason: "entry_deviation", Consensus: median, NumSources: len(quotes), NumOutliers: outliers}
	case confidence < minConfidence:
		return Result{Accepted: false, Reason: "low_confidence", Consensus: median, NumSources: len(quotes), NumOutliers: outliers}
	case outliers > maxOutliers:
		return Result{Accepted: false, Reason: "too_many_outliers", Consensus: median, NumSources: len(quotes), NumOutliers: outliers}
	}

	confBonus := math.Min(8, (confidence-minConfidence)/(100-minConfidence)*8)
	sourceBonus := math.Min(3, float64(len(quotes)-minSources))
	shieldScore := math.Min(90, confidence+confBonus+sourceBonus)

	return Result{
		Accepted:    true,
		ShieldScore: shieldScore,
		Consensus:   median,
		NumSources:  len(quotes),
		NumOutliers: outliers,
	}
}

// gather queries every source for symbol, reusing a cached quote if it
// falls in the current 15s bucket, and drops any quote older than
// maxConsensusAge.
func (s *Shield) gather(ctx context.Context, symbol string, now time.Time) []float64 {
	bucket := now.Unix() / int64(bucketWidth.Seconds())
	var out []float64

	for _, src := range s.sources {
		key := symbol + "|" + src.Name()

		s.mu.Lock()
		entry, ok := s.cache[key]
		s.mu.Unlock()

		if ok && entry.bucket == bucket {
			if now.Sub(entry.at) <= maxConsensusAge {
				out = append(out, entry.mid)
			}
			continue
		}

		mid, ok, err := src.Quote(ctx, symbol)
		if err != nil || !ok {
			continue
		}
		s.mu.Lock()
		s.cache[key] = cacheEntry{bucket: bucket, mid: mid, at: now}
		s.mu.Unlock()
		out = append(out, mid)
	}
	return out
}

func medianStddev(vals []float64) (median, stddev float64) {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(n)
	var variance float64
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n)
	stddev = math.Sqrt(variance)
	return median, stddev
}
