package engine

import (
	"context"
	"log"
	"time"

	"eliteguard/internal/config"
	"eliteguard/internal/exitfsm"
	"eliteguard/internal/feed"
	"eliteguard/internal/markethours"
	"eliteguard/internal/marketdata/agg"
	"eliteguard/internal/marketdata/bus"
	"eliteguard/internal/marketdata/tfbuilder"
	"eliteguard/internal/metrics"
	"eliteguard/internal/model"
	"eliteguard/internal/news"
	"eliteguard/internal/notification"
	"eliteguard/internal/pattern"
	"eliteguard/internal/publisher"
	"eliteguard/internal/scoring"
	"eliteguard/internal/shield"
	"eliteguard/internal/store/filelog"
	redisstore "eliteguard/internal/store/redis"
	sqlitestore "eliteguard/internal/store/sqlite"
)

// candleChanBuf sizes the M1/TF candle channels; one tick-driven engine,
// generous enough that a slow consumer stalls the pipeline visibly (via
// fan-out drop logging) rather than deadlocking the feed reader.
const candleChanBuf = 2048

// Engine is the composition root: it owns every long-lived component the
// dataflow of spec §2 needs and exposes a single Run to start them all.
// cmd/guard stays a thin env-config-and-signal-handling shell around it,
// the same split teacher's cmd/mdengine/main.go draws between its own
// main and the pieces it wires.
type Engine struct {
	cfg *config.Config

	symbols     *config.SymbolTable
	tiers       *config.TierTable
	payouts     *scoring.PayoutTable
	newsEval    *news.Evaluator
	metrics     *metrics.Metrics
	health      *metrics.HealthStatus
	redisWriter *redisstore.Writer
	sqlWriter   *sqlitestore.Writer

	ringRegistry *RingRegistry
	aggregator   *agg.Aggregator
	tfBuilder    *tfbuilder.Builder
	patternEng   *pattern.Engine
	scorer       *scoring.Scorer
	shieldFilter *shield.Shield
	pub          *publisher.Publisher

	stateStore     *exitfsm.StateStore
	cmdBus         *exitfsm.CommandBus
	sentryMonitor  *exitfsm.Sentry
	exitMgr        *exitfsm.ExitProfileManager
	timeoutScanner *exitfsm.TimeoutScanner
	cmdSender      *CommandSender

	bridge *feed.Bridge

	tickCh  chan model.Tick
	batchCh chan feed.OHLCBatch
	m1Ch    chan model.Candle
	tfCh    chan model.Candle
}

// New wires every component together but starts nothing; call Run to
// start the goroutines. source is the Feed Bridge's inbound transport
// (feed.NewWSSource for a live deployment, a fake in tests).
func New(cfg *config.Config, source feed.Source, m *metrics.Metrics, health *metrics.HealthStatus, redisWriter *redisstore.Writer, sqlWriter *sqlitestore.Writer) (*Engine, error) {
	symbolTable, err := config.LoadSymbolTable(cfg.SymbolTablePath)
	if err != nil {
		return nil, err
	}
	tierTable, err := config.LoadTierTable(cfg.TierTablePath)
	if err != nil {
		return nil, err
	}
	payouts, err := scoring.LoadPayoutTable(cfg.PayoutTablePath)
	if err != nil {
		return nil, err
	}
	calendar, err := news.LoadCalendar(cfg.NewsCalendarPath)
	if err != nil {
		return nil, err
	}
	newsEval := news.NewEvaluator(calendar)
	newsEval.SetEnabled(true)

	specs := func(symbol string) model.SymbolSpec { return symbolTable.Get(symbol) }

	ringRegistry := NewRingRegistry()

	patternEng := pattern.NewEngine(256)
	patternEng.Register(&pattern.FairValueGapFill{})
	patternEng.Register(&pattern.LiquiditySweepReversal{})
	patternEng.Register(&pattern.MicroBreakoutRetest{})
	patternEng.Register(&pattern.MomentumBurst{})
	patternEng.Register(&pattern.OrderBlockBounce{})
	patternEng.Register(&pattern.SweepAndReturn{})
	patternEng.Register(pattern.NewSessionOpenFade())
	patternEng.Register(pattern.NewVCBBreakout())

	scorerCfg := scoring.DefaultConfig()
	scorerCfg.Cooldown = time.Duration(cfg.SignalCooldownSec) * time.Second
	scorerCfg.SniperMinRR = cfg.MinRRRatio
	scorer := scoring.NewScorer(scorerCfg, payouts, newsEval, nil)

	cmdSender := NewCommandSender(redisWriter)

	stateStore := exitfsm.NewStateStore(sqlWriter)
	if err := stateStore.LoadOpen(); err != nil {
		return nil, err
	}

	cmdBus := exitfsm.NewCommandBus(cmdSender)

	alerter := notification.NewSentryAlerter(context.Background(), notification.NewLogNotifier())
	sentryMonitor := exitfsm.NewSentry(alerter, m)

	exitMgr := exitfsm.NewExitProfileManager(tierTable, specs, stateStore, cmdBus, sentryMonitor)

	maxHold := func(tier string) time.Duration {
		entry, ok := tierTable.Resolve(tier)
		if !ok || entry.MaxHoldMin <= 0 {
			return 0
		}
		return time.Duration(entry.MaxHoldMin) * time.Minute
	}
	timeoutScanner := exitfsm.NewTimeoutScanner(stateStore, cmdBus, sqlWriter, maxHold)

	exitBridge := NewExitBridge(stateStore, exitMgr, specs)

	tickCh := make(chan model.Tick, candleChanBuf)
	batchCh := make(chan feed.OHLCBatch, candleChanBuf)
	m1Ch := make(chan model.Candle, candleChanBuf)
	tfCh := make(chan model.Candle, candleChanBuf)

	managedSymbols := cfg.ParseSymbols()
	bridge := feed.New(source, managedSymbols, tickCh, batchCh, exitBridge, exitBridge)

	var quoteSource shield.QuoteSource = NewFeedQuoteSource("primary-feed", bridge)
	shieldFilter := shield.New([]shield.QuoteSource{quoteSource})

	truthWriter, err := buildTruthWriter(cfg)
	if err != nil {
		return nil, err
	}
	pub := publisher.New(redisWriter, truthWriter)

	return &Engine{
		cfg:            cfg,
		symbols:        symbolTable,
		tiers:          tierTable,
		payouts:        payouts,
		newsEval:       newsEval,
		metrics:        m,
		health:         health,
		redisWriter:    redisWriter,
		sqlWriter:      sqlWriter,
		ringRegistry:   ringRegistry,
		aggregator:     agg.New(),
		tfBuilder:      tfbuilder.New([]int{5, 15}),
		patternEng:     patternEng,
		scorer:         scorer,
		shieldFilter:   shieldFilter,
		pub:            pub,
		stateStore:     stateStore,
		cmdBus:         cmdBus,
		sentryMonitor:  sentryMonitor,
		exitMgr:        exitMgr,
		timeoutScanner: timeoutScanner,
		cmdSender:      cmdSender,
		bridge:         bridge,
		tickCh:         tickCh,
		batchCh:        batchCh,
		m1Ch:           m1Ch,
		tfCh:           tfCh,
	}, nil
}

// Run starts every goroutine and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	managedSymbols := e.cfg.ParseSymbols()
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	go e.bridge.Run(ctx)
	go e.aggregator.Run(ctx, e.tickCh, e.m1Ch)
	go e.consumeBatches(ctx)

	m1Fanout := bus.New(candleChanBuf)
	ringM1Ch := m1Fanout.Subscribe()
	tfBuildCh := m1Fanout.Subscribe()
	redisM1Ch := m1Fanout.Subscribe()
	go m1Fanout.Run(ctx, e.m1Ch)

	go func() {
		for c := range ringM1Ch {
			e.ringRegistry.PushM1(c)
		}
	}()
	go e.tfBuilder.Run(ctx, tfBuildCh, e.tfCh)
	if e.redisWriter != nil {
		go e.redisWriter.Run(ctx, redisM1Ch)
	} else {
		go drain(redisM1Ch)
	}

	go func() {
		for c := range e.tfCh {
			e.ringRegistry.PushTF(c)
			if e.redisWriter != nil {
				e.redisWriter.PublishCandleBatch(ctx, []model.Candle{c})
			}
		}
	}()

	specs := func(symbol string) model.SymbolSpec { return e.symbols.Get(symbol) }
	go e.patternEng.Run(ctx, managedSymbols, specs, e.ringRegistry, time.Duration(e.cfg.ScanIntervalSec)*time.Second)
	go e.consumeCandidates(ctx, specs)

	go e.cmdBus.Run(ctx)
	go e.timeoutScanner.Run(done, 30*time.Second)
	go e.watchAdminCommands(ctx)

	<-ctx.Done()
	log.Printf("[engine] context cancelled, shutting down")
}

// adminSentryResumeChannel is the Redis pub/sub channel cmd/console
// publishes to once an operator's TOTP code validates (spec §4.G: a
// tripped Sentry auto-disable requires deliberate human review via a
// separate admin surface, not the engine process itself).
const adminSentryResumeChannel = "admin:sentry:resume"

// watchAdminCommands listens for out-of-band admin instructions published
// by cmd/console. The engine process never exposes its own admin surface;
// it only reacts to a narrow, explicit set of pub/sub messages.
func (e *Engine) watchAdminCommands(ctx context.Context) {
	if e.redisWriter == nil {
		return
	}
	pubsub := e.redisWriter.Client().Subscribe(ctx, adminSentryResumeChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			log.Printf("[engine] admin resume command received: %s", msg.Payload)
			e.sentryMonitor.Resume()
		}
	}
}

// consumeBatches applies OHLC_BATCH pushes (spec §9's bulk catch-up frame)
// directly into the ring registry, bypassing the Aggregator/TF Builder
// since the upstream already finalized these bars.
func (e *Engine) consumeBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-e.batchCh:
			if !ok {
				return
			}
			for _, c := range b.M1 {
				e.ringRegistry.PushM1(c)
			}
			for _, c := range b.M5 {
				e.ringRegistry.PushTF(c)
			}
			for _, c := range b.M15 {
				e.ringRegistry.PushTF(c)
			}
		}
	}
}

// consumeCandidates drains the Pattern Engine's candidates, runs each
// through the Scorer, Shield Filter, and Publisher in turn (spec §2's
// scan -> score -> shield -> publish dataflow).
func (e *Engine) consumeCandidates(ctx context.Context, specs func(string) model.SymbolSpec) {
	for {
		select {
		case <-ctx.Done():
			return
		case cand, ok := <-e.patternEng.Signals():
			if !ok {
				return
			}
			e.scoreAndPublish(ctx, cand, specs)
		}
	}
}

func (e *Engine) scoreAndPublish(ctx context.Context, cand *model.PatternSignal, specs func(string) model.SymbolSpec) {
	m1, m5, m15 := e.ringRegistry.Snapshot(cand.Pair)
	rings := pattern.Rings{
		Symbol:  cand.Pair,
		Spec:    specs(cand.Pair),
		Session: markethours.Classify(time.Now()),
		M1:      m1,
		M5:      m5,
		M15:     m15,
	}

	sig, err := e.scorer.Score(cand, rings, time.Now())
	if err != nil {
		log.Printf("[engine] scorer rejected %s %s: %v", cand.Pair, cand.PatternID, err)
		return
	}
	if sig == nil {
		return
	}

	result := e.shieldFilter.Validate(ctx, sig, time.Now())
	sig.ShieldScore = result.ShieldScore
	sig.CitadelShielded = result.NumSources > 0
	if !result.Accepted {
		log.Printf("[engine] shield rejected signal %s: %s", sig.SignalID, result.Reason)
		return
	}

	if err := e.pub.Publish(ctx, sig, nil); err != nil {
		log.Printf("[engine] publish failed for %s: %v", sig.SignalID, err)
	}
}

func drain(ch <-chan model.Candle) {
	for range ch {
	}
}

// buildTruthWriter opens the truth/tracking log files the Publisher
// appends every published signal to (spec §4.F).
func buildTruthWriter(cfg *config.Config) (model.TruthLogWriter, error) {
	return filelog.New(cfg.TruthLogPath, cfg.TrackingLogPath)
}
