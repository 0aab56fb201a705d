package exitfsm

import (
	"strconv"
	"strings"
	"time"

	"eliteguard/internal/config"
	"eliteguard/internal/model"
)

// Tick is the bid/ask snapshot an exit-profile evaluation runs against.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	TS     time.Time
}

// ExitProfileManager routes every tick for every ENTERED position through
// its tier's exit profile: fixed TP/SL for BEGINNER, partial-close plus
// breakeven plus trailing progression for PLUS/PRO. Grounded directly on
// original_source/src/bitten_core/exit_profiles.py's ExitProfileManager.
type ExitProfileManager struct {
	tiers  *config.TierTable
	specs  func(symbol string) model.SymbolSpec
	store  *StateStore
	bus    *CommandBus
	sentry *Sentry
}

// NewExitProfileManager wires the tier table, per-symbol spec lookup,
// state store, command bus, and sentry together.
func NewExitProfileManager(tiers *config.TierTable, specs func(symbol string) model.SymbolSpec, store *StateStore, bus *CommandBus, sentry *Sentry) *ExitProfileManager {
	return &ExitProfileManager{tiers: tiers, specs: specs, store: store, bus: bus, sentry: sentry}
}

// OnPositionOpen registers a freshly-opened position with the state store.
func (m *ExitProfileManager) OnPositionOpen(p *model.Position) error {
	p.State = model.StateEntered
	p.LotRemaining = p.LotSize
	return m.store.Insert(p)
}

// OnTick evaluates a single tick against the tracked position identified by
// ticket only; other open positions on the same symbol are not evaluated, so
// callers invoke it once per matching ticket.
func (m *ExitProfileManager) OnTick(ticket int64, tick Tick) error {
	pos, ok := m.store.Get(ticket)
	if !ok || pos.State == model.StateClosed {
		return nil
	}

	cfg, ok := m.tiers.Resolve(pos.Tier)
	if !ok {
		cfg, _ = m.tiers.Resolve("BEGINNER")
	}

	// A zero TP1_CLOSE_PCT means "no partials configured" -- the BEGINNER
	// profile (spec: fixed TP, no partials, no trailing).
	if cfg.TP1ClosePct <= 0 {
		return m.handleBeginnerTick(&pos, tick)
	}
	return m.handlePlusProTick(&pos, tick, cfg)
}

func (m *ExitProfileManager) handleBeginnerTick(pos *model.Position, tick Tick) error {
	price := exitSidePrice(pos.Direction, tick)

	if hitTarget(pos.Direction, price, pos.TPPx) {
		return m.closePosition(pos, tick, "tp_hit")
	}
	if hitStop(pos.Direction, price, pos.SLCurrentPx) {
		return m.closePosition(pos, tick, "sl_hit")
	}
	return nil
}

func (m *ExitProfileManager) handlePlusProTick(pos *model.Position, tick Tick, cfg config.TierEntry) error {
	spec := m.specs(pos.Symbol)
	price := exitSidePrice(pos.Direction, tick)
	currentR := m.currentR(*pos, price, spec)

	if hitTarget(pos.Direction, price, pos.TPPx) {
		return m.closePosition(pos, tick, "tp_hit")
	}
	if hitStop(pos.Direction, price, pos.SLCurrentPx) {
		return m.closePosition(pos, tick, "sl_hit")
	}

	if !pos.TP1Done && currentR >= cfg.TP1R {
		if err := m.fireTP1(pos, cfg); err != nil {
			return err
		}
	}

	if !pos.BESet && m.beConditionMet(*pos, currentR, cfg) {
		if err := m.moveToBreakeven(pos, tick, spec); err != nil {
			return err
		}
	}

	if cfg.TrailEnabled && pos.TP1Done && !pos.TrailOn {
		if err := m.startTrailing(pos, cfg); err != nil {
			return err
		}
	}

	if pos.TrailOn {
		if err := m.updateTrail(pos, tick, spec, cfg); err != nil {
			return err
		}
	}

	return nil
}

// currentR expresses unrealized profit as a multiple of the position's
// original risk (RPips).
func (m *ExitProfileManager) currentR(pos model.Position, price float64, spec model.SymbolSpec) float64 {
	if pos.RPips <= 0 {
		return 0
	}
	profitPips := spec.PriceToPips(pos.EntryPx, price)
	if (pos.Direction == model.Buy && price < pos.EntryPx) ||
		(pos.Direction == model.Sell && price > pos.EntryPx) {
		profitPips = -profitPips
	}
	return profitPips / pos.RPips
}

func (m *ExitProfileManager) beConditionMet(pos model.Position, currentR float64, cfg config.TierEntry) bool {
	switch strings.ToUpper(strings.TrimSpace(cfg.MoveBEAt)) {
	case "", "NEVER":
		return false
	case "TP1":
		return pos.TP1Done
	default:
		if threshold, err := strconv.ParseFloat(cfg.MoveBEAt, 64); err == nil {
			return currentR >= threshold
		}
		return pos.TP1Done
	}
}

func (m *ExitProfileManager) fireTP1(pos *model.Position, cfg config.TierEntry) error {
	if pos.HasMilestone(model.MilestoneTP1) {
		return nil
	}
	currentR := cfg.TP1R
	m.sentry.CheckPartial(pos.Ticket, currentR)

	cmd := &model.Command{
		FireID:   pos.FireID,
		Ticket:   pos.Ticket,
		Seq:      m.bus.NextSeq(),
		CmdType:  model.CmdPartialClose,
		Args:     map[string]any{"close_pct": cfg.TP1ClosePct},
		TsMs:     time.Now().UnixMilli(),
		Priority: 1,
	}

	updated, err := m.store.Mutate(pos.Ticket, func(p *model.Position) {
		p.TP1Done = true
		p.State = model.StateTP1Done
		p.LotRemaining = p.LotRemaining * (1 - cfg.TP1ClosePct)
		p.MarkMilestone(model.MilestoneTP1)
		p.LastUpdateTS = time.Now().UTC()
	})
	if err != nil {
		return err
	}
	*pos = updated
	m.bus.Enqueue(cmd)
	return nil
}

func (m *ExitProfileManager) moveToBreakeven(pos *model.Position, tick Tick, spec model.SymbolSpec) error {
	if pos.HasMilestone(model.MilestoneBE) {
		return nil
	}
	m.sentry.CheckBEMove(pos.Ticket, pos.TP1Done)

	spreadPips := spec.SpreadPips(tick.Bid, tick.Ask)
	offset := spec.BEOffsetPips(spreadPips)
	newSL := spec.PricePlusPips(pos.EntryPx, pos.Direction, offset)

	cmd := &model.Command{
		FireID:   pos.FireID,
		Ticket:   pos.Ticket,
		Seq:      m.bus.NextSeq(),
		CmdType:  model.CmdModifySL,
		Args:     map[string]any{"new_sl": newSL},
		TsMs:     time.Now().UnixMilli(),
		Priority: 1,
	}

	updated, err := m.store.Mutate(pos.Ticket, func(p *model.Position) {
		p.BESet = true
		p.State = model.StateBESet
		p.SLCurrentPx = newSL
		p.MarkMilestone(model.MilestoneBE)
		p.LastUpdateTS = time.Now().UTC()
	})
	if err != nil {
		return err
	}
	*pos = updated
	m.bus.Enqueue(cmd)
	return nil
}

func (m *ExitProfileManager) startTrailing(pos *model.Position, cfg config.TierEntry) error {
	if pos.HasMilestone(model.MilestoneTrailStart) {
		return nil
	}
	m.sentry.CheckTrailStart(pos.Ticket, pos.TP1Done)

	cmd := &model.Command{
		FireID:  pos.FireID,
		Ticket:  pos.Ticket,
		Seq:     m.bus.NextSeq(),
		CmdType: model.CmdStartTrail,
		Args: map[string]any{
			"method":    cfg.TrailMethod,
			"atr_mult":  cfg.TrailATRMult,
			"step_pips": cfg.TrailStepPips,
		},
		TsMs:     time.Now().UnixMilli(),
		Priority: 1,
	}

	updated, err := m.store.Mutate(pos.Ticket, func(p *model.Position) {
		p.TrailOn = true
		p.State = model.StateTrailing
		p.MarkMilestone(model.MilestoneTrailStart)
		p.LastUpdateTS = time.Now().UTC()
	})
	if err != nil {
		return err
	}
	*pos = updated
	m.bus.Enqueue(cmd)
	return nil
}

// updateTrail tightens the stop as price advances; it never loosens it.
func (m *ExitProfileManager) updateTrail(pos *model.Position, tick Tick, spec model.SymbolSpec, cfg config.TierEntry) error {
	price := exitSidePrice(pos.Direction, tick)
	distPips := spec.CalculateTrailDistance(0, cfg.TrailMethod)
	if cfg.TrailStepPips > 0 {
		distPips = cfg.TrailStepPips
	}

	candidate := spec.PricePlusPips(price, oppositeDirection(pos.Direction), distPips)
	if !trailTightens(pos.Direction, pos.SLCurrentPx, candidate) {
		return nil
	}

	cmd := &model.Command{
		FireID:   pos.FireID,
		Ticket:   pos.Ticket,
		Seq:      m.bus.NextSeq(),
		CmdType:  model.CmdModifySL,
		Args:     map[string]any{"new_sl": candidate},
		TsMs:     time.Now().UnixMilli(),
		Priority: 1,
	}

	updated, err := m.store.Mutate(pos.Ticket, func(p *model.Position) {
		p.SLCurrentPx = candidate
		p.LastUpdateTS = time.Now().UTC()
	})
	if err != nil {
		return err
	}
	*pos = updated
	m.bus.Enqueue(cmd)
	return nil
}

func (m *ExitProfileManager) closePosition(pos *model.Position, tick Tick, reason string) error {
	spec := m.specs(pos.Symbol)
	price := exitSidePrice(pos.Direction, tick)
	currentR := m.currentR(*pos, price, spec)
	m.sentry.CheckClose(pos.Ticket, currentR)

	cmd := &model.Command{
		FireID:   pos.FireID,
		Ticket:   pos.Ticket,
		Seq:      m.bus.NextSeq(),
		CmdType:  model.CmdClose,
		Args:     map[string]any{"reason": reason},
		TsMs:     time.Now().UnixMilli(),
		Priority: 0,
	}
	m.bus.Enqueue(cmd)

	_, err := m.store.Mutate(pos.Ticket, func(p *model.Position) {
		p.State = model.StateClosed
		p.LastUpdateTS = time.Now().UTC()
	})
	return err
}

// OnPositionClosed finalizes bookkeeping once the broker confirms a close
// (e.g. after a CLOSE command round-trips).
func (m *ExitProfileManager) OnPositionClosed(ticket int64, currentR float64) error {
	m.sentry.CheckClose(ticket, currentR)
	return m.store.Remove(ticket)
}

func exitSidePrice(dir model.Direction, tick Tick) float64 {
	if dir == model.Buy {
		return tick.Bid
	}
	return tick.Ask
}

func oppositeDirection(dir model.Direction) model.Direction {
	if dir == model.Buy {
		return model.Sell
	}
	return model.Buy
}

func hitTarget(dir model.Direction, price, tp float64) bool {
	if tp == 0 {
		return false
	}
	if dir == model.Buy {
		return price >= tp
	}
	return price <= tp
}

func hitStop(dir model.Direction, price, sl float64) bool {
	if sl == 0 {
		return false
	}
	if dir == model.Buy {
		return price <= sl
	}
	return price >= sl
}

// trailTightens reports whether candidate is a strictly better (tighter,
// never looser) stop than current for dir.
func trailTightens(dir model.Direction, current, candidate float64) bool {
	if current == 0 {
		return true
	}
	if dir == model.Buy {
		return candidate > current
	}
	return candidate < current
}
