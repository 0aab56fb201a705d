package exitfsm

import (
	"log"
	"strconv"
	"time"

	"eliteguard/internal/model"
)

// TimeoutScanner enforces per-tier max-hold deadlines. Grounded on
// original_source/src/bitten_core/timers.py's TimerManager, but redesigned
// per spec §9: instead of one OS timer/thread per ticket, it sweeps every
// ENTERED position on a fixed interval and compares elapsed hold time
// against the tier's configured MAX_HOLD_MIN. This trades per-ticket timer
// precision for a single bounded goroutine regardless of open-position
// count.
type TimeoutScanner struct {
	store   *StateStore
	bus     *CommandBus
	meta    model.TimeoutMetaStore
	maxHold func(tier string) time.Duration
}

// NewTimeoutScanner wires the state store, command bus, and timeout-meta
// persistence together. maxHold resolves a tier name to its configured
// max-hold duration (via config.TierTable.Resolve's MaxHoldMin field).
func NewTimeoutScanner(store *StateStore, bus *CommandBus, meta model.TimeoutMetaStore, maxHold func(tier string) time.Duration) *TimeoutScanner {
	return &TimeoutScanner{store: store, bus: bus, meta: meta, maxHold: maxHold}
}

// Run sweeps every tracked position once per interval until done is
// closed. Callers typically run this in its own goroutine alongside
// CommandBus.Run.
func (t *TimeoutScanner) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.sweepOnce(time.Now())
		}
	}
}

func (t *TimeoutScanner) sweepOnce(now time.Time) {
	for _, p := range t.store.Snapshot() {
		if p.State != model.StateEntered {
			continue
		}
		if p.ExpiresAt.IsZero() || now.Before(p.ExpiresAt) {
			continue
		}
		t.expire(p, now)
	}
}

func (t *TimeoutScanner) expire(p model.Position, now time.Time) {
	heldMin := int(now.Sub(p.OpenTS).Minutes())
	reason := "timeout_" + strconv.Itoa(heldMin) + "min"

	cmd := &model.Command{
		FireID:   p.FireID,
		Ticket:   p.Ticket,
		Seq:      t.bus.NextSeq(),
		CmdType:  model.CmdClose,
		Args:     map[string]any{"reason": reason},
		TsMs:     now.UnixMilli(),
		Priority: 0,
	}
	t.bus.Enqueue(cmd)
	log.Printf("[exitfsm] timeout close ticket=%d held=%dm reason=%s", p.Ticket, heldMin, reason)

	if t.meta != nil {
		if err := t.meta.ClearTimeoutMeta(p.Ticket); err != nil {
			log.Printf("[exitfsm] clear timeout meta ticket=%d: %v", p.Ticket, err)
		}
	}
}

// Arm records a position's max-hold deadline both in-memory (Position's
// ExpiresAt, via StateStore.Mutate) and in durable TimeoutMeta storage, for
// warm-start recovery after a restart.
func (t *TimeoutScanner) Arm(ticket int64, openTS time.Time, tier string) error {
	dur := t.maxHold(tier)
	expiresAt := openTS.Add(dur)

	if _, err := t.store.Mutate(ticket, func(p *model.Position) {
		p.ExpiresAt = expiresAt
	}); err != nil {
		return err
	}

	if t.meta == nil {
		return nil
	}
	return t.meta.SetTimeoutMeta(model.TimeoutMeta{
		Ticket:           ticket,
		OpenTSUTC:        openTS.UTC().Format(time.RFC3339),
		PreTP1MaxHoldMin: int(dur.Minutes()),
	})
}

// Disarm clears a position's timeout deadline (ExpiresAt) and its persisted
// TimeoutMeta row. ExitProfileManager does not call it on TP1 or on close:
// after TP1 the sweep skips the position because it is no longer ENTERED,
// but the persisted row stays until Disarm is called or the timeout fires.
func (t *TimeoutScanner) Disarm(ticket int64) error {
	if _, err := t.store.Mutate(ticket, func(p *model.Position) {
		p.ExpiresAt = time.Time{}
	}); err != nil {
		return err
	}
	if t.meta == nil {
		return nil
	}
	return t.meta.ClearTimeoutMeta(ticket)
}
