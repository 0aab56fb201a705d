package model

import "time"

// PositionState is the Exit FSM's per-ticket lifecycle state (spec §4.G).
type PositionState string

const (
	StateEntered  PositionState = "ENTERED"
	StateTP1Done  PositionState = "TP1_DONE"
	StateBESet    PositionState = "BE_SET"
	StateTrailing PositionState = "TRAILING"
	StateClosed   PositionState = "CLOSED"
)

// Milestone is a named lifecycle event that must fire at most once per
// ticket (spec §9 "Milestone idempotency as set membership").
type Milestone string

const (
	MilestoneTP1        Milestone = "TP1"
	MilestoneBE         Milestone = "BE"
	MilestoneTrailStart Milestone = "TRAIL_START"
)

// Position is a tracked, exit-managed trading position. Owned exclusively by
// the Exit FSM; serialized to disk at every mutation (spec §3).
type Position struct {
	Ticket        int64             `json:"ticket"`
	FireID        string            `json:"fire_id"`
	UserID        string            `json:"user_id"`
	Tier          string            `json:"tier"`
	Symbol        string            `json:"symbol"`
	Direction     Direction         `json:"direction"`
	EntryPx       float64           `json:"entry_px"`
	SLInitPx      float64           `json:"sl_init_px"`
	SLCurrentPx   float64           `json:"sl_current_px"`
	TPPx          float64           `json:"tp_px"`
	RPips         float64           `json:"r_pips"`
	LotSize       float64           `json:"lot_size"`
	LotRemaining  float64           `json:"lot_remaining"`
	State         PositionState     `json:"state"`
	TP1Done       bool              `json:"tp1_done"`
	BESet         bool              `json:"be_set"`
	TrailOn       bool              `json:"trail_on"`
	MilestonesHit map[Milestone]bool `json:"milestones_hit"`
	CommandsSent  map[string]bool   `json:"commands_sent"` // "fire_id:seq" -> sent
	LastSeq       int64             `json:"last_seq"`
	OpenTS        time.Time         `json:"open_ts"`
	LastUpdateTS  time.Time         `json:"last_update_ts"`
	ExpiresAt     time.Time         `json:"expires_at"` // max-hold deadline while state==ENTERED
	TargetUUID    string            `json:"target_uuid,omitempty"`
}

// HasMilestone reports whether a milestone has already fired for this
// position (idempotency check, spec invariant).
func (p *Position) HasMilestone(m Milestone) bool {
	return p.MilestonesHit[m]
}

// MarkMilestone records a milestone as fired.
func (p *Position) MarkMilestone(m Milestone) {
	if p.MilestonesHit == nil {
		p.MilestonesHit = make(map[Milestone]bool)
	}
	p.MilestonesHit[m] = true
}
