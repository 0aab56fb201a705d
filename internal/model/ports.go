package model

import "context"

// ── Storage port interfaces ──
// These decouple business logic from concrete storage implementations
// (Redis, SQLite). Each implementation satisfies one or more of these.

// CandleCacheStore persists/restores the per-symbol M1/M5/M15 ring cache
// (spec §4.B "periodically serialize the last rings per symbol to disk").
type CandleCacheStore interface {
	SaveCache(symbol string, tf int, candles []Candle) error
	LoadCache(symbol string, tf int, maxAge int64) ([]Candle, bool, error)
}

// PositionStore persists Position records, written atomically at every
// mutation (spec §3 Position invariant).
type PositionStore interface {
	SavePosition(p *Position) error
	LoadPosition(ticket int64) (*Position, bool, error)
	LoadAllOpenPositions() ([]*Position, error)
	DeletePosition(ticket int64) error
	Close() error
}

// TimeoutMetaStore persists the TimeoutMeta table (spec §3, §4.G).
type TimeoutMetaStore interface {
	SetTimeoutMeta(meta TimeoutMeta) error
	GetTimeoutMeta(ticket int64) (*TimeoutMeta, error)
	ClearTimeoutMeta(ticket int64) error
}

// TruthLogWriter appends one JSON line per published signal to an
// append-only, fsync'd log, and optionally mirrors to a richer tracking
// sink (spec §4.F).
type TruthLogWriter interface {
	AppendTruth(ctx context.Context, s *Signal) error
	AppendTracking(ctx context.Context, s *Signal, extra map[string]any) error
	Close() error
}

// EntitlementStore persists the user -> tier mapping, grounded on
// original_source/src/bitten_core/entitlement.py's user_entitlements
// table.
type EntitlementStore interface {
	GetUserTier(userID string) (string, error)
	SetUserTier(userID, tier, changedBy, reason string) error
}
