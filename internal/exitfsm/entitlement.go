package exitfsm

import (
	"fmt"
	"sync"
	"time"

	"eliteguard/internal/model"
)

// TierFeatures describes what a tier unlocks. Grounded on
// original_source/src/bitten_core/entitlement.py's TIERS table.
type TierFeatures struct {
	Name          string
	Features      []string
	MaxConcurrent int
	Autofire      bool
}

var tierCatalog = map[string]TierFeatures{
	"TIER_BEGINNER": {
		Name:          "Beginner",
		Features:      []string{"fixed_scalp", "time_boxed"},
		MaxConcurrent: 1,
		Autofire:      false,
	},
	"TIER_PLUS": {
		Name:          "Plus",
		Features:      []string{"scalp_runner", "partials", "trailing", "be_protection"},
		MaxConcurrent: 3,
		Autofire:      false,
	},
	"TIER_PRO": {
		Name:          "Pro",
		Features:      []string{"scalp_runner", "partials", "trailing", "be_protection", "autofire", "session_filter"},
		MaxConcurrent: 5,
		Autofire:      true,
	},
}

// tierChange is one entry in a user's recent tier-change history.
type tierChange struct {
	OldTier   string
	NewTier   string
	ChangedBy string
	Reason    string
	At        time.Time
}

const tierHistoryDepth = 20

// EntitlementManager maps users to tiers, checks feature gates, and keeps a
// small in-memory rolling history of recent tier changes per user for the
// admin console (a supplement beyond entitlement.py's full on-disk
// tier_history table, which EntitlementStore already persists durably).
type EntitlementManager struct {
	store model.EntitlementStore

	mu      sync.Mutex
	history map[string][]tierChange
}

// NewEntitlementManager wires an EntitlementManager to its backing store.
func NewEntitlementManager(store model.EntitlementStore) *EntitlementManager {
	return &EntitlementManager{store: store, history: make(map[string][]tierChange)}
}

// TierOf returns a user's current tier, defaulting to TIER_BEGINNER.
func (e *EntitlementManager) TierOf(userID string) (string, error) {
	return e.store.GetUserTier(userID)
}

// SetTier changes a user's tier, persists the transition, and records it
// in the in-memory recent-history ring.
func (e *EntitlementManager) SetTier(userID, tier, changedBy, reason string) error {
	if _, ok := tierCatalog[tier]; !ok {
		return fmt.Errorf("entitlement: unknown tier %q", tier)
	}

	oldTier, err := e.store.GetUserTier(userID)
	if err != nil {
		return err
	}
	if err := e.store.SetUserTier(userID, tier, changedBy, reason); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.history[userID]
	entries = append(entries, tierChange{OldTier: oldTier, NewTier: tier, ChangedBy: changedBy, Reason: reason, At: time.Now().UTC()})
	if len(entries) > tierHistoryDepth {
		entries = entries[len(entries)-tierHistoryDepth:]
	}
	e.history[userID] = entries
	return nil
}

// RecentChanges returns a copy of the user's recent tier-change history,
// most recent last.
func (e *EntitlementManager) RecentChanges(userID string) []tierChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.history[userID]
	out := make([]tierChange, len(entries))
	copy(out, entries)
	return out
}

// Features returns the tier's feature set, falling back to TIER_BEGINNER
// for an unrecognized tier name.
func Features(tier string) TierFeatures {
	if f, ok := tierCatalog[tier]; ok {
		return f
	}
	return tierCatalog["TIER_BEGINNER"]
}

// CanUseFeature reports whether userID's tier includes feature.
func (e *EntitlementManager) CanUseFeature(userID, feature string) (bool, error) {
	tier, err := e.TierOf(userID)
	if err != nil {
		return false, err
	}
	for _, f := range Features(tier).Features {
		if f == feature {
			return true, nil
		}
	}
	return false, nil
}

// CanAutofire reports whether userID's tier permits autofire execution.
func (e *EntitlementManager) CanAutofire(userID string) (bool, error) {
	tier, err := e.TierOf(userID)
	if err != nil {
		return false, err
	}
	return Features(tier).Autofire, nil
}

// MaxConcurrent returns the maximum number of simultaneously open
// positions userID's tier permits.
func (e *EntitlementManager) MaxConcurrent(userID string) (int, error) {
	tier, err := e.TierOf(userID)
	if err != nil {
		return 0, err
	}
	return Features(tier).MaxConcurrent, nil
}
