package exitfsm

import (
	"sync"
	"testing"
)

type fakeEntitlementStore struct {
	mu    sync.Mutex
	tiers map[string]string
}

func newFakeEntitlementStore() *fakeEntitlementStore {
	return &fakeEntitlementStore{tiers: make(map[string]string)}
}

func (f *fakeEntitlementStore) GetUserTier(userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tier, ok := f.tiers[userID]; ok {
		return tier, nil
	}
	f.tiers[userID] = "TIER_BEGINNER"
	return "TIER_BEGINNER", nil
}

func (f *fakeEntitlementStore) SetUserTier(userID, tier, changedBy, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tiers[userID] = tier
	return nil
}

func TestEntitlementManager_DefaultsToBeginner(t *testing.T) {
	e := NewEntitlementManager(newFakeEntitlementStore())
	tier, err := e.TierOf("user1")
	if err != nil {
		t.Fatalf("TierOf: %v", err)
	}
	if tier != "TIER_BEGINNER" {
		t.Errorf("expected TIER_BEGINNER default, got %s", tier)
	}
}

func TestEntitlementManager_SetTierRejectsUnknown(t *testing.T) {
	e := NewEntitlementManager(newFakeEntitlementStore())
	if err := e.SetTier("user1", "TIER_NOPE", "admin", "test"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestEntitlementManager_CanUseFeatureGatesByTier(t *testing.T) {
	e := NewEntitlementManager(newFakeEntitlementStore())
	ok, err := e.CanUseFeature("user1", "trailing")
	if err != nil {
		t.Fatalf("CanUseFeature: %v", err)
	}
	if ok {
		t.Error("expected TIER_BEGINNER to lack trailing feature")
	}

	if err := e.SetTier("user1", "TIER_PLUS", "admin", "upgrade"); err != nil {
		t.Fatalf("SetTier: %v", err)
	}
	ok, err = e.CanUseFeature("user1", "trailing")
	if err != nil {
		t.Fatalf("CanUseFeature: %v", err)
	}
	if !ok {
		t.Error("expected TIER_PLUS to include trailing feature")
	}
}

func TestEntitlementManager_CanAutofireOnlyPro(t *testing.T) {
	e := NewEntitlementManager(newFakeEntitlementStore())
	for _, tier := range []string{"TIER_BEGINNER", "TIER_PLUS"} {
		e.SetTier("user1", tier, "admin", "test")
		ok, err := e.CanAutofire("user1")
		if err != nil {
			t.Fatalf("CanAutofire: %v", err)
		}
		if ok {
			t.Errorf("expected %s not to permit autofire", tier)
		}
	}

	e.SetTier("user1", "TIER_PRO", "admin", "test")
	ok, err := e.CanAutofire("user1")
	if err != nil {
		t.Fatalf("CanAutofire: %v", err)
	}
	if !ok {
		t.Error("expected TIER_PRO to permit autofire")
	}
}

func TestEntitlementManager_RecentChangesTracksHistory(t *testing.T) {
	e := NewEntitlementManager(newFakeEntitlementStore())
	e.SetTier("user1", "TIER_PLUS", "admin", "a")
	e.SetTier("user1", "TIER_PRO", "admin", "b")

	changes := e.RecentChanges("user1")
	if len(changes) != 2 {
		t.Fatalf("expected 2 recorded changes, got %d", len(changes))
	}
	if changes[1].NewTier != "TIER_PRO" {
		t.Errorf("expected last change to be TIER_PRO, got %s", changes[1].NewTier)
	}
}

func TestEntitlementManager_MaxConcurrentByTier(t *testing.T) {
	e := NewEntitlementManager(newFakeEntitlementStore())
	n, err := e.MaxConcurrent("user1")
	if err != nil {
		t.Fatalf("MaxConcurrent: %v", err)
	}
	if n != 1 {
		t.Errorf("expected TIER_BEGINNER max_concurrent 1, got %d", n)
	}
}
