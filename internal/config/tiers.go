package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// TierEntry is one tier's exit-profile configuration, with an optional
// INHERIT parent name to layer on top of (spec §4.G, grounded on
// original_source/src/bitten_core/exit_profiles.py's TIER_CONFIG).
type TierEntry struct {
	Inherit        string  `yaml:"INHERIT"`
	RR             float64 `yaml:"RR"`
	TP1R           float64 `yaml:"TP1_R"`
	TP1ClosePct    float64 `yaml:"TP1_CLOSE_PCT"`
	TP2R           float64 `yaml:"TP2_R"`
	MoveBEAt       string  `yaml:"MOVE_BE_AT"`
	TrailEnabled   bool    `yaml:"TRAIL_ENABLED"`
	TrailMethod    string  `yaml:"TRAIL_METHOD"`
	TrailATRMult   float64 `yaml:"TRAIL_ATR_MULT"`
	TrailStepPips  float64 `yaml:"TRAIL_STEP_PIPS"`
	MaxHoldMin     int     `yaml:"MAX_HOLD_MIN"`
}

// TierTable is the full set of tier entries keyed by tier name.
type TierTable struct {
	entries map[string]TierEntry
}

// LoadTierTable reads the YAML tier document. A missing file yields an
// empty table (callers treat that as "no config for tier", matching
// exit_profiles.py's ExitProfileManager._get_tier_config).
func LoadTierTable(path string) (*TierTable, error) {
	t := &TierTable{entries: map[string]TierEntry{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &t.entries); err != nil {
		return nil, err
	}
	return t, nil
}

// Resolve returns the tier's configuration with INHERIT chains merged:
// parent fields first, then the child's own non-zero fields override.
// TrailEnabled is the exception: it is true when either the child or the
// parent enables it, so a child cannot switch off a parent's trailing.
// Mirrors exit_profiles.py's _get_tier_config.
func (t *TierTable) Resolve(tier string) (TierEntry, bool) {
	entry, ok := t.entries[tier]
	if !ok {
		return TierEntry{}, false
	}
	if entry.Inherit == "" {
		return entry, true
	}
	parent, ok := t.Resolve(entry.Inherit)
	if !ok {
		return entry, true
	}
	merged := parent
	merged.Inherit = ""
	if entry.RR != 0 {
		merged.RR = entry.RR
	}
	if entry.TP1R != 0 {
		merged.TP1R = entry.TP1R
	}
	if entry.TP1ClosePct != 0 {
		merged.TP1ClosePct = entry.TP1ClosePct
	}
	if entry.TP2R != 0 {
		merged.TP2R = entry.TP2R
	}
	if entry.MoveBEAt != "" {
		merged.MoveBEAt = entry.MoveBEAt
	}
	if entry.TrailMethod != "" {
		merged.TrailMethod = entry.TrailMethod
	}
	if entry.TrailATRMult != 0 {
		merged.TrailATRMult = entry.TrailATRMult
	}
	if entry.TrailStepPips != 0 {
		merged.TrailStepPips = entry.TrailStepPips
	}
	if entry.MaxHoldMin != 0 {
		merged.MaxHoldMin = entry.MaxHoldMin
	}
	merged.TrailEnabled = entry.TrailEnabled || parent.TrailEnabled
	return merged, true
}
