package scoring

import (
	"os"

	"gopkg.in/yaml.v3"
)

// PayoutEntry is the TP/SL optimization configuration for one pattern
// family (spec §4.D.5): ATR multipliers from which Scorer.Score derives the
// SL/TP distances of every candidate (a detector's calculated_sl/
// calculated_tp are not used), plus a per-family min_rr. The scorer does
// not read MinRR; it applies Config.SniperMinRR and Config.MinRR instead.
type PayoutEntry struct {
	SLAtrMult float64                `yaml:"sl_atr_mult"`
	TPAtrMult float64                `yaml:"tp_atr_mult"`
	MinRR     float64                `yaml:"min_rr"`
	Symbols   map[string]PayoutEntry `yaml:"symbols,omitempty"`
}

// PayoutTable is the full set of pattern-family payout entries.
type PayoutTable struct {
	entries map[string]PayoutEntry
}

// LoadPayoutTable reads the YAML payout document. A missing file yields
// an empty table; callers fall back to a built-in default entry.
func LoadPayoutTable(path string) (*PayoutTable, error) {
	t := &PayoutTable{entries: map[string]PayoutEntry{}}
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

var fallbackPayout = PayoutEntry{SLAtrMult: 1.2, TPAtrMult: 2.4, MinRR: 2.0}

// For resolves the entry for a pattern family, applying a per-symbol
// override when present, falling back to DEFAULT, then to a built-in
// value if the table has no DEFAULT either.
func (t *PayoutTable) For(patternID, symbol string) PayoutEntry {
	base, ok := t.entries[patternID]
	if !ok {
		base, ok = t.entries["DEFAULT"]
		if !ok {
			base = fallbackPayout
		}
	}
	if base.Symbols != nil {
		if ov, ok := base.Symbols[symbol]; ok {
			merged := base
			if ov.SLAtrMult != 0 {
				merged.SLAtrMult = ov.SLAtrMult
			}
			if ov.TPAtrMult != 0 {
				merged.TPAtrMult = ov.TPAtrMult
			}
			if ov.MinRR != 0 {
				merged.MinRR = ov.MinRR
			}
			return merged
		}
	}
	return base
}
