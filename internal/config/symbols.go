package config

import (
	"os"

	"eliteguard/internal/model"

	"gopkg.in/yaml.v3"
)

// SymbolTable is the static per-symbol pip/point configuration, keyed by
// symbol, with a DEFAULT fallback entry (spec §3 SymbolSpec, grounded on
// original_source/src/bitten_core/symbols.py's SYMBOL_CONFIG table).
type SymbolTable struct {
	entries map[string]model.SymbolSpec
}

// LoadSymbolTable reads a YAML document of symbol -> SymbolSpec entries.
// Missing file is not an error: the table falls back to model.DefaultSymbolSpec
// for every symbol.
func LoadSymbolTable(path string) (*SymbolTable, error) {
	t := &SymbolTable{entries: map[string]model.SymbolSpec{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, err
	}
	var raw map[string]model.SymbolSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for sym, spec := range raw {
		spec.Symbol = sym
		t.entries[sym] = spec
	}
	return t, nil
}

// Get returns the configuration for a symbol, falling back to DEFAULT (from
// the table if present, else model.DefaultSymbolSpec), per
// get_symbol_config's fallback semantics.
func (t *SymbolTable) Get(symbol string) model.SymbolSpec {
	if spec, ok := t.entries[symbol]; ok {
		return spec
	}
	if spec, ok := t.entries["DEFAULT"]; ok {
		spec.Symbol = symbol
		return spec
	}
	spec := model.DefaultSymbolSpec
	spec.Symbol = symbol
	return spec
}

// PipSize is a convenience accessor mirroring symbols.py's get_pip_size,
// including its XAUUSD/XAGUSD/JPY special cases when no table override exists.
func (t *SymbolTable) PipSize(symbol string) float64 {
	if _, ok := t.entries[symbol]; ok {
		return t.Get(symbol).PipSize
	}
	switch {
	case symbol == "XAUUSD":
		return 0.1
	case symbol == "XAGUSD":
		return 0.001
	case containsJPY(symbol):
		return 0.01
	default:
		return 0.0001
	}
}

func containsJPY(symbol string) bool {
	for i := 0; i+3 <= len(symbol); i++ {
		if symbol[i:i+3] == "JPY" {
			return true
		}
	}
	return false
}
