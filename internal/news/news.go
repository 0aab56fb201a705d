// Package news implements the economic-calendar trading filter of spec §6:
// a three-tier BLOCK/REDUCE/NORMAL gate that the scorer consults before
// promoting a pattern candidate to a published signal. Grounded on
// original_source/news_intelligence_gate.py's NewsIntelligenceGate, with
// the live Forex Factory fetch replaced by a static, operator-maintained
// calendar file (spec §6 does not require live calendar ingestion; the
// filtering semantics are what matter).
package news

import (
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"eliteguard/internal/scoring"

	"gopkg.in/yaml.v3"
)

// verdict is news.go's internal, richer evaluation result (kept for
// logging/diagnostics); Evaluate narrows it to the scorer's NewsAction
// contract at the package boundary.
type verdict struct {
	Kind    string // "BLOCK", "REDUCE", or "NORMAL"
	Block   bool
	Penalty float64
	Reason  string
}

// Event is one economic calendar entry.
type Event struct {
	Country string    `yaml:"country"`
	Impact  string    `yaml:"impact"` // "high", "medium", "low"
	Title   string    `yaml:"title"`
	At      time.Time `yaml:"at"`
}

// Calendar holds a static set of economic events, loaded once at startup
// and optionally reloaded by an operator between process restarts.
type Calendar struct {
	Events []Event
}

type calendarFile struct {
	Events []Event `yaml:"events"`
}

// LoadCalendar reads a YAML calendar file. A missing file yields an empty
// calendar (the engine trades unrestricted, matching
// news_intelligence_gate.py's "no calendar data -> trading unrestricted"
// fallback).
func LoadCalendar(path string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Calendar{}, nil
		}
		return nil, err
	}
	var f calendarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &Calendar{Events: f.Events}, nil
}

// tier1BlockTitles are high-impact event name fragments that halt trading
// entirely while in their window (spec §6 Tier 1).
var tier1BlockTitles = []string{
	"Nonfarm Payrolls", "FOMC", "CPI", "GDP", "Interest Rate Decision",
	"Employment Change", "Core CPI", "Retail Sales", "Fed Chair Speech",
}

// tier2ReduceTitles are medium-impact event name fragments that reduce
// confidence while in their (wider) window (spec §6 Tier 2).
var tier2ReduceTitles = []string{
	"PMI", "Manufacturing PMI", "Services PMI", "Consumer Confidence",
	"Industrial Production", "PPI", "Trade Balance", "Current Account",
	"Employment Claims", "Building Permits", "Housing Starts",
}

const (
	tier1WindowMinutes   = 15
	tier2WindowMinutes   = 30
	tier2ConfidencePenalty = 10.0
)

// relevantCountries maps an ISO currency code to the calendar "country"
// labels that affect it, mirroring the original's USD/EUR-centric scope.
var relevantCountries = map[string][]string{
	"USD": {"USD", "US", "United States"},
	"EUR": {"EUR", "EU", "European Union"},
	"GBP": {"GBP", "UK", "United Kingdom"},
	"JPY": {"JPY", "Japan"},
}

// Evaluator is the scoring.NewsEvaluator implementation: given a symbol
// and a timestamp, it reports whether a nearby high/medium-impact event
// should block or discount the signal.
type Evaluator struct {
	calendar *Calendar
	enabled  atomic.Bool
}

// NewEvaluator wraps calendar with a master enable/disable toggle
// (news_intelligence_gate.py's `self.enabled`, exposed for A/B testing).
func NewEvaluator(calendar *Calendar) *Evaluator {
	e := &Evaluator{calendar: calendar}
	e.enabled.Store(true)
	return e
}

// SetEnabled toggles the filter on or off at runtime.
func (e *Evaluator) SetEnabled(on bool) { e.enabled.Store(on) }

// Evaluate implements internal/scoring.NewsEvaluator.
func (e *Evaluator) Evaluate(symbol string, at time.Time) scoring.NewsAction {
	v := e.evaluate(symbol, at)
	if v.Kind != "NORMAL" {
		log.Printf("[news] %s %s: %s", symbol, v.Kind, v.Reason)
	}
	return scoring.NewsAction{Block: v.Block, Penalty: v.Penalty}
}

func (e *Evaluator) evaluate(symbol string, at time.Time) verdict {
	if !e.enabled.Load() {
		return verdict{Kind: "NORMAL"}
	}

	currencies := symbolCurrencies(symbol)

	for _, ev := range e.calendar.Events {
		if !countryRelevant(ev.Country, currencies) {
			continue
		}
		minutesTo := at.Sub(ev.At).Minutes()

		if isHighImpact(ev) && withinWindow(minutesTo, tier1WindowMinutes) {
			return verdict{
				Kind:   "BLOCK",
				Block:  true,
				Reason: "high-impact " + ev.Country + " event: " + ev.Title,
			}
		}
		if isMediumOrHighImpact(ev) && matchesAny(ev.Title, tier2ReduceTitles) && withinWindow(minutesTo, tier2WindowMinutes) {
			return verdict{
				Kind:    "REDUCE",
				Penalty: tier2ConfidencePenalty,
				Reason:  "medium-impact " + ev.Country + " event: " + ev.Title,
			}
		}
	}

	return verdict{Kind: "NORMAL"}
}

func withinWindow(minutesTo, windowMinutes float64) bool {
	if minutesTo < 0 {
		minutesTo = -minutesTo
	}
	return minutesTo <= windowMinutes
}

func isHighImpact(ev Event) bool {
	return strings.EqualFold(ev.Impact, "high") && matchesAny(ev.Title, tier1BlockTitles)
}

func isMediumOrHighImpact(ev Event) bool {
	return strings.EqualFold(ev.Impact, "medium") || strings.EqualFold(ev.Impact, "high")
}

func matchesAny(title string, fragments []string) bool {
	lower := strings.ToLower(title)
	for _, f := range fragments {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

func countryRelevant(country string, currencies []string) bool {
	for _, cur := range currencies {
		for _, label := range relevantCountries[cur] {
			if strings.EqualFold(label, country) {
				return true
			}
		}
	}
	return false
}

// symbolCurrencies splits a 6-letter FX pair (e.g. "EURUSD") into its two
// ISO currency legs; XAUUSD's "XAU" leg has no calendar relevance so only
// USD is returned for metals pairs.
func symbolCurrencies(symbol string) []string {
	if len(symbol) < 6 {
		return nil
	}
	base, quote := symbol[:3], symbol[3:6]
	out := []string{quote}
	if _, ok := relevantCountries[base]; ok {
		out = append(out, base)
	}
	return out
}
