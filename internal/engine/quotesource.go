package engine

import (
	"context"

	"eliteguard/internal/feed"
)

// FeedQuoteSource adapts the Feed Bridge's own quote cache into a
// shield.QuoteSource, so the Shield Filter always has at least the
// primary feed's mid price to compare against. Spec §4.E's cross-broker
// consensus needs independent venues to mean anything; wiring only the
// primary feed here means Shield.Validate's minSources gate never clears
// on this source alone, so it legitimately passes candidates through
// without enhancement rather than fabricating a false consensus — a real
// deployment adds further QuoteSource implementations per broker.
type FeedQuoteSource struct {
	name   string
	bridge *feed.Bridge
}

// NewFeedQuoteSource wraps bridge as a named QuoteSource.
func NewFeedQuoteSource(name string, bridge *feed.Bridge) *FeedQuoteSource {
	return &FeedQuoteSource{name: name, bridge: bridge}
}

func (f *FeedQuoteSource) Name() string { return f.name }

func (f *FeedQuoteSource) Quote(ctx context.Context, symbol string) (mid float64, ok bool, err error) {
	q, present := f.bridge.Quotes()[symbol]
	if !present {
		return 0, false, nil
	}
	return (q.Bid + q.Ask) / 2, true, nil
}
