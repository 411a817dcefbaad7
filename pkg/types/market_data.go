package types

import "time"

// Candle is a single OHLCV bar of price history.
type Candle struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Snapshot is the normalized per-symbol market state for one decision cycle.
// It is stamped once by the feed and never mutated afterwards; a newer
// snapshot for the same symbol supersedes it.
type Snapshot struct {
	Symbol    string
	Price     float64
	Volume    float64
	Bid       float64
	Ask       float64
	Timestamp time.Time

	// History holds the most recent bars, oldest first. The feed bounds its
	// length, so indicator producers can assume it never grows unchecked.
	History []Candle
}

// Closes returns the close prices of the snapshot history, oldest first.
func (s *Snapshot) Closes() []float64 {
	closes := make([]float64, len(s.History))
	for i, c := range s.History {
		closes[i] = c.Close
	}
	return closes
}

// ChangePercent returns the percent change of the latest price against the
// previous bar's close, or 0 when there is no history to compare against.
func (s *Snapshot) ChangePercent() float64 {
	if len(s.History) == 0 {
		return 0
	}
	prev := s.History[len(s.History)-1].Close
	if prev == 0 {
		return 0
	}
	return (s.Price - prev) / prev * 100
}

// NewsEvent is a sentiment-scored news item affecting one or more symbols.
// Events are immutable and evicted once they age out of the lookback window.
type NewsEvent struct {
	Symbols      []string
	Headline     string
	Source       string
	Sentiment    float64 // in [-1, 1]
	SourceWeight float64 // in (0, 1], credibility of the source
	Timestamp    time.Time
}

// Mentions reports whether the event references the given symbol.
func (n *NewsEvent) Mentions(symbol string) bool {
	for _, s := range n.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
