// Package indicators computes normalized per-symbol indicators from
// snapshots and news. Every producer reports a value in [-1, 1] where
// positive means buy pressure, which lets the signal generator combine
// technical and sentiment sources with plain configured weights.
package indicators

import (
	"time"

	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// Kind identifies an indicator family.
type Kind string

const (
	KindMomentum  Kind = "MOMENTUM"
	KindRSI       Kind = "RSI"
	KindMACD      Kind = "MACD"
	KindSentiment Kind = "SENTIMENT"
)

// Indicator is one computed value for one symbol in one cycle. Derived data:
// recomputed every cycle and not retained beyond it.
type Indicator struct {
	Symbol    string
	Kind      Kind
	Value     float64 // normalized to [-1, 1], positive = buy pressure
	Timestamp time.Time
}

// Producer is the capability shared by all indicator sources, technical and
// sentiment alike. A producer that cannot compute (not enough history, no
// news) returns an insufficient-history error and is excluded from scoring;
// it never reports a defaulted zero as if it were a real reading.
type Producer interface {
	// Kind returns the indicator family this producer computes.
	Kind() Kind

	// MinHistory returns the minimum number of history bars required.
	MinHistory() int

	// Compute derives the indicator for the snapshot's symbol.
	Compute(snap *types.Snapshot, news []types.NewsEvent) (Indicator, error)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
