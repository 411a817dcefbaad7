package indicators

import (
	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// Momentum computes the normalized percent change of the close over a
// configurable window of bars.
type Momentum struct {
	window int
}

// NewMomentum creates a Momentum producer over the given bar window.
func NewMomentum(window int) *Momentum {
	return &Momentum{window: window}
}

// Kind returns KindMomentum.
func (m *Momentum) Kind() Kind { return KindMomentum }

// MinHistory returns window+1: the change needs both endpoints.
func (m *Momentum) MinHistory() int { return m.window + 1 }

// Compute returns the percent change over the window divided by 10%, clamped
// to [-1, 1]. A 10% move in the window saturates the indicator.
func (m *Momentum) Compute(snap *types.Snapshot, _ []types.NewsEvent) (Indicator, error) {
	closes := snap.Closes()
	if len(closes) < m.MinHistory() {
		return Indicator{}, engerrors.NewInsufficientHistory("momentum", len(closes), m.MinHistory())
	}

	ref := closes[len(closes)-1-m.window]
	if ref == 0 {
		return Indicator{}, engerrors.NewInsufficientHistory("momentum", 0, m.MinHistory())
	}
	change := (closes[len(closes)-1] - ref) / ref

	return Indicator{
		Symbol:    snap.Symbol,
		Kind:      KindMomentum,
		Value:     clamp(change/0.10, -1, 1),
		Timestamp: snap.Timestamp,
	}, nil
}
