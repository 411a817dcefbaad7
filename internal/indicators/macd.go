package indicators

import (
	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// MACD computes the Moving Average Convergence Divergence histogram from the
// snapshot history. The MACD and signal series are rebuilt from the bounded
// history each cycle, so the producer itself stays stateless.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a MACD producer with the given fast, slow, and signal
// periods (12/26/9 are standard).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

// Kind returns KindMACD.
func (m *MACD) Kind() Kind { return KindMACD }

// MinHistory returns slow+signal bars so the signal line has a real EMA to
// smooth over rather than a single point.
func (m *MACD) MinHistory() int { return m.slowPeriod + m.signalPeriod }

// Compute returns the MACD histogram normalized by price: histogram as a
// fraction of the last close, divided by 1% and clamped to [-1, 1].
func (m *MACD) Compute(snap *types.Snapshot, _ []types.NewsEvent) (Indicator, error) {
	closes := snap.Closes()
	if len(closes) < m.MinHistory() {
		return Indicator{}, engerrors.NewInsufficientHistory("macd", len(closes), m.MinHistory())
	}

	fast := emaSeries(closes, m.fastPeriod)
	slow := emaSeries(closes, m.slowPeriod)
	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = fast[i] - slow[i]
	}
	signalLine := emaSeries(macdLine, m.signalPeriod)

	last := len(closes) - 1
	histogram := macdLine[last] - signalLine[last]
	price := closes[last]
	if price == 0 {
		return Indicator{}, engerrors.NewInsufficientHistory("macd", 0, m.MinHistory())
	}

	return Indicator{
		Symbol:    snap.Symbol,
		Kind:      KindMACD,
		Value:     clamp(histogram/price/0.01, -1, 1),
		Timestamp: snap.Timestamp,
	}, nil
}

// emaSeries computes the full EMA series for the values. The first value
// seeds the average, the usual 2/(period+1) multiplier smooths from there.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	mult := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*mult + out[i-1]
	}
	return out
}
