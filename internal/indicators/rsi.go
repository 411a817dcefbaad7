package indicators

import (
	"math"

	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// RSI computes the Relative Strength Index over the configured period.
type RSI struct {
	period int
}

// NewRSI creates an RSI producer with the given period (14 is standard).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Kind returns KindRSI.
func (r *RSI) Kind() Kind { return KindRSI }

// MinHistory returns period+1 bars: the RSI needs period price changes.
func (r *RSI) MinHistory() int { return r.period + 1 }

// Compute derives the RSI and maps it onto [-1, 1] as (50-RSI)/50, so an
// oversold reading (RSI 0) is full buy pressure and overbought (RSI 100) is
// full sell pressure.
func (r *RSI) Compute(snap *types.Snapshot, _ []types.NewsEvent) (Indicator, error) {
	closes := snap.Closes()
	if len(closes) < r.MinHistory() {
		return Indicator{}, engerrors.NewInsufficientHistory("rsi", len(closes), r.MinHistory())
	}

	rsi := r.value(closes)
	return Indicator{
		Symbol:    snap.Symbol,
		Kind:      KindRSI,
		Value:     (50 - rsi) / 50,
		Timestamp: snap.Timestamp,
	}, nil
}

// value computes the classic SMA-smoothed RSI over the final period changes.
func (r *RSI) value(prices []float64) float64 {
	changes := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		changes[i-1] = prices[i] - prices[i-1]
	}

	gains := make([]float64, len(changes))
	losses := make([]float64, len(changes))
	for i, change := range changes {
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = math.Abs(change)
		}
	}

	avgGain := sma(gains[len(gains)-r.period:])
	avgLoss := sma(losses[len(losses)-r.period:])

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// sma computes the Simple Moving Average of the given values.
func sma(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
