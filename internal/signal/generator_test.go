package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/internal/indicators"
	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// stubView serves fixed snapshots and news.
type stubView struct {
	symbols   []string
	snapshots map[string]*types.Snapshot
	news      map[string][]types.NewsEvent
}

func (v *stubView) Symbols() []string { return v.symbols }
func (v *stubView) Snapshot(symbol string) (*types.Snapshot, bool) {
	snap, ok := v.snapshots[symbol]
	return snap, ok
}
func (v *stubView) News(symbol string) []types.NewsEvent { return v.news[symbol] }

// stubProducer returns a fixed value per symbol, or an insufficient-history
// error for symbols it has no value for.
type stubProducer struct {
	kind   indicators.Kind
	values map[string]float64
}

func (p *stubProducer) Kind() indicators.Kind { return p.kind }
func (p *stubProducer) MinHistory() int       { return 0 }
func (p *stubProducer) Compute(snap *types.Snapshot, _ []types.NewsEvent) (indicators.Indicator, error) {
	v, ok := p.values[snap.Symbol]
	if !ok {
		return indicators.Indicator{}, engerrors.NewInsufficientHistory(string(p.kind), 0, 1)
	}
	return indicators.Indicator{
		Symbol:    snap.Symbol,
		Kind:      p.kind,
		Value:     v,
		Timestamp: snap.Timestamp,
	}, nil
}

func viewFor(symbols ...string) *stubView {
	v := &stubView{
		symbols:   symbols,
		snapshots: make(map[string]*types.Snapshot),
		news:      make(map[string][]types.NewsEvent),
	}
	at := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	for _, sym := range symbols {
		v.snapshots[sym] = &types.Snapshot{Symbol: sym, Price: 100, Timestamp: at}
	}
	return v
}

func TestGenerator_DominantDirectionWins(t *testing.T) {
	producers := []indicators.Producer{
		&stubProducer{kind: indicators.KindMomentum, values: map[string]float64{"AAPL": 1.0}},
		&stubProducer{kind: indicators.KindRSI, values: map[string]float64{"AAPL": -1.0}},
	}
	weights := map[indicators.Kind]float64{
		indicators.KindMomentum: 0.6,
		indicators.KindRSI:      0.4,
	}
	g := NewGenerator(producers, weights, 0.5, zap.NewNop())

	signals := g.Generate(viewFor("AAPL"))
	require.Len(t, signals, 1)

	assert.Equal(t, DirectionBuy, signals[0].Direction)
	assert.InDelta(t, 0.6, signals[0].Confidence, 1e-9)
	assert.Len(t, signals[0].Contributing, 2)
}

func TestGenerator_ExactTieProducesNothing(t *testing.T) {
	producers := []indicators.Producer{
		&stubProducer{kind: indicators.KindMomentum, values: map[string]float64{"AAPL": 1.0}},
		&stubProducer{kind: indicators.KindRSI, values: map[string]float64{"AAPL": -1.0}},
	}
	weights := map[indicators.Kind]float64{
		indicators.KindMomentum: 0.5,
		indicators.KindRSI:      0.5,
	}
	g := NewGenerator(producers, weights, 0.0, zap.NewNop())

	signals := g.Generate(viewFor("AAPL"))
	assert.Empty(t, signals)
}

func TestGenerator_ConfidenceThreshold(t *testing.T) {
	producers := []indicators.Producer{
		&stubProducer{kind: indicators.KindMomentum, values: map[string]float64{"AAPL": 0.6}},
	}
	weights := map[indicators.Kind]float64{indicators.KindMomentum: 1.0}
	g := NewGenerator(producers, weights, 0.7, zap.NewNop())

	// Confidence 0.6 stays below the 0.7 floor.
	assert.Empty(t, g.Generate(viewFor("AAPL")))

	g = NewGenerator(producers, weights, 0.5, zap.NewNop())
	assert.Len(t, g.Generate(viewFor("AAPL")), 1)
}

func TestGenerator_UnavailableIndicatorExcludedNotDefaulted(t *testing.T) {
	// Momentum has no reading for AAPL; RSI does. The signal must be scored
	// over RSI's weight alone rather than treating momentum as zero.
	producers := []indicators.Producer{
		&stubProducer{kind: indicators.KindMomentum, values: map[string]float64{}},
		&stubProducer{kind: indicators.KindRSI, values: map[string]float64{"AAPL": 0.8}},
	}
	weights := map[indicators.Kind]float64{
		indicators.KindMomentum: 0.5,
		indicators.KindRSI:      0.5,
	}
	g := NewGenerator(producers, weights, 0.5, zap.NewNop())

	signals := g.Generate(viewFor("AAPL"))
	require.Len(t, signals, 1)
	assert.InDelta(t, 0.8, signals[0].Confidence, 1e-9)
	assert.Len(t, signals[0].Contributing, 1)
}

func TestGenerator_RankingAndTieBreak(t *testing.T) {
	producers := []indicators.Producer{
		&stubProducer{kind: indicators.KindMomentum, values: map[string]float64{
			"TSLA": 0.9,
			"MSFT": 0.8,
			"AAPL": 0.8,
		}},
	}
	weights := map[indicators.Kind]float64{indicators.KindMomentum: 1.0}
	g := NewGenerator(producers, weights, 0.5, zap.NewNop())

	signals := g.Generate(viewFor("TSLA", "MSFT", "AAPL"))
	require.Len(t, signals, 3)

	// Highest confidence first, equal confidence by symbol ascending.
	assert.Equal(t, "TSLA", signals[0].Symbol)
	assert.Equal(t, "AAPL", signals[1].Symbol)
	assert.Equal(t, "MSFT", signals[2].Symbol)
}

func TestGenerator_Deterministic(t *testing.T) {
	producers := []indicators.Producer{
		&stubProducer{kind: indicators.KindMomentum, values: map[string]float64{
			"AAPL": 0.75, "MSFT": -0.9, "NVDA": 0.8,
		}},
		&stubProducer{kind: indicators.KindSentiment, values: map[string]float64{
			"AAPL": 0.6, "MSFT": -0.4,
		}},
	}
	weights := map[indicators.Kind]float64{
		indicators.KindMomentum:  0.7,
		indicators.KindSentiment: 0.3,
	}
	g := NewGenerator(producers, weights, 0.3, zap.NewNop())
	view := viewFor("AAPL", "MSFT", "NVDA")

	first := g.Generate(view)
	for i := 0; i < 10; i++ {
		again := g.Generate(view)
		require.Equal(t, first, again, "run %d diverged", i)
	}
}

func TestGenerator_MixedIndicatorsOverbought(t *testing.T) {
	// Rising prices: momentum and MACD read buy, RSI reads overbought sell,
	// fresh positive news adds sentiment. Net buy above threshold.
	producers := []indicators.Producer{
		&stubProducer{kind: indicators.KindMomentum, values: map[string]float64{"AAPL": 1.0}},
		&stubProducer{kind: indicators.KindRSI, values: map[string]float64{"AAPL": -1.0}},
		&stubProducer{kind: indicators.KindMACD, values: map[string]float64{"AAPL": 1.0}},
		&stubProducer{kind: indicators.KindSentiment, values: map[string]float64{"AAPL": 1.0}},
	}
	weights := map[indicators.Kind]float64{
		indicators.KindMomentum:  0.35,
		indicators.KindRSI:       0.2,
		indicators.KindMACD:      0.2,
		indicators.KindSentiment: 0.25,
	}
	g := NewGenerator(producers, weights, 0.7, zap.NewNop())

	signals := g.Generate(viewFor("AAPL"))
	require.Len(t, signals, 1)
	assert.Equal(t, DirectionBuy, signals[0].Direction)
	assert.InDelta(t, 0.8, signals[0].Confidence, 1e-9)
}

func TestGenerator_RealProducersRisingTrendWithPositiveNews(t *testing.T) {
	// Full chain with the real producers, no stubs: a sustained 2%-per-bar
	// rise with fresh positive news. Momentum saturates at +1, MACD reads
	// positive, sentiment carries the news score, and RSI pegs overbought
	// at -1 against them. The weighted net is still a confident buy.
	now := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	history := make([]types.Candle, 45)
	price := 100.0
	for i := range history {
		history[i] = types.Candle{
			Close:     price,
			Timestamp: now.Add(time.Duration(i-len(history)) * 24 * time.Hour),
		}
		price *= 1.02
	}
	snap := &types.Snapshot{
		Symbol:    "AAPL",
		Price:     history[len(history)-1].Close,
		Timestamp: now,
		History:   history,
	}
	news := []types.NewsEvent{{
		Symbols:      []string{"AAPL"},
		Headline:     "Apple beats estimates, shares surge",
		Sentiment:    0.8,
		SourceWeight: 1.0,
		Timestamp:    now.Add(-time.Hour),
	}}

	sentiment := indicators.NewSentiment(24)
	sentiment.SetClock(func() time.Time { return now })
	producers := []indicators.Producer{
		indicators.NewMomentum(10),
		indicators.NewRSI(14),
		indicators.NewMACD(12, 26, 9),
		sentiment,
	}
	weights := map[indicators.Kind]float64{
		indicators.KindMomentum:  0.4,
		indicators.KindRSI:       0.1,
		indicators.KindMACD:      0.25,
		indicators.KindSentiment: 0.25,
	}
	g := NewGenerator(producers, weights, 0.55, zap.NewNop())

	view := &stubView{
		symbols:   []string{"AAPL"},
		snapshots: map[string]*types.Snapshot{"AAPL": snap},
		news:      map[string][]types.NewsEvent{"AAPL": news},
	}
	signals := g.Generate(view)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, DirectionBuy, sig.Direction)
	// Momentum +1 and sentiment +0.8 alone put the buy side past 0.6 even
	// before MACD's positive reading; RSI's -1 sell side stays at 0.1.
	assert.Greater(t, sig.Confidence, 0.6)
	assert.LessOrEqual(t, sig.Confidence, 1.0)

	require.Len(t, sig.Contributing, 4)
	kinds := make(map[indicators.Kind]float64, 4)
	for _, ind := range sig.Contributing {
		kinds[ind.Kind] = ind.Value
	}
	assert.InDelta(t, 1.0, kinds[indicators.KindMomentum], 1e-9)
	assert.InDelta(t, -1.0, kinds[indicators.KindRSI], 1e-9)
	assert.Greater(t, kinds[indicators.KindMACD], 0.0)
	assert.InDelta(t, 0.8, kinds[indicators.KindSentiment], 1e-9)
}
