package risk

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajseidenfrau/NVSTWZ/internal/config"
	"github.com/ajseidenfrau/NVSTWZ/internal/portfolio"
	"github.com/ajseidenfrau/NVSTWZ/internal/signal"
)

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		InitialCapital:     1000,
		MaxDailyLoss:       0.05,
		MaxDailyTrades:     50,
		PositionSizeFrac:   0.3,
		StopLossPct:        0.02,
		TakeProfitPct:      0.05,
		MinTradeNotional:   5,
		MaxIntentsPerCycle: 5,
	}
}

func testView(available float64) portfolio.View {
	return portfolio.View{
		TotalCapital:     available,
		AvailableCapital: available,
		Positions:        map[string]portfolio.Position{},
	}
}

func buySignal(symbol string, confidence float64) signal.Signal {
	return signal.Signal{
		Symbol:      symbol,
		Direction:   signal.DirectionBuy,
		Confidence:  confidence,
		GeneratedAt: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
	}
}

func sellSignal(symbol string, confidence float64) signal.Signal {
	s := buySignal(symbol, confidence)
	s.Direction = signal.DirectionSell
	return s
}

func TestEvaluate_SizesByConfidenceAndFraction(t *testing.T) {
	m := NewManager(testTradingConfig(), zap.NewNop())

	view := testView(1000)
	res := m.Evaluate(view, []signal.Signal{buySignal("AAPL", 0.8)}, map[string]float64{"AAPL": 100})

	require.Len(t, res.Intents, 1)
	intent := res.Intents[0]

	// 0.3 * 1000 * 0.8 = 240 notional at $100.
	assert.InDelta(t, 240, intent.Notional, 1e-9)
	assert.InDelta(t, 2.4, intent.Quantity, 1e-9)
	assert.InDelta(t, 98, intent.StopLoss, 1e-9)
	assert.InDelta(t, 105, intent.TakeProfit, 1e-9)
	assert.Equal(t, PriceTypeMarket, intent.PriceType)
	assert.False(t, intent.Closing)
}

func TestEvaluate_InsufficientCapital(t *testing.T) {
	m := NewManager(testTradingConfig(), zap.NewNop())

	// 0.3 * 10 * 0.9 = 2.70, below the $5 minimum tradable unit. The signal
	// must surface as a rejection, never as an undersized order.
	view := testView(10)
	res := m.Evaluate(view, []signal.Signal{buySignal("AAPL", 0.9)}, map[string]float64{"AAPL": 100})

	assert.Empty(t, res.Intents)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonInsufficientFund, res.Rejections[0].Reason)
}

func TestEvaluate_DailyTradeLimit(t *testing.T) {
	cfg := testTradingConfig()
	cfg.MaxDailyTrades = 2
	m := NewManager(cfg, zap.NewNop())

	view := testView(1000)
	view.TradesToday = 2
	res := m.Evaluate(view, []signal.Signal{buySignal("AAPL", 0.9)}, map[string]float64{"AAPL": 100})

	assert.Empty(t, res.Intents)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonDailyTradeLimit, res.Rejections[0].Reason)
}

func TestEvaluate_IntentCapPerCycle(t *testing.T) {
	cfg := testTradingConfig()
	cfg.MaxIntentsPerCycle = 1
	m := NewManager(cfg, zap.NewNop())

	signals := []signal.Signal{buySignal("AAPL", 0.9), buySignal("MSFT", 0.8)}
	prices := map[string]float64{"AAPL": 100, "MSFT": 200}
	res := m.Evaluate(testView(1000), signals, prices)

	assert.Len(t, res.Intents, 1)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonIntentCap, res.Rejections[0].Reason)
	assert.Equal(t, "MSFT", res.Rejections[0].Symbol)
}

func TestEvaluate_NoPrice(t *testing.T) {
	m := NewManager(testTradingConfig(), zap.NewNop())

	res := m.Evaluate(testView(1000), []signal.Signal{buySignal("AAPL", 0.9)}, map[string]float64{})

	assert.Empty(t, res.Intents)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonNoPrice, res.Rejections[0].Reason)
}

func TestEvaluate_OpenPositionBlocksStacking(t *testing.T) {
	m := NewManager(testTradingConfig(), zap.NewNop())

	view := testView(1000)
	view.Positions["AAPL"] = portfolio.Position{
		Symbol: "AAPL", Quantity: 2, AvgCost: 95, CurrentPrice: 100,
	}

	res := m.Evaluate(view, []signal.Signal{buySignal("AAPL", 0.9)}, map[string]float64{"AAPL": 100})

	assert.Empty(t, res.Intents)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonPositionOpen, res.Rejections[0].Reason)
}

func TestEvaluate_SellClosesOpenPosition(t *testing.T) {
	m := NewManager(testTradingConfig(), zap.NewNop())

	view := testView(1000)
	view.Positions["AAPL"] = portfolio.Position{
		Symbol: "AAPL", Quantity: 2, AvgCost: 95, CurrentPrice: 100,
	}

	res := m.Evaluate(view, []signal.Signal{sellSignal("AAPL", 0.9)}, map[string]float64{"AAPL": 100})

	require.Len(t, res.Intents, 1)
	intent := res.Intents[0]
	assert.True(t, intent.Closing)
	assert.Equal(t, signal.DirectionSell, intent.Direction)
	assert.InDelta(t, 2.0, intent.Quantity, 1e-9)
}

func TestEvaluate_SellWithoutPositionRejected(t *testing.T) {
	m := NewManager(testTradingConfig(), zap.NewNop())

	res := m.Evaluate(testView(1000), []signal.Signal{sellSignal("AAPL", 0.9)}, map[string]float64{"AAPL": 100})

	assert.Empty(t, res.Intents)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonNoPosition, res.Rejections[0].Reason)
}

func TestEvaluate_DailyLossLimit(t *testing.T) {
	m := NewManager(testTradingConfig(), zap.NewNop())

	// Already down $49 on a $50 budget; a 240-notional trade projects $4.80
	// more risk and must be refused.
	view := testView(1000)
	view.RealizedPnLToday = -49

	res := m.Evaluate(view, []signal.Signal{buySignal("AAPL", 0.8)}, map[string]float64{"AAPL": 100})

	assert.Empty(t, res.Intents)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, ReasonDailyLossLimit, res.Rejections[0].Reason)
}

func TestEvaluate_CapitalDrainsAcrossIntents(t *testing.T) {
	cfg := testTradingConfig()
	cfg.PositionSizeFrac = 1.0
	m := NewManager(cfg, zap.NewNop())

	// First intent takes the full available capital at confidence 1; the
	// second finds nothing left.
	signals := []signal.Signal{buySignal("AAPL", 1.0), buySignal("MSFT", 1.0)}
	prices := map[string]float64{"AAPL": 100, "MSFT": 200}
	res := m.Evaluate(testView(1000), signals, prices)

	require.Len(t, res.Intents, 1)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, "MSFT", res.Rejections[0].Symbol)
	assert.Equal(t, ReasonInsufficientFund, res.Rejections[0].Reason)
}

// TestEvaluate_PositionFractionProperty checks the sizing invariant over
// randomized signal batches: no intent exceeds the per-position fraction and
// the batch never overspends available capital.
func TestEvaluate_PositionFractionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cfg := testTradingConfig()
	m := NewManager(cfg, zap.NewNop())

	for trial := 0; trial < 100; trial++ {
		n := 1 + rng.Intn(8)
		signals := make([]signal.Signal, n)
		prices := make(map[string]float64, n)
		for i := 0; i < n; i++ {
			sym := fmt.Sprintf("SYM%d", i)
			signals[i] = buySignal(sym, 0.5+rng.Float64()*0.5)
			prices[sym] = 10 + rng.Float64()*500
		}

		total := 100 + rng.Float64()*10000
		res := m.Evaluate(testView(total), signals, prices)

		spent := 0.0
		for _, intent := range res.Intents {
			assert.LessOrEqual(t, intent.Notional, cfg.PositionSizeFrac*total+1e-9,
				"intent exceeds position fraction")
			spent += intent.Notional
		}
		assert.LessOrEqual(t, spent, total+1e-9, "batch overspends capital")
	}
}

// TestEvaluate_DailyCapProperty checks that intents never exceed the trades
// remaining in the day, whatever the signal batch looks like.
func TestEvaluate_DailyCapProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	cfg := testTradingConfig()
	cfg.MaxIntentsPerCycle = 100
	m := NewManager(cfg, zap.NewNop())

	for trial := 0; trial < 100; trial++ {
		used := rng.Intn(cfg.MaxDailyTrades + 1)
		n := 1 + rng.Intn(12)
		signals := make([]signal.Signal, n)
		prices := make(map[string]float64, n)
		for i := 0; i < n; i++ {
			sym := fmt.Sprintf("SYM%d", i)
			signals[i] = buySignal(sym, 0.9)
			prices[sym] = 100
		}

		view := testView(100000)
		view.TradesToday = used
		res := m.Evaluate(view, signals, prices)

		assert.LessOrEqual(t, len(res.Intents), cfg.MaxDailyTrades-used)
	}
}

func TestEvaluateClose(t *testing.T) {
	m := NewManager(testTradingConfig(), zap.NewNop())

	view := testView(1000)
	view.Positions["TSLA"] = portfolio.Position{
		Symbol: "TSLA", Quantity: 3, AvgCost: 200, CurrentPrice: 190,
	}

	intent, err := m.EvaluateClose(view, "TSLA", "stop-loss")
	require.NoError(t, err)
	assert.True(t, intent.Closing)
	assert.Equal(t, "stop-loss", intent.Reason)
	assert.InDelta(t, 3.0, intent.Quantity, 1e-9)

	_, err = m.EvaluateClose(view, "AAPL", "stop-loss")
	assert.Error(t, err)
}
