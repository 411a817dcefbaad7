package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajseidenfrau/NVSTWZ/internal/broker"
	"github.com/ajseidenfrau/NVSTWZ/internal/config"
	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/internal/portfolio"
	"github.com/ajseidenfrau/NVSTWZ/internal/risk"
	"github.com/ajseidenfrau/NVSTWZ/internal/signal"
)

func testOrderConfig() config.OrderConfig {
	return config.OrderConfig{
		MaxRetries:         3,
		InitialRetryDelay:  time.Millisecond,
		MaxRetryDelay:      5 * time.Millisecond,
		SubmitTimeout:      time.Second,
		CancelPartialFills: true,
	}
}

func fixedPrices(prices map[string]float64) broker.PriceFunc {
	return func(symbol string) (float64, bool) {
		p, ok := prices[symbol]
		return p, ok
	}
}

func newTestManager(t *testing.T, sim *broker.Simulator, capital float64) (*Manager, *portfolio.Ledger) {
	t.Helper()
	ledger := portfolio.NewLedger(capital)
	riskMgr := risk.NewManager(config.TradingConfig{
		InitialCapital:     capital,
		MaxDailyLoss:       0.05,
		MaxDailyTrades:     50,
		PositionSizeFrac:   0.3,
		StopLossPct:        0.02,
		TakeProfitPct:      0.05,
		MinTradeNotional:   5,
		MaxIntentsPerCycle: 5,
	}, zap.NewNop())
	return NewManager(sim, ledger, riskMgr, testOrderConfig(), zap.NewNop()), ledger
}

func buyIntent(symbol string, qty, price float64) risk.TradeIntent {
	return risk.TradeIntent{
		Symbol:     symbol,
		Direction:  signal.DirectionBuy,
		Quantity:   qty,
		PriceType:  risk.PriceTypeMarket,
		Notional:   qty * price,
		StopLoss:   price * 0.98,
		TakeProfit: price * 1.05,
		Confidence: 0.8,
	}
}

func TestExecute_BuyFill(t *testing.T) {
	sim := broker.NewSimulator(fixedPrices(map[string]float64{"AAPL": 100}))
	m, ledger := newTestManager(t, sim, 1000)

	ord, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)

	assert.Equal(t, StatusFilled, ord.Status)
	assert.InDelta(t, 2, ord.FilledQuantity, 1e-9)
	assert.InDelta(t, 100, ord.FilledPrice, 1e-9)

	view := ledger.View()
	require.True(t, view.HasPosition("AAPL"))
	pos := view.Positions["AAPL"]
	assert.InDelta(t, 2, pos.Quantity, 1e-9)
	assert.InDelta(t, 98, pos.StopLoss, 1e-9)
	assert.Equal(t, 1, view.TradesToday)
	assert.InDelta(t, 800, view.AvailableCapital, 1e-9)
	assert.InDelta(t, 1000, view.TotalCapital, 1e-9)
}

func TestExecute_SubmissionFailuresExhaustRetries(t *testing.T) {
	sim := broker.NewSimulator(fixedPrices(map[string]float64{"AAPL": 100}))
	sim.FailNextSubmits(3)
	m, ledger := newTestManager(t, sim, 1000)

	ord, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.Error(t, err)
	assert.True(t, engerrors.IsCategory(err, engerrors.CategorySubmissionFailed))

	// Three attempts, then Rejected with the capital back and no position.
	assert.Equal(t, StatusRejected, ord.Status)
	assert.Equal(t, "submission failed", ord.RejectReason)
	assert.Equal(t, 3, ord.Attempts)

	view := ledger.View()
	assert.False(t, view.HasPosition("AAPL"))
	assert.InDelta(t, 1000, view.AvailableCapital, 1e-9)
	assert.Equal(t, 0, view.TradesToday)
}

func TestExecute_RetrySucceedsWithSameKey(t *testing.T) {
	sim := broker.NewSimulator(fixedPrices(map[string]float64{"AAPL": 100}))
	sim.FailNextSubmits(2)
	m, ledger := newTestManager(t, sim, 1000)

	ord, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)

	assert.Equal(t, StatusFilled, ord.Status)
	assert.Equal(t, 3, ord.Attempts)
	// Retries reuse the idempotency key, so only one order ever lands.
	assert.Equal(t, 1, sim.OrderCount())
	assert.Equal(t, 1, ledger.View().TradesToday)
}

func TestExecute_DuplicateKeyIsIdempotent(t *testing.T) {
	sim := broker.NewSimulator(fixedPrices(map[string]float64{"AAPL": 100}))

	req := broker.SubmitRequest{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 1, IdempotencyKey: "k1"}
	id1, err := sim.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	id2, err := sim.SubmitOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, sim.OrderCount())
}

func TestExecute_InsufficientCapitalLeavesNoOrder(t *testing.T) {
	sim := broker.NewSimulator(fixedPrices(map[string]float64{"AAPL": 100}))
	m, ledger := newTestManager(t, sim, 100)

	ord, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.Error(t, err)
	assert.Equal(t, StatusRejected, ord.Status)
	assert.Equal(t, 0, sim.OrderCount())
	assert.InDelta(t, 100, ledger.View().AvailableCapital, 1e-9)
}

func TestExecute_PartialFillCancelsRemainder(t *testing.T) {
	sim := broker.NewSimulator(fixedPrices(map[string]float64{"AAPL": 100}))
	sim.SetPartialRatio(0.5)
	m, ledger := newTestManager(t, sim, 1000)

	ord, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)

	// Half filled, remainder cancelled; only the traded half hits the book.
	assert.Equal(t, StatusCancelled, ord.Status)
	assert.InDelta(t, 1, ord.FilledQuantity, 1e-9)

	view := ledger.View()
	pos := view.Positions["AAPL"]
	assert.InDelta(t, 1, pos.Quantity, 1e-9)
	assert.InDelta(t, 900, view.AvailableCapital, 1e-9)
	assert.InDelta(t, 1000, view.TotalCapital, 1e-9)
	// One submission, one count against the daily cap.
	assert.Equal(t, 1, view.TradesToday)
}

func TestExecute_PartialFillRemainderLeftWorking(t *testing.T) {
	sim := broker.NewSimulator(fixedPrices(map[string]float64{"AAPL": 100}))
	sim.SetPartialRatio(0.5)

	cfg := testOrderConfig()
	cfg.CancelPartialFills = false
	ledger := portfolio.NewLedger(1000)
	riskMgr := risk.NewManager(config.TradingConfig{
		InitialCapital:     1000,
		MaxDailyLoss:       0.05,
		MaxDailyTrades:     50,
		PositionSizeFrac:   0.3,
		StopLossPct:        0.02,
		TakeProfitPct:      0.05,
		MinTradeNotional:   5,
		MaxIntentsPerCycle: 5,
	}, zap.NewNop())
	m := NewManager(sim, ledger, riskMgr, cfg, zap.NewNop())

	ord, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)

	// The filled half is settled immediately; the reservation for the
	// working remainder stays held.
	assert.Equal(t, StatusPartiallyFilled, ord.Status)
	assert.InDelta(t, 1, ord.FilledQuantity, 1e-9)

	view := ledger.View()
	require.True(t, view.HasPosition("AAPL"))
	assert.InDelta(t, 1, view.Positions["AAPL"].Quantity, 1e-9)
	assert.InDelta(t, 800, view.AvailableCapital, 1e-9)
	assert.InDelta(t, 1000, view.TotalCapital, 1e-9)

	// The broker cancels the remainder. The bought shares stay on the book
	// and only the unfilled portion's reservation comes back.
	require.NoError(t, sim.CancelOrder(context.Background(), ord.BrokerOrderID))
	m.Reconcile(context.Background())

	assert.Equal(t, StatusCancelled, ord.Status)
	view = ledger.View()
	require.True(t, view.HasPosition("AAPL"))
	assert.InDelta(t, 1, view.Positions["AAPL"].Quantity, 1e-9)
	assert.InDelta(t, 900, view.AvailableCapital, 1e-9)
	assert.InDelta(t, 1000, view.TotalCapital, 1e-9)
	assert.Equal(t, 1, view.TradesToday)
}

func TestExecute_SellClosesPosition(t *testing.T) {
	sim := broker.NewSimulator(fixedPrices(map[string]float64{"AAPL": 100}))
	m, ledger := newTestManager(t, sim, 1000)

	_, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)

	closing := risk.TradeIntent{
		Symbol:    "AAPL",
		Direction: signal.DirectionSell,
		Quantity:  2,
		PriceType: risk.PriceTypeMarket,
		Closing:   true,
		Reason:    "take-profit",
	}
	ord, err := m.Execute(context.Background(), closing)
	require.NoError(t, err)

	assert.Equal(t, StatusFilled, ord.Status)
	view := ledger.View()
	assert.False(t, view.HasPosition("AAPL"))
	assert.InDelta(t, 1000, view.AvailableCapital, 1e-9)
	assert.Equal(t, 2, view.TradesToday)
}

func TestMonitorPositions_StopLossClose(t *testing.T) {
	prices := map[string]float64{"AAPL": 100}
	sim := broker.NewSimulator(fixedPrices(prices))
	m, ledger := newTestManager(t, sim, 1000)

	_, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)

	// Price above the stop: nothing happens.
	closed := m.MonitorPositions(context.Background(), map[string]float64{"AAPL": 99})
	assert.Empty(t, closed)
	assert.True(t, ledger.View().HasPosition("AAPL"))

	// Price at the stop threshold triggers a same-cycle close.
	prices["AAPL"] = 97
	closed = m.MonitorPositions(context.Background(), map[string]float64{"AAPL": 97})
	require.Len(t, closed, 1)
	assert.Equal(t, StatusFilled, closed[0].Status)
	assert.Equal(t, broker.SideSell, closed[0].Side)

	view := ledger.View()
	assert.False(t, view.HasPosition("AAPL"))
	// Bought 200, sold 194.
	assert.InDelta(t, -6, view.RealizedPnLToday, 1e-9)
}

func TestMonitorPositions_TakeProfitClose(t *testing.T) {
	prices := map[string]float64{"AAPL": 100}
	sim := broker.NewSimulator(fixedPrices(prices))
	m, ledger := newTestManager(t, sim, 1000)

	_, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)

	prices["AAPL"] = 106
	closed := m.MonitorPositions(context.Background(), map[string]float64{"AAPL": 106})
	require.Len(t, closed, 1)

	view := ledger.View()
	assert.False(t, view.HasPosition("AAPL"))
	assert.InDelta(t, 12, view.RealizedPnLToday, 1e-9)
}

func TestReconcile_SettlesHeldOrder(t *testing.T) {
	prices := map[string]float64{"AAPL": 100}
	sim := broker.NewSimulator(fixedPrices(prices))
	sim.HoldNextSubmits(1)
	m, ledger := newTestManager(t, sim, 1000)

	ord, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, ord.Status)
	assert.False(t, ledger.View().HasPosition("AAPL"))

	// The fill lands at the broker between cycles; reconcile picks it up.
	sim.ForceFill(ord.BrokerOrderID, 2, 100)
	m.Reconcile(context.Background())

	assert.Equal(t, StatusFilled, ord.Status)
	view := ledger.View()
	assert.True(t, view.HasPosition("AAPL"))
	assert.InDelta(t, 800, view.AvailableCapital, 1e-9)
	assert.Empty(t, m.DrainMismatches())
}

func TestReconcile_LateFillAfterLocalCancel(t *testing.T) {
	prices := map[string]float64{"AAPL": 100}
	sim := broker.NewSimulator(fixedPrices(prices))
	sim.HoldNextSubmits(1)
	m, ledger := newTestManager(t, sim, 1000)

	ord, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, ord.Status)

	// The broker cancels the working order; reconcile marks it locally and
	// releases the reservation.
	require.NoError(t, sim.CancelOrder(context.Background(), ord.BrokerOrderID))
	m.Reconcile(context.Background())
	require.Equal(t, StatusCancelled, ord.Status)
	assert.InDelta(t, 1000, ledger.View().AvailableCapital, 1e-9)

	// Then a fill surfaces anyway. Broker state is authoritative: the local
	// record is corrected, the ledger settled, and a mismatch surfaced.
	sim.ForceFill(ord.BrokerOrderID, 2, 100)
	m.Reconcile(context.Background())

	assert.Equal(t, StatusFilled, ord.Status)
	mismatches := m.DrainMismatches()
	require.Len(t, mismatches, 1)
	assert.True(t, engerrors.IsCategory(mismatches[0], engerrors.CategoryReconciliationMismatch))

	view := ledger.View()
	assert.True(t, view.HasPosition("AAPL"))
}

func TestDrainEvents_RecordsLifecycle(t *testing.T) {
	sim := broker.NewSimulator(fixedPrices(map[string]float64{"AAPL": 100}))
	m, _ := newTestManager(t, sim, 1000)

	_, err := m.Execute(context.Background(), buyIntent("AAPL", 2, 100))
	require.NoError(t, err)

	events := m.DrainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, StatusCreated, events[0].From)
	assert.Equal(t, StatusSubmitted, events[0].To)
	assert.Equal(t, StatusSubmitted, events[1].From)
	assert.Equal(t, StatusFilled, events[1].To)

	// Draining clears the buffer.
	assert.Empty(t, m.DrainEvents())
}
