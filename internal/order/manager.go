package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/ajseidenfrau/NVSTWZ/internal/broker"
	"github.com/ajseidenfrau/NVSTWZ/internal/config"
	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/internal/portfolio"
	"github.com/ajseidenfrau/NVSTWZ/internal/risk"
	"github.com/ajseidenfrau/NVSTWZ/internal/signal"
)

// Manager executes trade intents against the broker and keeps the portfolio
// ledger consistent with what actually happened at the broker. It is the only
// component that talks to the execution client.
type Manager struct {
	client  broker.ExecutionClient
	ledger  *portfolio.Ledger
	riskMgr *risk.Manager
	cfg     config.OrderConfig
	log     *zap.Logger
	clock   func() time.Time

	mu       sync.Mutex
	inflight map[string]bool // symbols with an order currently in flight
	orders   map[string]*Order
	events   []TransitionRecord
	mismatch []error
}

// NewManager builds an order manager over the given execution client and
// portfolio ledger.
func NewManager(client broker.ExecutionClient, ledger *portfolio.Ledger, riskMgr *risk.Manager, cfg config.OrderConfig, log *zap.Logger) *Manager {
	return &Manager{
		client:   client,
		ledger:   ledger,
		riskMgr:  riskMgr,
		cfg:      cfg,
		log:      log.Named("orders"),
		clock:    time.Now,
		inflight: make(map[string]bool),
		orders:   make(map[string]*Order),
	}
}

// SetClock overrides the time source, used by tests.
func (m *Manager) SetClock(clock func() time.Time) { m.clock = clock }

// Execute runs one trade intent through the full lifecycle: reserve capital,
// submit with bounded retries, resolve the fill, and settle the ledger. It
// returns the order in its final (terminal) state. A non-nil error means the
// intent produced no position change beyond what the order itself records.
func (m *Manager) Execute(ctx context.Context, intent risk.TradeIntent) (*Order, error) {
	if !m.acquire(intent.Symbol) {
		return nil, engerrors.New(engerrors.CategorySubmissionFailed, "orders", "execute",
			fmt.Sprintf("order already in flight for %s", intent.Symbol))
	}
	defer m.release(intent.Symbol)

	now := m.clock()
	ord := &Order{
		ID:             uuid.NewString(),
		Symbol:         intent.Symbol,
		Side:           sideFor(intent.Direction),
		Quantity:       intent.Quantity,
		Status:         StatusCreated,
		IdempotencyKey: uuid.NewString(),
		Notional:       intent.Notional,
		StopLoss:       intent.StopLoss,
		TakeProfit:     intent.TakeProfit,
		Closing:        intent.Closing,
		CreatedAt:      now,
	}
	m.track(ord)

	// Capital is reserved before the order ever reaches the broker. A sell
	// closes an existing position and ties up nothing new.
	if ord.Side == broker.SideBuy {
		if err := m.ledger.Reserve(ord.Notional); err != nil {
			m.reject(ord, "insufficient capital to reserve")
			return ord, engerrors.Wrap(err, engerrors.CategoryRiskRejected, "orders", "reserve")
		}
		ord.ReservedCapital = ord.Notional
	}

	brokerID, err := m.submitWithRetry(ctx, ord, intent)
	if err != nil {
		m.releaseRemainder(ord)
		m.reject(ord, "submission failed")
		return ord, err
	}
	ord.BrokerOrderID = brokerID
	m.transition(ord, StatusSubmitted, "accepted by broker")
	m.ledger.RecordSubmission()

	report, err := m.client.GetOrderStatus(ctx, brokerID)
	if err != nil {
		// The broker accepted the order but we cannot see its state. The
		// submission stands; reconciliation will settle it next cycle.
		m.log.Warn("order status unavailable after submit",
			zap.String("order_id", ord.ID),
			zap.String("broker_order_id", brokerID),
			zap.Error(err))
		return ord, nil
	}
	return ord, m.resolve(ctx, ord, report)
}

// submitWithRetry submits the order, retrying transient failures with
// exponential backoff. The same idempotency key is reused on every attempt so
// a retry after an ambiguous failure can never double-submit.
func (m *Manager) submitWithRetry(ctx context.Context, ord *Order, intent risk.TradeIntent) (string, error) {
	b := &backoff.Backoff{
		Min:    m.cfg.InitialRetryDelay,
		Max:    m.cfg.MaxRetryDelay,
		Factor: 2,
		Jitter: true,
	}

	req := broker.SubmitRequest{
		Symbol:         ord.Symbol,
		Side:           ord.Side,
		Quantity:       ord.Quantity,
		IdempotencyKey: ord.IdempotencyKey,
	}
	if intent.PriceType == risk.PriceTypeLimit {
		req.LimitPrice = intent.LimitPrice
	}

	var lastErr error
	attempts := m.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		ord.Attempts++
		submitCtx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
		id, err := m.client.SubmitOrder(submitCtx, req)
		cancel()
		if err == nil {
			return id, nil
		}
		lastErr = err
		m.log.Warn("order submission failed",
			zap.String("symbol", ord.Symbol),
			zap.Int("attempt", ord.Attempts),
			zap.Error(err))

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", engerrors.Wrap(ctx.Err(), engerrors.CategorySubmissionFailed, "orders", "submit")
		case <-time.After(b.Duration()):
		}
	}
	return "", engerrors.NewSubmissionFailed(ord.Symbol, lastErr)
}

// resolve settles a status report into the order and the ledger.
func (m *Manager) resolve(ctx context.Context, ord *Order, report *broker.StatusReport) error {
	switch report.State {
	case broker.StateFilled:
		m.transition(ord, StatusFilled, "filled")
		m.settleNewFills(ord, report)
		m.releaseRemainder(ord)
		return nil

	case broker.StatePartiallyFilled:
		m.transition(ord, StatusPartiallyFilled, "partial fill")
		m.settleNewFills(ord, report)
		if !m.cfg.CancelPartialFills {
			// The remainder keeps working at the broker; its reservation
			// stays held and reconciliation tracks the order each cycle.
			return nil
		}
		if err := m.client.CancelOrder(ctx, ord.BrokerOrderID); err != nil {
			m.log.Warn("cancel of partial remainder failed",
				zap.String("order_id", ord.ID), zap.Error(err))
		}
		m.transition(ord, StatusCancelled, "remainder cancelled")
		m.releaseRemainder(ord)
		return nil

	case broker.StateRejected:
		m.releaseRemainder(ord)
		m.reject(ord, "rejected by broker")
		return engerrors.NewSubmissionFailed(ord.Symbol, fmt.Errorf("order %s rejected", ord.BrokerOrderID))

	case broker.StateCancelled:
		// A cancel can still carry fills that landed before it took effect.
		m.settleNewFills(ord, report)
		m.releaseRemainder(ord)
		m.transition(ord, StatusCancelled, "cancelled at broker")
		return nil

	default:
		// Still open. Reconciliation picks it up next cycle.
		return nil
	}
}

// settleNewFills applies the portion of the broker-reported fill that has not
// reached the ledger yet. Buy fills consume the order's reservation at cost;
// whatever reservation the fill does not consume stays held for the working
// remainder until releaseRemainder.
func (m *Manager) settleNewFills(ord *Order, report *broker.StatusReport) {
	delta := report.FilledQuantity - ord.SettledQuantity
	if delta <= 0 {
		return
	}
	ord.FilledQuantity = report.FilledQuantity
	ord.FilledPrice = report.AvgFillPrice

	if ord.Side == broker.SideBuy {
		consume := delta * report.AvgFillPrice
		if consume > ord.ReservedCapital {
			consume = ord.ReservedCapital
		}
		ord.ReservedCapital -= consume
		m.ledger.ApplyBuyFill(ord.Symbol, delta, report.AvgFillPrice, consume, ord.StopLoss, ord.TakeProfit)
	} else if err := m.ledger.ApplySellFill(ord.Symbol, delta, report.AvgFillPrice); err != nil {
		m.log.Error("sell fill could not be applied",
			zap.String("symbol", ord.Symbol), zap.Error(err))
	}
	ord.SettledQuantity = report.FilledQuantity

	m.log.Info("fill settled",
		zap.String("symbol", ord.Symbol),
		zap.String("side", string(ord.Side)),
		zap.Float64("quantity", delta),
		zap.Float64("price", report.AvgFillPrice))
}

// releaseRemainder returns whatever reservation the order still holds.
func (m *Manager) releaseRemainder(ord *Order) {
	if ord.ReservedCapital > 0 {
		m.ledger.Release(ord.ReservedCapital)
		ord.ReservedCapital = 0
	}
}

// Reconcile re-reads broker state for every non-terminal order and corrects
// local state to match. Broker state is authoritative: a fill discovered on
// an order we considered cancelled is applied to the ledger and surfaced as a
// reconciliation discrepancy rather than ignored.
func (m *Manager) Reconcile(ctx context.Context) {
	for _, ord := range m.openOrders() {
		report, err := m.client.GetOrderStatus(ctx, ord.BrokerOrderID)
		if err != nil {
			m.log.Warn("reconcile: status fetch failed",
				zap.String("order_id", ord.ID), zap.Error(err))
			continue
		}

		switch report.State {
		case broker.StateFilled:
			m.transition(ord, StatusFilled, "reconciled: filled")
			m.settleNewFills(ord, report)
			m.releaseRemainder(ord)
		case broker.StatePartiallyFilled:
			if ord.Status != StatusPartiallyFilled {
				m.transition(ord, StatusPartiallyFilled, "reconciled: partial fill")
			}
			m.settleNewFills(ord, report)
		case broker.StateRejected:
			m.releaseRemainder(ord)
			m.reject(ord, "reconciled: rejected by broker")
		case broker.StateCancelled:
			// Fills that landed before the cancel are kept; only the
			// unfilled remainder's reservation comes back.
			m.settleNewFills(ord, report)
			m.releaseRemainder(ord)
			m.transition(ord, StatusCancelled, "reconciled: cancelled at broker")
		}
	}

	// Terminal-but-cancelled orders can still have filled behind our back.
	for _, ord := range m.cancelledOrders() {
		report, err := m.client.GetOrderStatus(ctx, ord.BrokerOrderID)
		if err != nil || report.State != broker.StateFilled {
			continue
		}
		mis := engerrors.NewReconciliationMismatch(ord.ID,
			fmt.Sprintf("%s: broker reports filled %.4f @ %.2f on locally cancelled order",
				ord.Symbol, report.FilledQuantity, report.AvgFillPrice))
		m.recordMismatch(mis)
		m.log.Error("reconciliation mismatch", zap.Error(mis))

		// The fill is real. Force the local record to match and settle it.
		// The reservation is long released, so a buy comes straight out of
		// available capital.
		prev := ord.Status
		ord.Status = StatusFilled
		ord.FilledAt = m.clock()
		m.record(ord, prev, StatusFilled, "reconciled: late fill, broker state authoritative")
		m.settleNewFills(ord, report)
	}
}

// MonitorPositions checks every open position against its stop-loss and
// take-profit thresholds at the given prices and closes any breach in the
// same cycle. It returns the closing orders it executed.
func (m *Manager) MonitorPositions(ctx context.Context, prices map[string]float64) []*Order {
	view := m.ledger.View()

	symbols := make([]string, 0, len(view.Positions))
	for sym := range view.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var closed []*Order
	for _, sym := range symbols {
		pos := view.Positions[sym]
		price, ok := prices[sym]
		if !ok {
			continue
		}
		m.ledger.MarkPrice(sym, price)

		var trigger string
		switch {
		case pos.StopLoss > 0 && price <= pos.StopLoss:
			trigger = "stop-loss"
		case pos.TakeProfit > 0 && price >= pos.TakeProfit:
			trigger = "take-profit"
		default:
			continue
		}

		intent, err := m.riskMgr.EvaluateClose(m.ledger.View(), sym, trigger)
		if err != nil {
			m.log.Warn("threshold close not evaluable",
				zap.String("symbol", sym), zap.Error(err))
			continue
		}
		m.log.Info("position threshold breached",
			zap.String("symbol", sym),
			zap.String("trigger", trigger),
			zap.Float64("price", price),
			zap.Float64("stop_loss", pos.StopLoss),
			zap.Float64("take_profit", pos.TakeProfit))

		ord, err := m.Execute(ctx, intent)
		if err != nil {
			m.log.Error("threshold close failed",
				zap.String("symbol", sym), zap.Error(err))
		}
		if ord != nil {
			closed = append(closed, ord)
		}
	}
	return closed
}

// DrainEvents returns the transition records accumulated since the last call
// and clears the buffer. The engine feeds them to the reporting sinks.
func (m *Manager) DrainEvents() []TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events
	m.events = nil
	return out
}

// DrainMismatches returns reconciliation discrepancies accumulated since the
// last call and clears the buffer.
func (m *Manager) DrainMismatches() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.mismatch
	m.mismatch = nil
	return out
}

// Order returns a tracked order by engine ID.
func (m *Manager) Order(id string) (*Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, ok := m.orders[id]
	return ord, ok
}

func (m *Manager) acquire(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[symbol] {
		return false
	}
	m.inflight[symbol] = true
	return true
}

func (m *Manager) release(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, symbol)
}

func (m *Manager) track(ord *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[ord.ID] = ord
}

func (m *Manager) openOrders() []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, ord := range m.orders {
		if !ord.Status.Terminal() && ord.BrokerOrderID != "" {
			out = append(out, ord)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) cancelledOrders() []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, ord := range m.orders {
		if ord.Status == StatusCancelled && ord.BrokerOrderID != "" && ord.FilledQuantity == 0 {
			out = append(out, ord)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) transition(ord *Order, to Status, reason string) {
	from := ord.Status
	if err := ord.Transition(to, m.clock()); err != nil {
		m.log.Error("invalid order transition", zap.Error(err))
		return
	}
	m.record(ord, from, to, reason)
}

func (m *Manager) reject(ord *Order, reason string) {
	ord.RejectReason = reason
	m.transition(ord, StatusRejected, reason)
}

func (m *Manager) record(ord *Order, from, to Status, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, TransitionRecord{
		OrderID: ord.ID,
		Symbol:  ord.Symbol,
		From:    from,
		To:      to,
		Reason:  reason,
		At:      m.clock(),
	})
}

func (m *Manager) recordMismatch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mismatch = append(m.mismatch, err)
}

func sideFor(d signal.Direction) broker.Side {
	if d == signal.DirectionSell {
		return broker.SideSell
	}
	return broker.SideBuy
}
