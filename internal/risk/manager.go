// Package risk is the gatekeeper between signals and orders: no order may
// be created except through a TradeIntent issued here.
package risk

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ajseidenfrau/NVSTWZ/internal/config"
	"github.com/ajseidenfrau/NVSTWZ/internal/portfolio"
	"github.com/ajseidenfrau/NVSTWZ/internal/signal"
)

// Manager sizes and filters signals against the portfolio state. It holds
// no mutable state of its own; every decision reads a fresh View.
type Manager struct {
	cfg   config.TradingConfig
	log   *zap.Logger
	clock func() time.Time
}

// NewManager creates a Manager with the given trading limits.
func NewManager(cfg config.TradingConfig, log *zap.Logger) *Manager {
	return &Manager{cfg: cfg, log: log, clock: time.Now}
}

// SetClock overrides the time source for tests.
func (m *Manager) SetClock(clock func() time.Time) { m.clock = clock }

// Evaluate walks the ranked signals in order and converts them to intents
// until capital runs out or the per-cycle cap is reached. The walk order and
// early exits decide which opportunities get funded when capital is scarce,
// so they must stay exactly as written: daily cap, position check, sizing,
// daily loss projection, threshold attachment.
func (m *Manager) Evaluate(view portfolio.View, signals []signal.Signal, prices map[string]float64) Result {
	var res Result

	remainingTrades := m.cfg.MaxDailyTrades - view.TradesToday
	available := view.AvailableCapital
	projectedLoss := 0.0

	reject := func(s signal.Signal, reason string) {
		res.Rejections = append(res.Rejections, Rejection{
			Symbol:    s.Symbol,
			Direction: s.Direction,
			Reason:    reason,
		})
		m.log.Info("signal rejected",
			zap.String("symbol", s.Symbol),
			zap.String("direction", string(s.Direction)),
			zap.String("reason", reason))
	}

	for _, s := range signals {
		if remainingTrades <= 0 {
			reject(s, ReasonDailyTradeLimit)
			continue
		}
		if len(res.Intents) >= m.cfg.MaxIntentsPerCycle {
			reject(s, ReasonIntentCap)
			continue
		}

		price, ok := prices[s.Symbol]
		if !ok || price <= 0 {
			reject(s, ReasonNoPrice)
			continue
		}

		// No position-stacking: a second signal in an open symbol is only
		// allowed when it closes the position.
		if pos, open := view.Positions[s.Symbol]; open {
			if s.Direction != signal.DirectionSell {
				reject(s, ReasonPositionOpen)
				continue
			}
			intent := m.closingIntent(pos, fmt.Sprintf("sell signal (confidence %.2f)", s.Confidence))
			intent.Confidence = s.Confidence
			res.Intents = append(res.Intents, intent)
			remainingTrades--
			continue
		}
		if s.Direction == signal.DirectionSell {
			// Long-only book: a sell with nothing to sell goes nowhere.
			reject(s, ReasonNoPosition)
			continue
		}

		// Size by confidence against the smaller of the per-position cap and
		// what is actually left.
		maxNotional := m.cfg.PositionSizeFrac * view.TotalCapital
		if available < maxNotional {
			maxNotional = available
		}
		notional := maxNotional * s.Confidence
		if notional < m.cfg.MinTradeNotional {
			reject(s, ReasonInsufficientFund)
			continue
		}

		// Worst case this trade loses its full stop-loss distance; that
		// projection must fit under the daily loss limit together with what
		// is already realized.
		tradeRisk := notional * m.cfg.StopLossPct
		lossBudget := m.cfg.MaxDailyLoss * view.TotalCapital
		if -(view.RealizedPnLToday)+projectedLoss+tradeRisk > lossBudget {
			reject(s, ReasonDailyLossLimit)
			continue
		}

		qty := notional / price
		res.Intents = append(res.Intents, TradeIntent{
			Symbol:     s.Symbol,
			Direction:  signal.DirectionBuy,
			Quantity:   qty,
			PriceType:  PriceTypeMarket,
			Notional:   notional,
			StopLoss:   price * (1 - m.cfg.StopLossPct),
			TakeProfit: price * (1 + m.cfg.TakeProfitPct),
			Confidence: s.Confidence,
			Reason:     fmt.Sprintf("ranked signal (confidence %.2f)", s.Confidence),
			CreatedAt:  m.clock(),
		})
		available -= notional
		projectedLoss += tradeRisk
		remainingTrades--
	}

	return res
}

// EvaluateClose issues a closing intent for a threshold breach. It bypasses
// the opportunity checks (ranking, daily cap, confidence sizing) but still
// runs the capital bookkeeping a close involves; a close frees capital, so
// the only check left is that the position is real.
func (m *Manager) EvaluateClose(view portfolio.View, symbol, trigger string) (TradeIntent, error) {
	pos, ok := view.Positions[symbol]
	if !ok || pos.Quantity <= 0 {
		return TradeIntent{}, fmt.Errorf("no open position in %s", symbol)
	}
	return m.closingIntent(pos, trigger), nil
}

func (m *Manager) closingIntent(pos portfolio.Position, trigger string) TradeIntent {
	return TradeIntent{
		Symbol:    pos.Symbol,
		Direction: signal.DirectionSell,
		Quantity:  pos.Quantity,
		PriceType: PriceTypeMarket,
		Notional:  pos.Quantity * pos.CurrentPrice,
		Closing:   true,
		Reason:    trigger,
		CreatedAt: m.clock(),
	}
}
