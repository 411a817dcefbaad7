package risk

import (
	"time"

	"github.com/ajseidenfrau/NVSTWZ/internal/signal"
)

// PriceType selects how an intent should be priced at the broker.
type PriceType string

const (
	PriceTypeMarket PriceType = "MARKET"
	PriceTypeLimit  PriceType = "LIMIT"
)

// TradeIntent is a risk-approved, sized proposal to trade, prior to broker
// submission. Immutable: it either becomes an Order or is discarded.
type TradeIntent struct {
	Symbol     string
	Direction  signal.Direction
	Quantity   float64
	PriceType  PriceType
	LimitPrice float64 // only for PriceTypeLimit
	Notional   float64 // dollar size reserved for the trade
	StopLoss   float64 // absolute price, attached to the resulting position
	TakeProfit float64 // absolute price
	Closing    bool    // true when the intent closes an existing position
	Confidence float64 // from the originating signal; 0 for threshold closes
	Reason     string
	CreatedAt  time.Time
}

// Rejection names a signal the risk manager refused and why. Emitted to the
// reporting sink; not an operator-facing error.
type Rejection struct {
	Symbol    string
	Direction signal.Direction
	Reason    string
}

// Rejection reasons. The exact strings flow through to reports and tests.
const (
	ReasonDailyTradeLimit  = "daily trade limit reached"
	ReasonPositionOpen     = "position already open"
	ReasonNoPosition       = "no open position to close"
	ReasonInsufficientFund = "insufficient capital"
	ReasonDailyLossLimit   = "daily loss limit reached"
	ReasonIntentCap        = "intent cap reached"
	ReasonNoPrice          = "no current price"
)

// Result is the outcome of one risk evaluation pass.
type Result struct {
	Intents    []TradeIntent
	Rejections []Rejection
}
