// Package broker defines the broker-execution contract the order lifecycle
// manager drives, plus Alpaca and in-memory simulator implementations.
package broker

import "context"

// Side is the broker-facing order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// State is the broker-reported state of an order.
type State string

const (
	StateOpen            State = "OPEN"
	StateFilled          State = "FILLED"
	StatePartiallyFilled State = "PARTIALLY_FILLED"
	StateRejected        State = "REJECTED"
	StateCancelled       State = "CANCELLED"
)

// SubmitRequest describes an order hand-off. IdempotencyKey is generated by
// the caller: a retried submission reuses the same key, and implementations
// must not double-place an order for a key they have already seen.
type SubmitRequest struct {
	Symbol         string
	Side           Side
	Quantity       float64
	LimitPrice     float64 // 0 means market
	IdempotencyKey string
}

// StatusReport is the broker's view of an order.
type StatusReport struct {
	BrokerOrderID  string
	State          State
	FilledQuantity float64
	AvgFillPrice   float64
}

// ExecutionClient abstracts the brokerage. Implementations are external
// collaborators: they must return errors for unavailable state rather than
// guessing, and SubmitOrder must be idempotent per request key.
type ExecutionClient interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// SubmitOrder places the order and returns the broker-side order id.
	SubmitOrder(ctx context.Context, req SubmitRequest) (string, error)

	// GetOrderStatus returns the broker's current view of the order.
	GetOrderStatus(ctx context.Context, brokerOrderID string) (*StatusReport, error)

	// CancelOrder requests cancellation of an open order.
	CancelOrder(ctx context.Context, brokerOrderID string) error
}
