package broker

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
)

// Compile-time interface check.
var _ ExecutionClient = (*AlpacaClient)(nil)

// AlpacaClient implements ExecutionClient against the Alpaca trading API.
// The idempotency key rides as the client order id, which Alpaca enforces
// uniqueness on, so a retried submission cannot double-place.
type AlpacaClient struct {
	client *alpaca.Client
}

// NewAlpacaClient creates an AlpacaClient for the given credentials and
// endpoint (paper or live).
func NewAlpacaClient(apiKey, apiSecret, baseURL string) *AlpacaClient {
	return &AlpacaClient{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
	}
}

// Name returns "alpaca".
func (c *AlpacaClient) Name() string { return "alpaca" }

// SubmitOrder places a day order with Alpaca and returns its order id.
func (c *AlpacaClient) SubmitOrder(ctx context.Context, req SubmitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	side := alpaca.Buy
	if req.Side == SideSell {
		side = alpaca.Sell
	}
	orderType := alpaca.Market
	var limitPrice *decimal.Decimal
	if req.LimitPrice > 0 {
		orderType = alpaca.Limit
		lp := decimal.NewFromFloat(req.LimitPrice)
		limitPrice = &lp
	}

	qty := decimal.NewFromFloat(req.Quantity)
	placed, err := c.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          side,
		Type:          orderType,
		LimitPrice:    limitPrice,
		TimeInForce:   alpaca.Day,
		ClientOrderID: req.IdempotencyKey,
	})
	if err != nil {
		return "", fmt.Errorf("alpaca place order %s: %w", req.Symbol, err)
	}
	return placed.ID, nil
}

// GetOrderStatus maps Alpaca's order status onto the broker State set.
func (c *AlpacaClient) GetOrderStatus(ctx context.Context, brokerOrderID string) (*StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order, err := c.client.GetOrder(brokerOrderID)
	if err != nil {
		return nil, fmt.Errorf("alpaca get order %s: %w", brokerOrderID, err)
	}

	report := &StatusReport{
		BrokerOrderID:  order.ID,
		State:          mapAlpacaStatus(order.Status),
		FilledQuantity: order.FilledQty.InexactFloat64(),
	}
	if order.FilledAvgPrice != nil {
		report.AvgFillPrice = order.FilledAvgPrice.InexactFloat64()
	}
	return report, nil
}

// CancelOrder asks Alpaca to cancel the order.
func (c *AlpacaClient) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.client.CancelOrder(brokerOrderID); err != nil {
		return fmt.Errorf("alpaca cancel order %s: %w", brokerOrderID, err)
	}
	return nil
}

func mapAlpacaStatus(status string) State {
	switch status {
	case "filled":
		return StateFilled
	case "partially_filled":
		return StatePartiallyFilled
	case "canceled", "expired", "replaced", "done_for_day":
		return StateCancelled
	case "rejected", "suspended", "stopped":
		return StateRejected
	default:
		// new, accepted, pending_new, pending_cancel, calculated, held
		return StateOpen
	}
}
