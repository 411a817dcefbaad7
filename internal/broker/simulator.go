package broker

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time interface check.
var _ ExecutionClient = (*Simulator)(nil)

// PriceFunc supplies the current price used to fill simulated orders.
type PriceFunc func(symbol string) (float64, bool)

// Simulator implements ExecutionClient in memory for paper trading and
// tests. Market orders fill immediately at the supplied price; the failure
// and partial-fill knobs let tests drive the lifecycle manager through its
// retry and reconciliation paths.
type Simulator struct {
	mu     sync.Mutex
	price  PriceFunc
	orders map[string]*StatusReport // broker order id -> report
	byKey  map[string]string        // idempotency key -> broker order id
	nextID int

	// Test knobs.
	failSubmits  int     // fail the next N submissions
	holdSubmits  int     // leave the next N orders open instead of filling
	partialRatio float64 // fill only this fraction of quantity when > 0
}

// NewSimulator creates a Simulator filling at prices from the given func.
func NewSimulator(price PriceFunc) *Simulator {
	return &Simulator{
		price:  price,
		orders: make(map[string]*StatusReport),
		byKey:  make(map[string]string),
	}
}

// Name returns "simulator".
func (s *Simulator) Name() string { return "simulator" }

// FailNextSubmits makes the next n submissions return an error.
func (s *Simulator) FailNextSubmits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSubmits = n
}

// SetPartialRatio makes subsequent fills partial at the given fraction.
func (s *Simulator) SetPartialRatio(ratio float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partialRatio = ratio
}

// HoldNextSubmits leaves the next n orders open instead of filling them.
func (s *Simulator) HoldNextSubmits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdSubmits = n
}

// ForceFill marks an existing order filled, whatever its current state.
// Exists so tests can simulate a fill landing behind the engine's back.
func (s *Simulator) ForceFill(brokerOrderID string, qty, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if report, ok := s.orders[brokerOrderID]; ok {
		report.State = StateFilled
		report.FilledQuantity = qty
		report.AvgFillPrice = price
	}
}

// SubmitOrder fills the order at the current simulated price. A request
// whose idempotency key was already seen returns the original broker order
// id without placing anything new.
func (s *Simulator) SubmitOrder(ctx context.Context, req SubmitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, seen := s.byKey[req.IdempotencyKey]; seen {
		return id, nil
	}
	if s.failSubmits > 0 {
		s.failSubmits--
		return "", fmt.Errorf("simulated submission failure")
	}

	price, ok := s.price(req.Symbol)
	if !ok {
		return "", fmt.Errorf("no simulated price for %s", req.Symbol)
	}
	if req.LimitPrice > 0 {
		price = req.LimitPrice
	}

	s.nextID++
	id := fmt.Sprintf("sim-%d", s.nextID)

	report := &StatusReport{
		BrokerOrderID:  id,
		State:          StateFilled,
		FilledQuantity: req.Quantity,
		AvgFillPrice:   price,
	}
	if s.partialRatio > 0 && s.partialRatio < 1 {
		report.State = StatePartiallyFilled
		report.FilledQuantity = req.Quantity * s.partialRatio
	}
	if s.holdSubmits > 0 {
		s.holdSubmits--
		report.State = StateOpen
		report.FilledQuantity = 0
		report.AvgFillPrice = 0
	}

	s.orders[id] = report
	s.byKey[req.IdempotencyKey] = id
	return id, nil
}

// GetOrderStatus returns the simulated order state.
func (s *Simulator) GetOrderStatus(ctx context.Context, brokerOrderID string) (*StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.orders[brokerOrderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", brokerOrderID)
	}
	out := *report
	return &out, nil
}

// CancelOrder marks an open or partially filled order cancelled. Terminal
// orders stay as they are and the call fails.
func (s *Simulator) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("unknown order %s", brokerOrderID)
	}
	switch report.State {
	case StateOpen, StatePartiallyFilled:
		report.State = StateCancelled
		return nil
	default:
		return fmt.Errorf("order %s is %s and cannot be cancelled", brokerOrderID, report.State)
	}
}

// OrderCount returns how many distinct orders were placed. Tests use it to
// assert idempotent resubmission.
func (s *Simulator) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}
