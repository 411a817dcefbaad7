// Package portfolio holds the single source of truth for capital and
// holdings. Exactly one Ledger exists per process; only the order lifecycle
// manager mutates it, everything else reads immutable View copies.
package portfolio

import (
	"fmt"
	"sync"
	"time"
)

// Position is the current holding in a symbol. At most one exists per
// symbol; it is created on first fill and removed when quantity returns to
// zero.
type Position struct {
	Symbol        string
	Quantity      float64
	AvgCost       float64
	CurrentPrice  float64
	UnrealizedPnL float64
	StopLoss      float64 // absolute price threshold
	TakeProfit    float64 // absolute price threshold
	OpenedAt      time.Time
}

// Committed returns the capital tied up in the position at cost.
func (p Position) Committed() float64 {
	return p.Quantity * p.AvgCost
}

// View is an immutable copy of the ledger for risk decisions and reporting.
type View struct {
	TotalCapital     float64
	AvailableCapital float64
	RealizedPnLToday float64
	TradesToday      int
	Positions        map[string]Position
}

// HasPosition reports whether a position is open for the symbol.
func (v View) HasPosition(symbol string) bool {
	_, ok := v.Positions[symbol]
	return ok
}

// CommittedCapital returns the sum committed across open positions.
func (v View) CommittedCapital() float64 {
	var sum float64
	for _, p := range v.Positions {
		sum += p.Committed()
	}
	return sum
}

// Ledger is the process-wide portfolio state. All mutations happen under one
// lock, giving the single-writer discipline the cycle depends on.
type Ledger struct {
	mu sync.Mutex

	available     float64
	reserved      float64 // capital held against in-flight orders
	realizedToday float64
	tradesToday   int
	positions     map[string]*Position

	day   time.Time
	clock func() time.Time
}

// NewLedger creates a Ledger with the given starting capital.
func NewLedger(initialCapital float64) *Ledger {
	return &Ledger{
		available: initialCapital,
		positions: make(map[string]*Position),
		day:       time.Now().Truncate(24 * time.Hour),
		clock:     time.Now,
	}
}

// SetClock overrides the time source for tests and re-anchors the current
// trading day to it.
func (l *Ledger) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
	l.day = clock().Truncate(24 * time.Hour)
}

// View returns an immutable copy of the current state.
func (l *Ledger) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make(map[string]Position, len(l.positions))
	var committed float64
	for s, p := range l.positions {
		positions[s] = *p
		committed += p.Committed()
	}
	return View{
		TotalCapital:     l.available + l.reserved + committed,
		AvailableCapital: l.available,
		RealizedPnLToday: l.realizedToday,
		TradesToday:      l.tradesToday,
		Positions:        positions,
	}
}

// Reserve holds capital against an order about to be submitted. It fails
// when the amount exceeds what is available, which keeps the invariant that
// committed plus reserved capital never exceeds the total.
func (l *Ledger) Reserve(amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %.2f", amount)
	}
	if amount > l.available {
		return fmt.Errorf("insufficient capital: need %.2f, available %.2f", amount, l.available)
	}
	l.available -= amount
	l.reserved += amount
	return nil
}

// Release returns reserved capital after a rejected or cancelled order.
func (l *Ledger) Release(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount > l.reserved {
		amount = l.reserved
	}
	l.reserved -= amount
	l.available += amount
}

// RecordSubmission counts an order against the daily trade limit. An order
// counts exactly once, regardless of how many fill events it produces.
func (l *Ledger) RecordSubmission() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tradesToday++
}

// ApplyBuyFill converts reserved capital into a position at the actual fill
// price. The difference between the reservation and the real cost flows back
// to available capital.
func (l *Ledger) ApplyBuyFill(symbol string, qty, fillPrice, reservedAmount, stopLoss, takeProfit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if reservedAmount > l.reserved {
		reservedAmount = l.reserved
	}
	l.reserved -= reservedAmount
	cost := qty * fillPrice
	l.available += reservedAmount - cost

	if pos, ok := l.positions[symbol]; ok {
		totalQty := pos.Quantity + qty
		pos.AvgCost = (pos.Committed() + cost) / totalQty
		pos.Quantity = totalQty
		pos.CurrentPrice = fillPrice
		return
	}
	l.positions[symbol] = &Position{
		Symbol:       symbol,
		Quantity:     qty,
		AvgCost:      fillPrice,
		CurrentPrice: fillPrice,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		OpenedAt:     l.clock(),
	}
}

// ApplySellFill books the proceeds of a closing fill: realized P&L is added
// to the daily figure, quantity is reduced, and the position is removed when
// it reaches zero.
func (l *Ledger) ApplySellFill(symbol string, qty, fillPrice float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("no open position in %s", symbol)
	}
	if qty > pos.Quantity {
		qty = pos.Quantity
	}

	l.available += qty * fillPrice
	l.realizedToday += (fillPrice - pos.AvgCost) * qty

	pos.Quantity -= qty
	if pos.Quantity <= 1e-9 {
		delete(l.positions, symbol)
	}
	return nil
}

// MarkPrice refreshes a position's current price and unrealized P&L.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[symbol]; ok {
		pos.CurrentPrice = price
		pos.UnrealizedPnL = (price - pos.AvgCost) * pos.Quantity
	}
}

// ResetDayIfNeeded zeroes the daily counters when the calendar day changes.
func (l *Ledger) ResetDayIfNeeded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	today := l.clock().Truncate(24 * time.Hour)
	if today.After(l.day) {
		l.tradesToday = 0
		l.realizedToday = 0
		l.day = today
	}
}
