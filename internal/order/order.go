// Package order owns the broker-facing order lifecycle: creation,
// submission with retries, fills, cancellation, and reconciliation against
// broker state.
package order

import (
	"fmt"
	"time"

	"github.com/ajseidenfrau/NVSTWZ/internal/broker"
)

// Status is the lifecycle state of an Order.
type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusSubmitted       Status = "SUBMITTED"
	StatusFilled          Status = "FILLED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// validTransitions is the full state machine:
// Created -> Submitted -> {Filled | PartiallyFilled | Rejected | Cancelled},
// PartiallyFilled -> {Filled | Cancelled}. Created can die directly to
// Rejected (submission never succeeded) or Cancelled (superseded before
// submission).
var validTransitions = map[Status][]Status{
	StatusCreated:         {StatusSubmitted, StatusRejected, StatusCancelled},
	StatusSubmitted:       {StatusFilled, StatusPartiallyFilled, StatusRejected, StatusCancelled},
	StatusPartiallyFilled: {StatusFilled, StatusCancelled},
}

// Order is the unit of execution at the broker. It is owned exclusively by
// the Manager and mutated only through Transition (reconciliation-forced
// corrections aside, which are always surfaced as discrepancies).
type Order struct {
	ID             string
	Symbol         string
	Side           broker.Side
	Quantity       float64
	Status         Status
	BrokerOrderID  string
	IdempotencyKey string

	Notional   float64
	StopLoss   float64
	TakeProfit float64
	Closing    bool

	FilledQuantity  float64
	FilledPrice     float64
	SettledQuantity float64 // portion of FilledQuantity already applied to the ledger
	ReservedCapital float64 // reservation not yet consumed by fills or released
	RejectReason    string
	Attempts        int

	CreatedAt   time.Time
	SubmittedAt time.Time
	FilledAt    time.Time
	CancelledAt time.Time
}

// Transition moves the order to a new status, enforcing the state machine.
// An order never leaves a terminal state through here.
func (o *Order) Transition(to Status, at time.Time) error {
	if o.Status.Terminal() {
		return fmt.Errorf("order %s: cannot transition out of terminal state %s", o.ID, o.Status)
	}
	allowed := validTransitions[o.Status]
	ok := false
	for _, s := range allowed {
		if s == to {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("order %s: invalid transition %s -> %s", o.ID, o.Status, to)
	}

	o.Status = to
	switch to {
	case StatusSubmitted:
		o.SubmittedAt = at
	case StatusFilled:
		o.FilledAt = at
	case StatusCancelled:
		o.CancelledAt = at
	}
	return nil
}

// TransitionRecord is one state change, emitted to the reporting sink.
type TransitionRecord struct {
	OrderID string
	Symbol  string
	From    Status
	To      Status
	Reason  string
	At      time.Time
}
