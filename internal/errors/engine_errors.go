// Package errors defines the categorized error taxonomy used across the
// trading engine. Categories determine how a failure is recovered: locally
// (skip the symbol or indicator and carry on), with retries (broker
// submission), or by surfacing to the operator (reconciliation conflicts).
package errors

import (
	"errors"
	"fmt"
)

// Category classifies an engine failure.
type Category string

const (
	// CategoryDataUnavailable marks a market-data collaborator failure.
	// The affected symbol is skipped for the cycle; data is never fabricated.
	CategoryDataUnavailable Category = "DATA_UNAVAILABLE"

	// CategoryInsufficientHistory marks an indicator that lacks the minimum
	// number of history points. The indicator is excluded from scoring, never
	// zero-filled.
	CategoryInsufficientHistory Category = "INSUFFICIENT_HISTORY"

	// CategoryRiskRejected marks a signal stopped by the risk manager. It is
	// a bookkeeping outcome, not an operator-facing error.
	CategoryRiskRejected Category = "RISK_REJECTED"

	// CategorySubmissionFailed marks a broker placement failure. Retried with
	// backoff up to the configured limit, then the order is rejected.
	CategorySubmissionFailed Category = "SUBMISSION_FAILED"

	// CategoryReconciliationMismatch marks a conflict between broker-reported
	// and local order state. Local state is corrected to match the broker and
	// the discrepancy is surfaced, never silently dropped.
	CategoryReconciliationMismatch Category = "RECONCILIATION_MISMATCH"

	// CategoryConfiguration marks an invalid configuration. Fatal at startup.
	CategoryConfiguration Category = "CONFIG"
)

// EngineError is a categorized error with the component and operation that
// produced it.
type EngineError struct {
	Category   Category
	Component  string
	Operation  string
	Message    string
	Underlying error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for errors.Is / errors.As chains.
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether the failure is worth retrying. Only broker
// submission failures are; everything else is either recovered locally or
// surfaced as-is.
func (e *EngineError) IsRetryable() bool {
	return e.Category == CategorySubmissionFailed
}

// IsOperatorFacing reports whether the failure must reach the operator via
// the reporting sink rather than being absorbed by local recovery.
func (e *EngineError) IsOperatorFacing() bool {
	return e.Category == CategorySubmissionFailed || e.Category == CategoryReconciliationMismatch
}

// New creates a categorized engine error.
func New(category Category, component, operation, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// Wrap wraps an existing error with engine error context.
func Wrap(err error, category Category, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// CategoryOf returns the category of err, or an empty string when err is not
// an EngineError.
func CategoryOf(err error) Category {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category Category) bool {
	return CategoryOf(err) == category
}

// Convenience constructors for the common categories.

func NewDataUnavailable(component, symbol string, err error) *EngineError {
	return &EngineError{
		Category:   CategoryDataUnavailable,
		Component:  component,
		Operation:  "fetch",
		Message:    fmt.Sprintf("market data unavailable for %s", symbol),
		Underlying: err,
	}
}

func NewInsufficientHistory(indicator string, have, want int) *EngineError {
	return &EngineError{
		Category:  CategoryInsufficientHistory,
		Component: "indicators",
		Operation: indicator,
		Message:   fmt.Sprintf("insufficient history: have %d points, need %d", have, want),
	}
}

func NewRiskRejected(symbol, reason string) *EngineError {
	return &EngineError{
		Category:  CategoryRiskRejected,
		Component: "risk",
		Operation: "evaluate",
		Message:   fmt.Sprintf("%s: %s", symbol, reason),
	}
}

func NewSubmissionFailed(symbol string, err error) *EngineError {
	return &EngineError{
		Category:   CategorySubmissionFailed,
		Component:  "order",
		Operation:  "submit",
		Message:    fmt.Sprintf("submission failed for %s", symbol),
		Underlying: err,
	}
}

func NewReconciliationMismatch(orderID, detail string) *EngineError {
	return &EngineError{
		Category:  CategoryReconciliationMismatch,
		Component: "order",
		Operation: "reconcile",
		Message:   fmt.Sprintf("order %s: %s", orderID, detail),
	}
}

func NewConfiguration(message string) *EngineError {
	return &EngineError{
		Category:  CategoryConfiguration,
		Component: "config",
		Operation: "validate",
		Message:   message,
	}
}
