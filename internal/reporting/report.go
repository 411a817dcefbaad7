// Package reporting renders per-cycle engine activity to the configured
// sinks: console tables, a SQLite history database, and an Excel daily trade
// log.
package reporting

import (
	"time"

	"go.uber.org/zap"

	"github.com/ajseidenfrau/NVSTWZ/internal/order"
	"github.com/ajseidenfrau/NVSTWZ/internal/portfolio"
	"github.com/ajseidenfrau/NVSTWZ/internal/risk"
	"github.com/ajseidenfrau/NVSTWZ/internal/signal"
)

// CycleReport captures everything one decision cycle did.
type CycleReport struct {
	Cycle      int
	StartedAt  time.Time
	Duration   time.Duration
	Symbols    int
	FeedErrors map[string]error

	Signals    []signal.Signal
	Intents    []risk.TradeIntent
	Rejections []risk.Rejection
	Orders     []order.TransitionRecord

	Portfolio portfolio.View
}

// Sink consumes cycle reports. Implementations must tolerate being called
// once per cycle for the lifetime of the process.
type Sink interface {
	Name() string
	WriteCycle(report *CycleReport) error
	Close() error
}

// Multi fans a report out to several sinks. A failing sink is logged and
// skipped; reporting never stops the engine.
type Multi struct {
	sinks []Sink
	log   *zap.Logger
}

// NewMulti builds a fan-out over the given sinks.
func NewMulti(log *zap.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, log: log.Named("reporting")}
}

func (m *Multi) Name() string { return "multi" }

// WriteCycle delivers the report to every sink.
func (m *Multi) WriteCycle(report *CycleReport) error {
	for _, s := range m.sinks {
		if err := s.WriteCycle(report); err != nil {
			m.log.Warn("report sink failed",
				zap.String("sink", s.Name()),
				zap.Error(err))
		}
	}
	return nil
}

// Close closes every sink, returning the first error seen.
func (m *Multi) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
