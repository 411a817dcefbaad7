// Package bot runs the decision loop: refresh market data, generate signals,
// evaluate risk, execute intents, and watch open positions, once per
// configured interval during market hours.
package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ajseidenfrau/NVSTWZ/internal/config"
	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/internal/feed"
	"github.com/ajseidenfrau/NVSTWZ/internal/monitoring"
	"github.com/ajseidenfrau/NVSTWZ/internal/notifications"
	"github.com/ajseidenfrau/NVSTWZ/internal/order"
	"github.com/ajseidenfrau/NVSTWZ/internal/portfolio"
	"github.com/ajseidenfrau/NVSTWZ/internal/reporting"
	"github.com/ajseidenfrau/NVSTWZ/internal/risk"
	"github.com/ajseidenfrau/NVSTWZ/internal/signal"
)

// Engine wires the pipeline together and owns the cycle schedule.
type Engine struct {
	cfg       *config.Config
	book      *feed.Book
	generator *signal.Generator
	riskMgr   *risk.Manager
	orders    *order.Manager
	ledger    *portfolio.Ledger
	sink      reporting.Sink
	notifier  notifications.Notifier
	health    *monitoring.HealthChecker
	log       *zap.Logger
	clock     func() time.Time

	loc       *time.Location
	openMins  int
	closeMins int

	cycle int
}

// NewEngine builds the engine. The market-hours window is resolved once at
// construction; config.Validate has already verified it parses.
func NewEngine(
	cfg *config.Config,
	book *feed.Book,
	generator *signal.Generator,
	riskMgr *risk.Manager,
	orders *order.Manager,
	ledger *portfolio.Ledger,
	sink reporting.Sink,
	notifier notifications.Notifier,
	health *monitoring.HealthChecker,
	log *zap.Logger,
) (*Engine, error) {
	loc, err := time.LoadLocation(cfg.Markets.Timezone)
	if err != nil {
		return nil, engerrors.NewConfiguration(fmt.Sprintf("market timezone %q: %v", cfg.Markets.Timezone, err))
	}
	openMins, err := parseClockMinutes(cfg.Markets.Open)
	if err != nil {
		return nil, engerrors.NewConfiguration(fmt.Sprintf("market open %q: %v", cfg.Markets.Open, err))
	}
	closeMins, err := parseClockMinutes(cfg.Markets.Close)
	if err != nil {
		return nil, engerrors.NewConfiguration(fmt.Sprintf("market close %q: %v", cfg.Markets.Close, err))
	}

	return &Engine{
		cfg:       cfg,
		book:      book,
		generator: generator,
		riskMgr:   riskMgr,
		orders:    orders,
		ledger:    ledger,
		sink:      sink,
		notifier:  notifier,
		health:    health,
		log:       log.Named("engine"),
		clock:     time.Now,
		loc:       loc,
		openMins:  openMins,
		closeMins: closeMins,
	}, nil
}

// SetClock overrides the time source, used by tests.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

// Run executes decision cycles until the context is cancelled. The ticker
// never overlaps cycles: a cycle that outruns the interval simply delays the
// next one. Errors inside a cycle are logged and reported, never fatal.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting",
		zap.Strings("symbols", e.cfg.Signals.Symbols),
		zap.Duration("interval", e.cfg.Trading.CycleInterval),
		zap.Float64("initial_capital", e.cfg.Trading.InitialCapital))
	e.notify("success", fmt.Sprintf("Engine started: %d symbols, $%.2f capital",
		len(e.cfg.Signals.Symbols), e.cfg.Trading.InitialCapital))

	ticker := time.NewTicker(e.cfg.Trading.CycleInterval)
	defer ticker.Stop()

	e.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// RunOnce executes a single cycle regardless of market hours. Used by tests
// and the one-shot CLI mode.
func (e *Engine) RunOnce(ctx context.Context) {
	e.executeCycle(ctx)
}

func (e *Engine) runCycle(ctx context.Context) {
	if !e.withinMarketHours(e.clock()) {
		e.log.Debug("outside market hours, skipping cycle")
		return
	}
	e.executeCycle(ctx)
}

func (e *Engine) executeCycle(ctx context.Context) {
	start := e.clock()
	e.cycle++
	e.ledger.ResetDayIfNeeded()

	feedErrs := e.book.Refresh(ctx, e.cfg.Signals.Symbols)
	e.health.MarkFeed(len(feedErrs) < len(e.cfg.Signals.Symbols))
	for sym, err := range feedErrs {
		e.log.Warn("symbol dropped for this cycle",
			zap.String("symbol", sym), zap.Error(err))
		monitoring.RecordError(string(engerrors.CategoryOf(err)))
	}

	prices := e.currentPrices()
	for sym, price := range prices {
		monitoring.UpdatePrice(sym, price)
	}

	// Settle anything still pending from earlier cycles before deciding
	// anew, so risk sees an accurate ledger.
	e.orders.Reconcile(ctx)
	e.orders.MonitorPositions(ctx, prices)

	signals := e.generator.Generate(e.book)
	for _, sig := range signals {
		monitoring.RecordSignal(sig.Symbol, string(sig.Direction))
	}

	result := e.riskMgr.Evaluate(e.ledger.View(), signals, prices)
	for _, rej := range result.Rejections {
		monitoring.RecordRejection(rej.Reason)
	}

	for _, intent := range result.Intents {
		ord, err := e.orders.Execute(ctx, intent)
		if err != nil {
			e.log.Error("intent execution failed",
				zap.String("symbol", intent.Symbol), zap.Error(err))
			monitoring.RecordError(string(engerrors.CategoryOf(err)))
			e.notifyOperator(err)
		}
		if ord != nil && ord.Status.Terminal() {
			monitoring.RecordOrder(ord.Symbol, string(ord.Status))
		}
	}

	for _, mis := range e.orders.DrainMismatches() {
		e.health.RecordError(mis.Error())
		e.notifyOperator(mis)
	}

	view := e.ledger.View()
	monitoring.UpdatePortfolio(view.TotalCapital, view.AvailableCapital,
		view.RealizedPnLToday, len(view.Positions))

	report := &reporting.CycleReport{
		Cycle:      e.cycle,
		StartedAt:  start,
		Duration:   e.clock().Sub(start),
		Symbols:    len(e.cfg.Signals.Symbols),
		FeedErrors: feedErrs,
		Signals:    signals,
		Intents:    result.Intents,
		Rejections: result.Rejections,
		Orders:     e.orders.DrainEvents(),
		Portfolio:  view,
	}
	if err := e.sink.WriteCycle(report); err != nil {
		e.log.Warn("cycle report failed", zap.Error(err))
	}

	monitoring.RecordCycle(e.clock().Sub(start).Seconds())
	e.health.MarkCycle()
	e.log.Info("cycle complete",
		zap.Int("cycle", e.cycle),
		zap.Int("signals", len(signals)),
		zap.Int("intents", len(result.Intents)),
		zap.Int("rejections", len(result.Rejections)),
		zap.Duration("took", e.clock().Sub(start)))
}

// shutdown optionally flattens the book, then says goodbye. It runs on a
// fresh context because the loop's context is already cancelled.
func (e *Engine) shutdown() {
	if e.cfg.Trading.CloseAllOnShutdown {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		e.closeAll(ctx)
	}
	view := e.ledger.View()
	e.notify("warning", fmt.Sprintf("Engine stopped. Capital $%.2f, realized today $%.2f, %d open positions",
		view.TotalCapital, view.RealizedPnLToday, len(view.Positions)))
	e.log.Info("engine stopped",
		zap.Float64("total_capital", view.TotalCapital),
		zap.Int("open_positions", len(view.Positions)))
}

func (e *Engine) closeAll(ctx context.Context) {
	view := e.ledger.View()
	for sym := range view.Positions {
		intent, err := e.riskMgr.EvaluateClose(e.ledger.View(), sym, "shutdown")
		if err != nil {
			e.log.Warn("shutdown close skipped", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		if _, err := e.orders.Execute(ctx, intent); err != nil {
			e.log.Error("shutdown close failed", zap.String("symbol", sym), zap.Error(err))
		}
	}
}

func (e *Engine) currentPrices() map[string]float64 {
	prices := make(map[string]float64)
	for _, sym := range e.book.Symbols() {
		if snap, ok := e.book.Snapshot(sym); ok {
			prices[sym] = snap.Price
		}
	}
	return prices
}

// withinMarketHours reports whether now falls inside the configured trading
// window, exchange-local.
func (e *Engine) withinMarketHours(now time.Time) bool {
	local := now.In(e.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	mins := local.Hour()*60 + local.Minute()
	return mins >= e.openMins && mins < e.closeMins
}

func (e *Engine) notify(level, message string) {
	if err := e.notifier.SendAlert(level, message); err != nil {
		e.log.Warn("notification failed", zap.Error(err))
	}
}

// notifyOperator alerts only for failures an operator should act on.
func (e *Engine) notifyOperator(err error) {
	switch engerrors.CategoryOf(err) {
	case engerrors.CategorySubmissionFailed, engerrors.CategoryReconciliationMismatch:
		e.notify("error", err.Error())
	}
}

func parseClockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
