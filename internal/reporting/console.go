package reporting

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ajseidenfrau/NVSTWZ/internal/signal"
)

// ConsoleSink renders each cycle as rounded tables on stdout.
type ConsoleSink struct{}

// NewConsoleSink builds a console sink.
func NewConsoleSink() *ConsoleSink { return &ConsoleSink{} }

func (s *ConsoleSink) Name() string { return "console" }

// WriteCycle prints the cycle summary, any signals and intents, and the
// portfolio state.
func (s *ConsoleSink) WriteCycle(report *CycleReport) error {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("CYCLE %d", report.Cycle))
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"⏰ Started", report.StartedAt.Format("15:04:05")},
		{"⏱  Duration", report.Duration.Round(1e6).String()},
		{"📡 Symbols", fmt.Sprintf("%d (%d failed)", report.Symbols, len(report.FeedErrors))},
		{"📊 Signals", len(report.Signals)},
		{"✅ Intents", len(report.Intents)},
		{"🚫 Rejections", len(report.Rejections)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 14, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, Align: text.AlignLeft},
	})
	t.Render()

	if len(report.Signals) > 0 {
		st := table.NewWriter()
		st.SetOutputMirror(os.Stdout)
		st.SetStyle(table.StyleRounded)
		st.AppendHeader(table.Row{"Symbol", "Direction", "Confidence", "Indicators"})
		for _, sig := range report.Signals {
			st.AppendRow(table.Row{
				sig.Symbol,
				directionLabel(sig.Direction),
				fmt.Sprintf("%.2f", sig.Confidence),
				contributingLabel(sig),
			})
		}
		st.Render()
	}

	if len(report.Rejections) > 0 {
		rt := table.NewWriter()
		rt.SetOutputMirror(os.Stdout)
		rt.SetStyle(table.StyleRounded)
		rt.AppendHeader(table.Row{"Symbol", "Direction", "Rejected"})
		for _, rej := range report.Rejections {
			rt.AppendRow(table.Row{rej.Symbol, directionLabel(rej.Direction), rej.Reason})
		}
		rt.Render()
	}

	for _, rec := range report.Orders {
		fmt.Printf("  📦 %s %s: %s → %s (%s)\n",
			rec.Symbol, shortID(rec.OrderID), rec.From, rec.To, rec.Reason)
	}

	s.printPortfolio(report)
	fmt.Println()
	return nil
}

func (s *ConsoleSink) printPortfolio(report *CycleReport) {
	view := report.Portfolio
	pt := table.NewWriter()
	pt.SetOutputMirror(os.Stdout)
	pt.SetTitle("PORTFOLIO")
	pt.SetStyle(table.StyleRounded)
	pt.AppendRows([]table.Row{
		{"💰 Total Capital", fmt.Sprintf("$%.2f", view.TotalCapital)},
		{"💵 Available", fmt.Sprintf("$%.2f", view.AvailableCapital)},
		{"📈 Realized Today", fmt.Sprintf("$%.2f", view.RealizedPnLToday)},
		{"🔄 Trades Today", view.TradesToday},
		{"📂 Open Positions", len(view.Positions)},
	})
	pt.Render()

	if len(view.Positions) == 0 {
		return
	}
	symbols := make([]string, 0, len(view.Positions))
	for sym := range view.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	ot := table.NewWriter()
	ot.SetOutputMirror(os.Stdout)
	ot.SetStyle(table.StyleRounded)
	ot.AppendHeader(table.Row{"Symbol", "Qty", "Avg Cost", "Price", "Unrealized", "Stop", "Take"})
	for _, sym := range symbols {
		pos := view.Positions[sym]
		ot.AppendRow(table.Row{
			pos.Symbol,
			fmt.Sprintf("%.4f", pos.Quantity),
			fmt.Sprintf("$%.2f", pos.AvgCost),
			fmt.Sprintf("$%.2f", pos.CurrentPrice),
			fmt.Sprintf("$%.2f", pos.UnrealizedPnL),
			fmt.Sprintf("$%.2f", pos.StopLoss),
			fmt.Sprintf("$%.2f", pos.TakeProfit),
		})
	}
	ot.Render()
}

// Close is a no-op for the console.
func (s *ConsoleSink) Close() error { return nil }

func directionLabel(d signal.Direction) string {
	if d == signal.DirectionSell {
		return "SELL"
	}
	return "BUY"
}

func contributingLabel(sig signal.Signal) string {
	parts := make([]string, 0, len(sig.Contributing))
	for _, ind := range sig.Contributing {
		parts = append(parts, fmt.Sprintf("%s=%.2f", ind.Kind, ind.Value))
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
