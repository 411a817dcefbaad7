package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ajseidenfrau/NVSTWZ/internal/order"
)

const tradesSheet = "Trades"

// ExcelSink maintains a daily trade-log workbook. Each day gets its own file
// under the configured directory; terminal order events are appended as rows
// and the workbook is saved after every cycle that produced any.
type ExcelSink struct {
	dir   string
	clock func() time.Time

	fx   *excelize.File
	day  string
	row  int
	path string

	baseStyle int
}

// NewExcelSink builds an Excel sink writing daily workbooks under dir.
func NewExcelSink(dir string) (*ExcelSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create excel report directory %s: %w", dir, err)
	}
	return &ExcelSink{dir: dir, clock: time.Now}, nil
}

// SetClock overrides the time source, used by tests.
func (s *ExcelSink) SetClock(clock func() time.Time) { s.clock = clock }

func (s *ExcelSink) Name() string { return "excel" }

// WriteCycle appends the cycle's terminal order events to today's workbook.
func (s *ExcelSink) WriteCycle(report *CycleReport) error {
	rows := terminalEvents(report.Orders)
	if len(rows) == 0 {
		return nil
	}
	if err := s.ensureWorkbook(); err != nil {
		return err
	}

	for _, rec := range rows {
		s.row++
		cells := []interface{}{
			rec.At.Format("15:04:05"),
			report.Cycle,
			rec.Symbol,
			rec.OrderID,
			string(rec.To),
			rec.Reason,
		}
		for col, v := range cells {
			cell, err := excelize.CoordinatesToCellName(col+1, s.row)
			if err != nil {
				return err
			}
			if err := s.fx.SetCellValue(tradesSheet, cell, v); err != nil {
				return err
			}
		}
		if err := s.fx.SetCellStyle(tradesSheet,
			fmt.Sprintf("A%d", s.row), fmt.Sprintf("F%d", s.row), s.baseStyle); err != nil {
			return err
		}
	}

	return s.fx.SaveAs(s.path)
}

// ensureWorkbook opens today's workbook, rolling to a fresh file at the day
// boundary.
func (s *ExcelSink) ensureWorkbook() error {
	today := s.clock().Format("2006-01-02")
	if s.fx != nil && s.day == today {
		return nil
	}
	if s.fx != nil {
		s.fx.Close()
		s.fx = nil
	}

	fx := excelize.NewFile()
	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}
	baseStyle, err := fx.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return err
	}

	headers := []string{"Time", "Cycle", "Symbol", "Order ID", "Status", "Detail"}
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(tradesSheet, cell, h); err != nil {
			return err
		}
	}
	if err := fx.SetCellStyle(tradesSheet, "A1", "F1", headerStyle); err != nil {
		return err
	}
	if err := fx.SetColWidth(tradesSheet, "A", "A", 10); err != nil {
		return err
	}
	if err := fx.SetColWidth(tradesSheet, "D", "D", 38); err != nil {
		return err
	}
	if err := fx.SetColWidth(tradesSheet, "F", "F", 42); err != nil {
		return err
	}

	s.fx = fx
	s.day = today
	s.row = 1
	s.path = filepath.Join(s.dir, fmt.Sprintf("trades_%s.xlsx", today))
	s.baseStyle = baseStyle
	return nil
}

// Close saves and releases the open workbook, if any.
func (s *ExcelSink) Close() error {
	if s.fx == nil {
		return nil
	}
	err := s.fx.SaveAs(s.path)
	s.fx.Close()
	s.fx = nil
	if err != nil {
		return err
	}
	return nil
}

// terminalEvents keeps only transitions into terminal states, which is what
// the daily trade log records.
func terminalEvents(events []order.TransitionRecord) []order.TransitionRecord {
	var out []order.TransitionRecord
	for _, rec := range events {
		if rec.To.Terminal() {
			out = append(out, rec)
		}
	}
	return out
}
