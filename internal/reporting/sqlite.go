package reporting

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cycles (
	cycle       INTEGER NOT NULL,
	started_at  TEXT    NOT NULL,
	duration_ms INTEGER NOT NULL,
	symbols     INTEGER NOT NULL,
	feed_errors INTEGER NOT NULL,
	signals     INTEGER NOT NULL,
	intents     INTEGER NOT NULL,
	rejections  INTEGER NOT NULL,
	total_capital     REAL NOT NULL,
	available_capital REAL NOT NULL,
	realized_today    REAL NOT NULL,
	trades_today      INTEGER NOT NULL,
	open_positions    INTEGER NOT NULL,
	PRIMARY KEY (cycle, started_at)
);

CREATE TABLE IF NOT EXISTS signals (
	cycle      INTEGER NOT NULL,
	symbol     TEXT    NOT NULL,
	direction  TEXT    NOT NULL,
	confidence REAL    NOT NULL,
	created_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS rejections (
	cycle     INTEGER NOT NULL,
	symbol    TEXT    NOT NULL,
	direction TEXT    NOT NULL,
	reason    TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS order_events (
	cycle       INTEGER NOT NULL,
	order_id    TEXT    NOT NULL,
	symbol      TEXT    NOT NULL,
	from_status TEXT    NOT NULL,
	to_status   TEXT    NOT NULL,
	reason      TEXT    NOT NULL,
	occurred_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id);
`

// SQLiteSink persists cycle history to a SQLite database so runs can be
// inspected after the fact.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open report database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create report schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

// WriteCycle inserts the cycle row and its child rows in one transaction.
func (s *SQLiteSink) WriteCycle(report *CycleReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	view := report.Portfolio
	_, err = tx.Exec(`INSERT INTO cycles
		(cycle, started_at, duration_ms, symbols, feed_errors, signals, intents, rejections,
		 total_capital, available_capital, realized_today, trades_today, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.Cycle,
		report.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		report.Duration.Milliseconds(),
		report.Symbols,
		len(report.FeedErrors),
		len(report.Signals),
		len(report.Intents),
		len(report.Rejections),
		view.TotalCapital,
		view.AvailableCapital,
		view.RealizedPnLToday,
		view.TradesToday,
		len(view.Positions),
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, sig := range report.Signals {
		if _, err := tx.Exec(`INSERT INTO signals (cycle, symbol, direction, confidence, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			report.Cycle, sig.Symbol, string(sig.Direction), sig.Confidence,
			sig.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"),
		); err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
	}

	for _, rej := range report.Rejections {
		if _, err := tx.Exec(`INSERT INTO rejections (cycle, symbol, direction, reason)
			VALUES (?, ?, ?, ?)`,
			report.Cycle, rej.Symbol, string(rej.Direction), rej.Reason,
		); err != nil {
			return fmt.Errorf("insert rejection: %w", err)
		}
	}

	for _, rec := range report.Orders {
		if _, err := tx.Exec(`INSERT INTO order_events
			(cycle, order_id, symbol, from_status, to_status, reason, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.Cycle, rec.OrderID, rec.Symbol, string(rec.From), string(rec.To), rec.Reason,
			rec.At.UTC().Format("2006-01-02T15:04:05Z"),
		); err != nil {
			return fmt.Errorf("insert order event: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteSink) Close() error { return s.db.Close() }
