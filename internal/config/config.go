// Package config loads the engine configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full configuration consumed by the engine. The core never
// mutates it after Load.
type Config struct {
	Environment string
	LogLevel    string
	LogFile     string

	Trading TradingConfig
	Signals SignalConfig
	Feed    FeedConfig
	Broker  BrokerConfig
	Orders  OrderConfig
	Markets MarketHoursConfig
	Monitor MonitoringConfig
	Notify  NotificationConfig
	Reports ReportingConfig
}

// TradingConfig carries the capital and risk limits.
type TradingConfig struct {
	InitialCapital     float64
	MaxDailyLoss       float64 // fraction of initial capital, e.g. 0.05
	TargetDailyReturn  float64
	RiskTolerance      float64
	MaxDailyTrades     int
	PositionSizeFrac   float64 // max fraction of total capital per position
	StopLossPct        float64
	TakeProfitPct      float64
	MinTradeNotional   float64 // minimum tradable unit in dollars
	MaxIntentsPerCycle int
	CycleInterval      time.Duration
	CloseAllOnShutdown bool
}

// SignalConfig carries indicator windows and scoring weights. Weights are
// configuration, never derived at runtime.
type SignalConfig struct {
	Symbols         []string
	MinConfidence   float64
	MomentumWindow  int
	RSIPeriod       int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	MomentumWeight  float64
	RSIWeight       float64
	MACDWeight      float64
	SentimentWeight float64
}

// FeedConfig selects and tunes the market-data source.
type FeedConfig struct {
	Source            string // "simulator" or "alpaca"
	HistoryBars       int
	NewsLookbackHours int
	FetchTimeout      time.Duration
	SimulatorSeed     int64
}

// BrokerConfig selects and tunes the broker-execution client.
type BrokerConfig struct {
	Name      string // "simulator" or "alpaca"
	APIKey    string
	APISecret string
	BaseURL   string
}

// OrderConfig tunes order submission and monitoring.
type OrderConfig struct {
	MaxRetries         int
	InitialRetryDelay  time.Duration
	MaxRetryDelay      time.Duration
	SubmitTimeout      time.Duration
	CancelPartialFills bool
}

// MarketHoursConfig bounds the trading window (exchange-local time).
type MarketHoursConfig struct {
	Open     string // "09:30"
	Close    string // "16:00"
	Timezone string // "America/New_York"
}

// MonitoringConfig carries the observability ports.
type MonitoringConfig struct {
	PrometheusPort int
	HealthPort     int
}

// NotificationConfig carries operator alerting settings.
type NotificationConfig struct {
	TelegramToken  string
	TelegramChatID string
}

// ReportingConfig toggles the cycle report sinks.
type ReportingConfig struct {
	Console    bool
	SQLitePath string // empty disables the SQLite sink
	ExcelDir   string // empty disables the Excel daily log
}

// Load reads the configuration from the environment, applying defaults for
// anything unset.
func Load() *Config {
	return &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),

		Trading: TradingConfig{
			InitialCapital:     getEnvFloat("INITIAL_CAPITAL", 10.00),
			MaxDailyLoss:       getEnvFloat("MAX_DAILY_LOSS", 0.05),
			TargetDailyReturn:  getEnvFloat("TARGET_DAILY_RETURN", 0.05),
			RiskTolerance:      getEnvFloat("RISK_TOLERANCE", 0.02),
			MaxDailyTrades:     getEnvInt("MAX_DAILY_TRADES", 50),
			PositionSizeFrac:   getEnvFloat("POSITION_SIZE_FRACTION", 0.3),
			StopLossPct:        getEnvFloat("STOP_LOSS_PCT", 0.02),
			TakeProfitPct:      getEnvFloat("TAKE_PROFIT_PCT", 0.05),
			MinTradeNotional:   getEnvFloat("MIN_TRADE_NOTIONAL", 5.00),
			MaxIntentsPerCycle: getEnvInt("MAX_INTENTS_PER_CYCLE", 5),
			CycleInterval:      getEnvDuration("CYCLE_INTERVAL", 30*time.Second),
			CloseAllOnShutdown: getEnvBool("CLOSE_ALL_ON_SHUTDOWN", false),
		},

		Signals: SignalConfig{
			Symbols:         getEnvList("SYMBOLS", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "META", "NVDA"}),
			MinConfidence:   getEnvFloat("MIN_CONFIDENCE", 0.7),
			MomentumWindow:  getEnvInt("MOMENTUM_WINDOW", 10),
			RSIPeriod:       getEnvInt("RSI_PERIOD", 14),
			MACDFast:        getEnvInt("MACD_FAST", 12),
			MACDSlow:        getEnvInt("MACD_SLOW", 26),
			MACDSignal:      getEnvInt("MACD_SIGNAL", 9),
			MomentumWeight:  getEnvFloat("MOMENTUM_WEIGHT", 0.35),
			RSIWeight:       getEnvFloat("RSI_WEIGHT", 0.2),
			MACDWeight:      getEnvFloat("MACD_WEIGHT", 0.2),
			SentimentWeight: getEnvFloat("SENTIMENT_WEIGHT", 0.25),
		},

		Feed: FeedConfig{
			Source:            getEnv("FEED_SOURCE", "simulator"),
			HistoryBars:       getEnvInt("HISTORY_BARS", 50),
			NewsLookbackHours: getEnvInt("NEWS_LOOKBACK_HOURS", 24),
			FetchTimeout:      getEnvDuration("FEED_FETCH_TIMEOUT", 10*time.Second),
			SimulatorSeed:     int64(getEnvInt("SIMULATOR_SEED", 0)),
		},

		Broker: BrokerConfig{
			Name:      getEnv("BROKER_NAME", "simulator"),
			APIKey:    getEnv("APCA_API_KEY_ID", ""),
			APISecret: getEnv("APCA_API_SECRET_KEY", ""),
			BaseURL:   getEnv("APCA_API_BASE_URL", "https://paper-api.alpaca.markets"),
		},

		Orders: OrderConfig{
			MaxRetries:         getEnvInt("ORDER_MAX_RETRIES", 3),
			InitialRetryDelay:  getEnvDuration("ORDER_RETRY_DELAY", time.Second),
			MaxRetryDelay:      getEnvDuration("ORDER_MAX_RETRY_DELAY", 30*time.Second),
			SubmitTimeout:      getEnvDuration("ORDER_SUBMIT_TIMEOUT", 10*time.Second),
			CancelPartialFills: getEnvBool("CANCEL_PARTIAL_FILLS", true),
		},

		Markets: MarketHoursConfig{
			Open:     getEnv("MARKET_OPEN", "09:30"),
			Close:    getEnv("MARKET_CLOSE", "16:00"),
			Timezone: getEnv("MARKET_TIMEZONE", "America/New_York"),
		},

		Monitor: MonitoringConfig{
			PrometheusPort: getEnvInt("PROMETHEUS_PORT", 8080),
			HealthPort:     getEnvInt("HEALTH_PORT", 8081),
		},

		Notify: NotificationConfig{
			TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
			TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		},

		Reports: ReportingConfig{
			Console:    getEnvBool("REPORT_CONSOLE", true),
			SQLitePath: getEnv("REPORT_SQLITE_PATH", ""),
			ExcelDir:   getEnv("REPORT_EXCEL_DIR", ""),
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Trading.InitialCapital <= 0 {
		return fmt.Errorf("INITIAL_CAPITAL must be positive, got %.2f", c.Trading.InitialCapital)
	}
	if c.Trading.PositionSizeFrac <= 0 || c.Trading.PositionSizeFrac > 1 {
		return fmt.Errorf("POSITION_SIZE_FRACTION must be in (0, 1], got %.2f", c.Trading.PositionSizeFrac)
	}
	if c.Trading.MaxDailyLoss < 0 || c.Trading.MaxDailyLoss > 1 {
		return fmt.Errorf("MAX_DAILY_LOSS must be in [0, 1], got %.2f", c.Trading.MaxDailyLoss)
	}
	if c.Trading.MaxDailyTrades <= 0 {
		return fmt.Errorf("MAX_DAILY_TRADES must be positive, got %d", c.Trading.MaxDailyTrades)
	}
	if c.Trading.MinTradeNotional <= 0 {
		return fmt.Errorf("MIN_TRADE_NOTIONAL must be positive, got %.2f", c.Trading.MinTradeNotional)
	}
	if c.Signals.MinConfidence < 0 || c.Signals.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be in [0, 1], got %.2f", c.Signals.MinConfidence)
	}
	if len(c.Signals.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must name at least one symbol")
	}
	if c.Broker.Name == "alpaca" && (c.Broker.APIKey == "" || c.Broker.APISecret == "") {
		return fmt.Errorf("alpaca broker requires APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}
	if c.Feed.Source == "alpaca" && (c.Broker.APIKey == "" || c.Broker.APISecret == "") {
		return fmt.Errorf("alpaca feed requires APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}
	if _, err := time.LoadLocation(c.Markets.Timezone); err != nil {
		return fmt.Errorf("invalid MARKET_TIMEZONE %q: %w", c.Markets.Timezone, err)
	}
	for _, v := range []string{c.Markets.Open, c.Markets.Close} {
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("invalid market hours value %q: %w", v, err)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
