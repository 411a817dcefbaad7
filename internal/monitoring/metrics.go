package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cycle metrics
	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_cycles_total",
			Help: "Total number of decision cycles completed",
		},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_cycle_duration_seconds",
			Help:    "Distribution of decision cycle durations",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Signal and intent metrics
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_signals_total",
			Help: "Total number of trade signals generated",
		},
		[]string{"symbol", "direction"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_rejections_total",
			Help: "Total number of signals rejected by risk checks",
		},
		[]string{"reason"},
	)

	// Order metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Total number of orders by terminal status",
		},
		[]string{"symbol", "status"},
	)

	// Market data metrics
	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_current_price",
			Help: "Latest observed price per symbol",
		},
		[]string{"symbol"},
	)

	// Portfolio metrics
	totalCapital = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_total_capital",
			Help: "Total portfolio capital including open positions",
		},
	)

	availableCapital = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_available_capital",
			Help: "Capital available for new positions",
		},
	)

	realizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_realized_pnl_today",
			Help: "Realized profit and loss for the current trading day",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Number of open positions",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(rejectionsTotal)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(totalCapital)
	prometheus.MustRegister(availableCapital)
	prometheus.MustRegister(realizedPnL)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordCycle records a completed decision cycle and its duration
func RecordCycle(seconds float64) {
	cyclesTotal.Inc()
	cycleDuration.Observe(seconds)
}

// RecordSignal records a generated trade signal
func RecordSignal(symbol, direction string) {
	signalsTotal.WithLabelValues(symbol, direction).Inc()
}

// RecordRejection records a risk rejection by reason
func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordOrder records an order reaching a terminal status
func RecordOrder(symbol, status string) {
	ordersTotal.WithLabelValues(symbol, status).Inc()
}

// UpdatePrice updates the current price metric
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// UpdatePortfolio updates the portfolio gauges
func UpdatePortfolio(total, available, realized float64, positions int) {
	totalCapital.Set(total)
	availableCapital.Set(available)
	realizedPnL.Set(realized)
	openPositions.Set(float64(positions))
}

// RecordError records an error metric by category
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
