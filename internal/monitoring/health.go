package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker tracks engine liveness for the health endpoint. The engine
// marks each completed cycle; a stalled loop or a run of feed failures flips
// the status.
type HealthChecker struct {
	mu          sync.RWMutex
	startTime   time.Time
	lastCycle   time.Time
	cycleEvery  time.Duration
	feedHealthy bool
	errors      []string
}

// HealthStatus is the JSON body served by the health endpoint.
type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	LastCycle   time.Time `json:"last_cycle"`
	FeedHealthy bool      `json:"feed_healthy"`
	Uptime      string    `json:"uptime"`
	Errors      []string  `json:"errors,omitempty"`
}

// NewHealthChecker builds a checker that expects a cycle at least every
// cycleEvery (with slack for slow cycles).
func NewHealthChecker(cycleEvery time.Duration) *HealthChecker {
	return &HealthChecker{
		startTime:   time.Now(),
		cycleEvery:  cycleEvery,
		feedHealthy: true,
		errors:      make([]string, 0),
	}
}

// MarkCycle records a completed decision cycle.
func (h *HealthChecker) MarkCycle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = time.Now()
	h.errors = h.errors[:0]
}

// MarkFeed records whether the last refresh reached the data source.
func (h *HealthChecker) MarkFeed(healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feedHealthy = healthy
}

// RecordError appends an operator-visible error to the health report.
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	stale := !h.lastCycle.IsZero() && time.Since(h.lastCycle) > 3*h.cycleEvery
	if !h.feedHealthy || stale {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:      status,
		Timestamp:   time.Now(),
		LastCycle:   h.lastCycle,
		FeedHealthy: h.feedHealthy,
		Uptime:      time.Since(h.startTime).String(),
		Errors:      h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
