package feed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// Compile-time interface check.
var _ Source = (*SimulatedSource)(nil)

// SimulatedSource produces random-walk price data and synthetic news without
// external API calls. With a fixed seed its output is reproducible, which is
// what the determinism tests rely on.
type SimulatedSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	history map[string][]types.Candle
	bases   map[string]float64

	historyBars int
	volatility  float64
	clock       func() time.Time
}

// defaultBasePrices seeds the simulated universe with plausible levels.
var defaultBasePrices = map[string]float64{
	"AAPL":  150.0,
	"MSFT":  300.0,
	"GOOGL": 2800.0,
	"AMZN":  3300.0,
	"TSLA":  700.0,
	"META":  350.0,
	"NVDA":  500.0,
}

// NewSimulatedSource creates a simulator with the given seed and history
// depth. Seed 0 derives one from the wall clock.
func NewSimulatedSource(seed int64, historyBars int) *SimulatedSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	bases := make(map[string]float64, len(defaultBasePrices))
	for s, p := range defaultBasePrices {
		bases[s] = p
	}
	return &SimulatedSource{
		rng:         rand.New(rand.NewSource(seed)),
		history:     make(map[string][]types.Candle),
		bases:       bases,
		historyBars: historyBars,
		volatility:  0.02,
		clock:       time.Now,
	}
}

// Name returns "simulator".
func (s *SimulatedSource) Name() string { return "simulator" }

// SetClock overrides the time source. Tests use this for stable timestamps.
func (s *SimulatedSource) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// GetSnapshot advances the symbol's random walk by one bar and returns the
// resulting snapshot with its bounded history.
func (s *SimulatedSource) GetSnapshot(_ context.Context, symbol string) (*types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.bases[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %q", symbol)
	}

	bars := s.history[symbol]
	last := base
	if len(bars) > 0 {
		last = bars[len(bars)-1].Close
	}

	// Random walk with a slight drift, floored to keep prices sensible.
	change := s.rng.NormFloat64() * s.volatility
	price := last * (1 + change)
	price = math.Max(price, base*0.5)

	now := s.clock()
	bar := types.Candle{
		Open:      last,
		High:      math.Max(last, price) * (1 + s.rng.Float64()*0.005),
		Low:       math.Min(last, price) * (1 - s.rng.Float64()*0.005),
		Close:     price,
		Volume:    float64(1_000_000 + s.rng.Intn(9_000_000)),
		Timestamp: now,
	}
	bars = append(bars, bar)
	if len(bars) > s.historyBars {
		bars = bars[len(bars)-s.historyBars:]
	}
	s.history[symbol] = bars

	spread := price * 0.0005
	snap := &types.Snapshot{
		Symbol:    symbol,
		Price:     price,
		Volume:    bar.Volume,
		Bid:       price - spread,
		Ask:       price + spread,
		Timestamp: now,
		History:   append([]types.Candle(nil), bars...),
	}
	return snap, nil
}

// GetNews fabricates occasional sentiment events for the requested symbols.
func (s *SimulatedSource) GetNews(_ context.Context, symbols []string, hoursBack int) ([]types.NewsEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var events []types.NewsEvent
	for _, symbol := range symbols {
		if s.rng.Float64() > 0.3 {
			continue
		}
		sentiment := s.rng.Float64()*2 - 1
		age := time.Duration(s.rng.Intn(hoursBack*60)) * time.Minute
		events = append(events, types.NewsEvent{
			Symbols:      []string{symbol},
			Headline:     fmt.Sprintf("simulated headline for %s", symbol),
			Source:       "simulator",
			Sentiment:    sentiment,
			SourceWeight: 0.5 + s.rng.Float64()*0.5,
			Timestamp:    now.Add(-age),
		})
	}
	return events, nil
}

// Seed replaces a symbol's history wholesale. Tests use this to construct
// exact market scenarios.
func (s *SimulatedSource) Seed(symbol string, bars []types.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bases[symbol]; !ok {
		s.bases[symbol] = bars[len(bars)-1].Close
	}
	s.history[symbol] = append([]types.Candle(nil), bars...)
}
