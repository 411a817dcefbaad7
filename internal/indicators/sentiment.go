package indicators

import (
	"time"

	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// Sentiment aggregates the news events for a symbol into one score. Recency
// decay is linear: an event's weight is its source weight times
// max(0, 1 - age/lookback), so an event at the window edge contributes
// nothing and a fresh one contributes its full source weight.
type Sentiment struct {
	lookback time.Duration
	clock    func() time.Time
}

// NewSentiment creates a Sentiment producer over the given lookback window.
func NewSentiment(lookbackHours int) *Sentiment {
	return &Sentiment{
		lookback: time.Duration(lookbackHours) * time.Hour,
		clock:    time.Now,
	}
}

// Kind returns KindSentiment.
func (s *Sentiment) Kind() Kind { return KindSentiment }

// MinHistory returns 0: sentiment needs news, not price history.
func (s *Sentiment) MinHistory() int { return 0 }

// SetClock overrides the time source for tests.
func (s *Sentiment) SetClock(clock func() time.Time) { s.clock = clock }

// Compute returns the decay-weighted mean sentiment of the symbol's news.
// No events within the window means no reading, not a neutral zero.
func (s *Sentiment) Compute(snap *types.Snapshot, news []types.NewsEvent) (Indicator, error) {
	now := s.clock()
	var weighted, totalWeight float64
	for _, event := range news {
		if !event.Mentions(snap.Symbol) {
			continue
		}
		age := now.Sub(event.Timestamp)
		if age < 0 || age >= s.lookback {
			continue
		}
		decay := 1 - float64(age)/float64(s.lookback)
		w := event.SourceWeight * decay
		weighted += event.Sentiment * w
		totalWeight += w
	}

	if totalWeight == 0 {
		return Indicator{}, engerrors.NewInsufficientHistory("sentiment", 0, 1)
	}

	return Indicator{
		Symbol:    snap.Symbol,
		Kind:      KindSentiment,
		Value:     clamp(weighted/totalWeight, -1, 1),
		Timestamp: snap.Timestamp,
	}, nil
}
