// Package signal turns per-symbol indicators into a ranked list of
// confidence-scored trading signals.
package signal

import (
	"sort"
	"time"

	"go.uber.org/zap"

	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/internal/indicators"
	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// Direction is the side of a trading signal.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Signal is a ranked, confidence-scored directional opportunity. Created
// here, consumed by the risk manager within the same cycle, never mutated.
type Signal struct {
	Symbol       string
	Direction    Direction
	Confidence   float64 // in [0, 1]
	Contributing []indicators.Indicator
	GeneratedAt  time.Time
}

// MarketView is the slice of the feed the generator reads.
type MarketView interface {
	Symbols() []string
	Snapshot(symbol string) (*types.Snapshot, bool)
	News(symbol string) []types.NewsEvent
}

// Generator combines indicator producers under static configured weights.
// It is written against the Producer capability, so technical, sentiment,
// and any future model-driven sources plug in the same way.
type Generator struct {
	producers     []indicators.Producer
	weights       map[indicators.Kind]float64
	minConfidence float64
	log           *zap.Logger
}

// NewGenerator creates a Generator over the given producers. weights maps
// each producer kind to its scoring weight; producers with zero weight still
// run but contribute nothing.
func NewGenerator(producers []indicators.Producer, weights map[indicators.Kind]float64, minConfidence float64, log *zap.Logger) *Generator {
	return &Generator{
		producers:     producers,
		weights:       weights,
		minConfidence: minConfidence,
		log:           log,
	}
}

// Generate computes at most one signal per symbol and returns them ranked:
// highest confidence first, ties broken by symbol ascending. Given identical
// snapshots, news, and configuration the output is identical, ordering and
// confidence values included.
func (g *Generator) Generate(view MarketView) []Signal {
	var out []Signal
	for _, symbol := range view.Symbols() {
		snap, ok := view.Snapshot(symbol)
		if !ok {
			continue
		}
		if sig, ok := g.scoreSymbol(snap, view.News(symbol)); ok {
			out = append(out, sig)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// scoreSymbol runs every producer for the symbol and combines the available
// readings into a dominant-direction score.
func (g *Generator) scoreSymbol(snap *types.Snapshot, news []types.NewsEvent) (Signal, bool) {
	var (
		contributing []indicators.Indicator
		buyScore     float64
		sellScore    float64
		totalWeight  float64
	)

	for _, p := range g.producers {
		ind, err := p.Compute(snap, news)
		if err != nil {
			if engerrors.IsCategory(err, engerrors.CategoryInsufficientHistory) {
				g.log.Debug("indicator excluded",
					zap.String("symbol", snap.Symbol),
					zap.String("kind", string(p.Kind())),
					zap.Error(err))
				continue
			}
			g.log.Warn("indicator failed",
				zap.String("symbol", snap.Symbol),
				zap.String("kind", string(p.Kind())),
				zap.Error(err))
			continue
		}

		w := g.weights[ind.Kind]
		if w == 0 {
			continue
		}
		contributing = append(contributing, ind)
		totalWeight += w
		if ind.Value > 0 {
			buyScore += w * ind.Value
		} else {
			sellScore += w * -ind.Value
		}
	}

	if totalWeight == 0 {
		return Signal{}, false
	}
	buyScore /= totalWeight
	sellScore /= totalWeight

	// The strictly dominant direction wins; an exact tie produces nothing.
	var direction Direction
	var confidence float64
	switch {
	case buyScore > sellScore:
		direction, confidence = DirectionBuy, buyScore
	case sellScore > buyScore:
		direction, confidence = DirectionSell, sellScore
	default:
		return Signal{}, false
	}

	if confidence < g.minConfidence {
		return Signal{}, false
	}

	return Signal{
		Symbol:       snap.Symbol,
		Direction:    direction,
		Confidence:   confidence,
		Contributing: contributing,
		GeneratedAt:  snap.Timestamp,
	}, true
}
