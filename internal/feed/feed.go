// Package feed normalizes market data into per-symbol snapshots and a
// bounded news window that the rest of the engine reads from.
package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	engerrors "github.com/ajseidenfrau/NVSTWZ/internal/errors"
	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// Source is the market-data collaborator contract. Implementations must
// return an error for unavailable data rather than stale or default values.
type Source interface {
	// Name returns the source identifier (e.g. "alpaca", "simulator").
	Name() string

	// GetSnapshot returns the current snapshot for a symbol, including its
	// bounded price history.
	GetSnapshot(ctx context.Context, symbol string) (*types.Snapshot, error)

	// GetNews returns sentiment-scored news events for the given symbols
	// published within the past hoursBack hours.
	GetNews(ctx context.Context, symbols []string, hoursBack int) ([]types.NewsEvent, error)
}

// Book holds the latest snapshot per symbol and the news retained within the
// lookback window. A cycle refreshes the book once and then reads from it;
// refresh failures mark the symbol unavailable for the cycle instead of
// leaving stale data in place.
type Book struct {
	mu        sync.RWMutex
	source    Source
	snapshots map[string]*types.Snapshot
	news      []types.NewsEvent

	lookback     time.Duration
	fetchTimeout time.Duration
	log          *zap.Logger
}

// NewBook creates a Book backed by the given source. newsLookbackHours
// bounds news retention; fetchTimeout bounds each collaborator call.
func NewBook(source Source, newsLookbackHours int, fetchTimeout time.Duration, log *zap.Logger) *Book {
	return &Book{
		source:       source,
		snapshots:    make(map[string]*types.Snapshot),
		lookback:     time.Duration(newsLookbackHours) * time.Hour,
		fetchTimeout: fetchTimeout,
		log:          log,
	}
}

// Refresh fetches fresh snapshots for all symbols concurrently and pulls the
// news window once. A symbol whose fetch fails or times out is dropped from
// the book for this cycle and reported in the returned map; the refresh
// itself never fails because of a single symbol.
func (b *Book) Refresh(ctx context.Context, symbols []string) map[string]error {
	failures := make(map[string]error, len(symbols))
	fresh := make(map[string]*types.Snapshot, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, b.fetchTimeout)
			defer cancel()

			snap, err := b.source.GetSnapshot(fctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[symbol] = engerrors.NewDataUnavailable(b.source.Name(), symbol, err)
				return nil // a dead symbol must not kill the refresh
			}
			fresh[symbol] = snap
			return nil
		})
	}
	_ = g.Wait()

	hoursBack := int(b.lookback / time.Hour)
	nctx, cancel := context.WithTimeout(ctx, b.fetchTimeout)
	defer cancel()
	news, err := b.source.GetNews(nctx, symbols, hoursBack)
	if err != nil {
		// News is an enrichment, not a hard dependency: the sentiment
		// indicator will simply report insufficient data.
		b.log.Warn("news fetch failed, continuing without fresh news",
			zap.String("source", b.source.Name()), zap.Error(err))
		news = nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = fresh
	if news != nil {
		// GetNews returns the whole lookback window, so the fetched set
		// replaces the retained one rather than accumulating duplicates.
		b.news = news
	}
	b.evictNewsLocked(time.Now())

	for symbol, ferr := range failures {
		b.log.Warn("symbol skipped for cycle", zap.String("symbol", symbol), zap.Error(ferr))
	}
	return failures
}

// Snapshot returns the current snapshot for a symbol, or false when the
// symbol was unavailable this cycle.
func (b *Book) Snapshot(symbol string) (*types.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.snapshots[symbol]
	return snap, ok
}

// Symbols returns the symbols with a live snapshot, sorted for determinism.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.snapshots))
	for s := range b.snapshots {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// News returns the retained news events mentioning the given symbol.
func (b *Book) News(symbol string) []types.NewsEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []types.NewsEvent
	for _, n := range b.news {
		if n.Mentions(symbol) {
			out = append(out, n)
		}
	}
	return out
}

// AddNews injects news events directly, deduplicated eviction aside. Used by
// tests and by sources that push rather than pull.
func (b *Book) AddNews(events ...types.NewsEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.news = append(b.news, events...)
	b.evictNewsLocked(time.Now())
}

func (b *Book) evictNewsLocked(now time.Time) {
	cutoff := now.Add(-b.lookback)
	kept := b.news[:0]
	for _, n := range b.news {
		if n.Timestamp.After(cutoff) {
			kept = append(kept, n)
		}
	}
	b.news = kept
}
