package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/ajseidenfrau/NVSTWZ/pkg/types"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// AlpacaSource reads snapshots and news from the Alpaca market-data API.
type AlpacaSource struct {
	client      *marketdata.Client
	historyBars int
}

// NewAlpacaSource creates an AlpacaSource with the given credentials.
func NewAlpacaSource(apiKey, apiSecret string, historyBars int) *AlpacaSource {
	return &AlpacaSource{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		historyBars: historyBars,
	}
}

// Name returns "alpaca".
func (s *AlpacaSource) Name() string { return "alpaca" }

// GetSnapshot fetches the latest trade/quote plus daily bar history for the
// symbol. A missing latest trade means the feed has nothing current to say
// about the symbol, which is reported as an error rather than a zero price.
func (s *AlpacaSource) GetSnapshot(ctx context.Context, symbol string) (*types.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := s.client.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
	if err != nil {
		return nil, fmt.Errorf("alpaca snapshot %s: %w", symbol, err)
	}
	if snap == nil || snap.LatestTrade == nil {
		return nil, fmt.Errorf("alpaca snapshot %s: no current trade data", symbol)
	}

	end := time.Now()
	bars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      end.AddDate(0, 0, -s.historyBars*2), // weekends and holidays thin the range
		End:        end,
		TotalLimit: s.historyBars,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars %s: %w", symbol, err)
	}

	history := make([]types.Candle, 0, len(bars))
	for _, b := range bars {
		history = append(history, types.Candle{
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
			Timestamp: b.Timestamp,
		})
	}

	out := &types.Snapshot{
		Symbol:    symbol,
		Price:     snap.LatestTrade.Price,
		Timestamp: snap.LatestTrade.Timestamp,
		History:   history,
	}
	if snap.LatestQuote != nil {
		out.Bid = snap.LatestQuote.BidPrice
		out.Ask = snap.LatestQuote.AskPrice
	}
	if snap.DailyBar != nil {
		out.Volume = float64(snap.DailyBar.Volume)
	}
	return out, nil
}

// GetNews fetches recent news for the symbols and scores each headline.
func (s *AlpacaSource) GetNews(ctx context.Context, symbols []string, hoursBack int) ([]types.NewsEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	end := time.Now()
	items, err := s.client.GetNews(marketdata.GetNewsRequest{
		Symbols:    symbols,
		Start:      end.Add(-time.Duration(hoursBack) * time.Hour),
		End:        end,
		TotalLimit: 50,
		Sort:       marketdata.SortDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca news: %w", err)
	}

	events := make([]types.NewsEvent, 0, len(items))
	for _, item := range items {
		events = append(events, types.NewsEvent{
			Symbols:      item.Symbols,
			Headline:     item.Headline,
			Source:       item.Author,
			Sentiment:    ScoreHeadline(item.Headline + " " + item.Summary),
			SourceWeight: sourceWeight(item.Author),
			Timestamp:    item.CreatedAt,
		})
	}
	return events, nil
}

// credibleSources get full weight; everything else is discounted.
var credibleSources = map[string]bool{
	"reuters":     true,
	"bloomberg":   true,
	"cnbc":        true,
	"marketwatch": true,
	"benzinga":    true,
}

func sourceWeight(source string) float64 {
	if credibleSources[strings.ToLower(source)] {
		return 1.0
	}
	return 0.6
}

// Small sentiment lexicons for headline scoring. Deliberately deterministic:
// score = (positive hits - negative hits) / total hits, clamped to [-1, 1].
var (
	positiveWords = []string{
		"beat", "beats", "surge", "surges", "soar", "soars", "rally", "rallies", "record",
		"upgrade", "upgraded", "growth", "profit", "gain", "gains", "strong",
		"bullish", "outperform", "buy", "jumps", "rises",
	}
	negativeWords = []string{
		"miss", "misses", "plunge", "plunges", "fall", "falls", "drop", "drops",
		"downgrade", "downgraded", "loss", "losses", "weak", "bearish", "lawsuit",
		"recall", "underperform", "sell", "cuts", "warning",
	}
)

// ScoreHeadline maps a headline to a sentiment score in [-1, 1] using the
// word lexicons above. Zero means neutral or no lexicon hits.
func ScoreHeadline(text string) float64 {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}
