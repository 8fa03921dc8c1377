package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"tempo/internal/domain"
)

// Compile-time interface check.
var _ Exchange = (*Alpaca)(nil)

// Alpaca implements Exchange using the Alpaca market-data bars endpoint.
type Alpaca struct {
	*Formatter

	client  *marketdata.Client
	feed    string
	limiter *rate.Limiter
	log     *slog.Logger
}

// AlpacaOptions configures NewAlpaca.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	DataURL   string // optional market-data base URL
	Feed      string // "sip" or "iex"; defaults to "iex"

	// RequestsPerMinute caps calls to the bars endpoint. Zero means 200,
	// the free-plan limit.
	RequestsPerMinute int
}

// NewAlpaca creates an Alpaca exchange with the given credentials.
func NewAlpaca(opts AlpacaOptions, log *slog.Logger) *Alpaca {
	clientOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		clientOpts.BaseURL = opts.DataURL
	}
	feed := opts.Feed
	if feed == "" {
		feed = "iex"
	}
	perMinute := opts.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 200
	}
	if log == nil {
		log = slog.Default()
	}

	return &Alpaca{
		Formatter: NewFormatter(),
		client:    marketdata.NewClient(clientOpts),
		feed:      feed,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		log:       log.With("exchange", "alpaca"),
	}
}

// Name returns "alpaca".
func (a *Alpaca) Name() string { return "alpaca" }

// GetCandles fetches bars of interval starting at since.
func (a *Alpaca) GetCandles(ctx context.Context, symbol string, interval domain.Interval, since time.Time, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	dur, err := interval.Duration()
	if err != nil {
		return nil, err
	}
	tf, err := alpacaTimeFrame(interval)
	if err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	end := windowEnd(since, dur, limit)
	bars, err := a.client.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Start:      since,
		End:        end,
		TotalLimit: limit,
		Feed:       a.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s %s: %w", symbol, interval, err)
	}

	candles := make([]domain.Candle, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, domain.Candle{
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	a.log.Debug("fetched bars", "symbol", symbol, "interval", interval, "since", since, "count", len(candles))
	return candles, nil
}

// alpacaTimeFrame maps an Interval onto an Alpaca bar timeframe.
func alpacaTimeFrame(interval domain.Interval) (marketdata.TimeFrame, error) {
	switch interval {
	case domain.OneMinute:
		return marketdata.OneMin, nil
	case domain.ThreeMinutes:
		return marketdata.NewTimeFrame(3, marketdata.Min), nil
	case domain.FiveMinutes:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case domain.FifteenMinutes:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case domain.ThirtyMinutes:
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case domain.OneHour:
		return marketdata.OneHour, nil
	case domain.TwoHours:
		return marketdata.NewTimeFrame(2, marketdata.Hour), nil
	case domain.FourHours:
		return marketdata.NewTimeFrame(4, marketdata.Hour), nil
	case domain.SixHours:
		return marketdata.NewTimeFrame(6, marketdata.Hour), nil
	case domain.EightHours:
		return marketdata.NewTimeFrame(8, marketdata.Hour), nil
	case domain.OneDay:
		return marketdata.OneDay, nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("interval %q not supported by alpaca", string(interval))
}
