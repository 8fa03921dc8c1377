// Package pricing implements the pricing oracle: candle access bounded by the
// instant bound in the execution context, forward candles for backtest
// fast-forward, and the VWAP used as the canonical current price.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tempo/internal/domain"
	"tempo/internal/exchange"
	"tempo/internal/execctx"
	"tempo/internal/metrics"
	"tempo/internal/util"
)

// ErrNoCandles is returned by AveragePrice when no candle exists at or before
// the bound instant.
var ErrNoCandles = errors.New("pricing: no candles")

// ErrLiveLookahead is returned by NextCandles outside a backtest tick.
var ErrLiveLookahead = errors.New("pricing: forward candles are only available in backtest")

// Config holds the oracle parameters.
type Config struct {
	// AvgPriceCandleCount is the number of one-minute candles in the VWAP
	// window.
	AvgPriceCandleCount int
	// RetryCount is the number of fetch attempts before an error propagates.
	RetryCount int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// AnomalyFactor rejects candles priced below reference/AnomalyFactor.
	AnomalyFactor float64
	// MedianMinCandles is the batch size from which the reference price is
	// the median of closes rather than their mean.
	MedianMinCandles int
}

// DefaultConfig returns the default oracle parameters.
func DefaultConfig() Config {
	return Config{
		AvgPriceCandleCount: 5,
		RetryCount:          3,
		RetryDelay:          5 * time.Second,
		AnomalyFactor:       1000,
		MedianMinCandles:    5,
	}
}

// Oracle reads candles from an exchange on behalf of the engine and of
// strategy code. Every method reads the instant from the execution context
// bound to ctx.
type Oracle struct {
	exchange exchange.Exchange
	cfg      Config
	now      func() time.Time
	log      *slog.Logger
}

// New creates an Oracle over ex.
func New(ex exchange.Exchange, cfg Config, log *slog.Logger) *Oracle {
	if cfg.AvgPriceCandleCount <= 0 {
		cfg.AvgPriceCandleCount = DefaultConfig().AvgPriceCandleCount
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Oracle{
		exchange: ex,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With("component", "oracle", "exchange", ex.Name()),
	}
}

// SetClock replaces the real-time clock used to bound NextCandles.
func (o *Oracle) SetClock(now func() time.Time) { o.now = now }

// ExchangeName returns the name of the underlying exchange.
func (o *Oracle) ExchangeName() string { return o.exchange.Name() }

// FormatPrice renders price with the exchange's precision for symbol.
func (o *Oracle) FormatPrice(symbol string, price float64) string {
	return o.exchange.FormatPrice(symbol, price)
}

// AvgPriceCandleCount returns the VWAP window length.
func (o *Oracle) AvgPriceCandleCount() int { return o.cfg.AvgPriceCandleCount }

// GetCandles returns up to limit candles of interval whose open time lies in
// [instant - (limit-1)*interval, instant].
func (o *Oracle) GetCandles(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]domain.Candle, error) {
	instant, err := execctx.Now(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	dur, err := interval.Duration()
	if err != nil {
		return nil, err
	}

	since := instant.Add(-(dur*time.Duration(limit) - dur))
	raw, err := o.fetch(ctx, symbol, interval, since, limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candle, 0, len(raw))
	for _, c := range raw {
		if c.Timestamp.Before(since) || c.Timestamp.After(instant) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// NextCandles returns up to limit candles of interval starting at the bound
// instant. It is only valid during a backtest tick and returns nothing when
// the window would reach past the real current time.
func (o *Oracle) NextCandles(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]domain.Candle, error) {
	ec, err := execctx.ExecutionFrom(ctx)
	if err != nil {
		return nil, err
	}
	if !ec.Backtest {
		return nil, ErrLiveLookahead
	}
	if limit <= 0 {
		return nil, nil
	}
	dur, err := interval.Duration()
	if err != nil {
		return nil, err
	}

	since := ec.When
	until := since.Add(dur * time.Duration(limit))
	if until.After(o.now()) {
		return nil, nil
	}

	raw, err := o.fetch(ctx, symbol, interval, since, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candle, 0, len(raw))
	for _, c := range raw {
		if c.Timestamp.Before(since) || !c.Timestamp.Before(until) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// AveragePrice returns the VWAP of the last AvgPriceCandleCount one-minute
// candles ending at the bound instant.
func (o *Oracle) AveragePrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := o.GetCandles(ctx, symbol, domain.OneMinute, o.cfg.AvgPriceCandleCount)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("average price for %s: %w", symbol, ErrNoCandles)
	}
	return VWAP(candles), nil
}

// fetch calls the exchange with bounded fixed-delay retries and validates
// each batch.
func (o *Oracle) fetch(ctx context.Context, symbol string, interval domain.Interval, since time.Time, limit int) ([]domain.Candle, error) {
	var candles []domain.Candle
	attempt := 0
	err := util.Retry(ctx, o.cfg.RetryCount, o.cfg.RetryDelay, func() error {
		attempt++
		got, err := o.exchange.GetCandles(ctx, symbol, interval, since, limit)
		if err == nil {
			err = ValidateCandles(symbol, got, o.cfg.AnomalyFactor, o.cfg.MedianMinCandles)
		}
		if err != nil {
			metrics.CandleFetchFailures.WithLabelValues(symbol).Inc()
			o.log.Warn("candle fetch failed",
				"symbol", symbol,
				"interval", interval,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		candles = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s candles: %w", symbol, interval, err)
	}
	return candles, nil
}
