package exchange

import (
	"context"
	"log/slog"
	"time"

	"tempo/internal/domain"
	"tempo/internal/store"
)

// Compile-time interface check.
var _ Exchange = (*Cached)(nil)

// Cached wraps an upstream Exchange with a CandleStore. Windows fully present
// in the store are served locally; otherwise the upstream is queried and
// every closed candle it returns is written back.
type Cached struct {
	upstream Exchange
	store    store.CandleStore
	now      func() time.Time
	log      *slog.Logger
}

// NewCached creates a read-through cache over upstream.
func NewCached(upstream Exchange, cs store.CandleStore, log *slog.Logger) *Cached {
	if log == nil {
		log = slog.Default()
	}
	return &Cached{
		upstream: upstream,
		store:    cs,
		now:      time.Now,
		log:      log.With("exchange", "cached", "upstream", upstream.Name()),
	}
}

// Name returns the upstream name so persisted signals match across cached
// and uncached runs.
func (c *Cached) Name() string { return c.upstream.Name() }

// FormatPrice delegates to the upstream.
func (c *Cached) FormatPrice(symbol string, price float64) string {
	return c.upstream.FormatPrice(symbol, price)
}

// FormatQuantity delegates to the upstream.
func (c *Cached) FormatQuantity(symbol string, quantity float64) string {
	return c.upstream.FormatQuantity(symbol, quantity)
}

// GetCandles serves the window from the store when complete, falling back to
// the upstream.
func (c *Cached) GetCandles(ctx context.Context, symbol string, interval domain.Interval, since time.Time, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	dur, err := interval.Duration()
	if err != nil {
		return nil, err
	}
	end := windowEnd(since, dur, limit)

	cached, err := c.store.ReadCandles(ctx, symbol, interval, since, end)
	if err != nil {
		c.log.Warn("candle cache read failed", "symbol", symbol, "error", err)
	} else if len(cached) >= limit {
		return cached[:limit], nil
	}

	candles, err := c.upstream.GetCandles(ctx, symbol, interval, since, limit)
	if err != nil {
		return nil, err
	}

	// Only candles that have closed are immutable and safe to keep.
	now := c.now()
	closed := make([]domain.Candle, 0, len(candles))
	for _, cd := range candles {
		if !cd.Timestamp.Add(dur).After(now) {
			closed = append(closed, cd)
		}
	}
	if len(closed) > 0 {
		if err := c.store.WriteCandles(ctx, symbol, interval, closed); err != nil {
			c.log.Warn("candle cache write failed", "symbol", symbol, "error", err)
		}
	}
	return candles, nil
}
