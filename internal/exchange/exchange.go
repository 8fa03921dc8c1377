// Package exchange defines the candle data source consumed by the pricing
// oracle and provides implementations backed by the Alpaca market-data API,
// a Parquet read-through cache, and memory.
package exchange

import (
	"context"
	"time"

	"tempo/internal/domain"
)

// Exchange is a source of historical candles plus the symbol-specific price
// and quantity formatting of a venue.
type Exchange interface {
	// Name returns the exchange identifier (e.g. "alpaca", "memory").
	Name() string

	// GetCandles returns up to limit candles of the given interval whose open
	// time is at or after since, sorted ascending. since may lie arbitrarily
	// far in the past.
	GetCandles(ctx context.Context, symbol string, interval domain.Interval, since time.Time, limit int) ([]domain.Candle, error)

	// FormatPrice renders price with the venue's precision for symbol.
	FormatPrice(symbol string, price float64) string

	// FormatQuantity renders quantity with the venue's lot precision for
	// symbol.
	FormatQuantity(symbol string, quantity float64) string
}

// windowEnd returns the open time of the last candle in a window of limit
// candles starting at since.
func windowEnd(since time.Time, interval time.Duration, limit int) time.Time {
	if limit <= 0 {
		return since
	}
	return since.Add(time.Duration(limit-1) * interval)
}
