// Package store defines the persistence adapter used to survive live-process
// restarts, its backends (JSON files, SQLite, Postgres, memory), and the
// Parquet candle cache used by backtests.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"tempo/internal/domain"
)

// ErrNotFound is returned by ReadValue when no record exists for a key.
var ErrNotFound = errors.New("store: value not found")

// Adapter is an atomic key-value store for one entity kind.
//
// A deleted key is kept as an explicit null tombstone: HasValue reports true
// and ReadValue returns the zero T. This separates "never written" from
// "written and cleared".
type Adapter[T any] interface {
	// WaitForInit prepares the backend (directories, tables). It is safe to
	// call more than once.
	WaitForInit(ctx context.Context) error

	// HasValue reports whether a record (or tombstone) exists for key.
	HasValue(ctx context.Context, key string) (bool, error)

	// ReadValue returns the record for key, or ErrNotFound.
	ReadValue(ctx context.Context, key string) (T, error)

	// WriteValue replaces the record for key. Either the old or the new
	// value is visible afterwards, never a partial write.
	WriteValue(ctx context.Context, key string, value T) error

	// DeleteValue replaces the record with a tombstone. Deleting twice is
	// not an error.
	DeleteValue(ctx context.Context, key string) error
}

// CandleStore persists and retrieves candles for backtest replay.
type CandleStore interface {
	// WriteCandles merges candles into storage, deduplicating by timestamp.
	WriteCandles(ctx context.Context, symbol string, interval domain.Interval, candles []domain.Candle) error

	// ReadCandles returns candles with timestamps within [start, end],
	// sorted ascending.
	ReadCandles(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) ([]domain.Candle, error)
}

// Entity names used for the keyspaces of the core.
const (
	EntitySignal = "signal"
	EntityRisk   = "risk"
)

// keyEscaper percent-encodes the characters a key may not carry into a file
// name. '%' is escaped too, so distinct keys never share a file.
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A", "/", "%2F", "\\", "%5C")

// fileSafeKey maps a "strategy:symbol" key onto a file name.
func fileSafeKey(key string) string {
	return keyEscaper.Replace(key)
}
