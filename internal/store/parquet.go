package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"tempo/internal/domain"
)

// Compile-time interface check.
var _ CandleStore = (*ParquetStore)(nil)

// ParquetStore implements CandleStore using one Parquet file per symbol,
// interval and UTC day. A store-wide lock serialises the read-merge-write
// cycle of WriteCandles against other writers and readers.
type ParquetStore struct {
	DataDir string

	mu sync.RWMutex
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// CandleRecord is the Parquet schema for candle data.
type CandleRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteCandles writes candles grouped by UTC day to:
//
//	<DataDir>/candles/<SYMBOL>/<interval>/<YYYY-MM-DD>.parquet
//
// Existing files are merged; incoming candles win on equal timestamps.
func (s *ParquetStore) WriteCandles(_ context.Context, symbol string, interval domain.Interval, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	groups := make(map[string][]CandleRecord)
	for _, c := range candles {
		day := c.Timestamp.UTC().Format("2006-01-02")
		groups[day] = append(groups[day], CandleRecord{
			Timestamp: c.Timestamp.UnixMilli(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for day, records := range groups {
		t, _ := time.Parse("2006-01-02", day)
		path := s.candlePath(symbol, interval, t)

		existing, err := readParquetFile[CandleRecord](path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading candles for %s/%s: %w", symbol, day, err)
		}
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %s/%s: %w", symbol, day, err)
		}
	}
	return nil
}

// ReadCandles reads candles for the given symbol within [start, end].
// Missing day files are skipped.
func (s *ParquetStore) ReadCandles(_ context.Context, symbol string, interval domain.Interval, start, end time.Time) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candles []domain.Candle
	first := start.UTC().Truncate(24 * time.Hour)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		path := s.candlePath(symbol, interval, d)
		records, err := readParquetFile[CandleRecord](path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading candles for %s/%s: %w", symbol, d.Format("2006-01-02"), err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			candles = append(candles, domain.Candle{
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
			})
		}
	}
	return candles, nil
}

// candlePath returns the filesystem path for a candle Parquet file.
func (s *ParquetStore) candlePath(symbol string, interval domain.Interval, t time.Time) string {
	date := t.UTC().Format("2006-01-02")
	return filepath.Join(s.DataDir, "candles", strings.ToUpper(symbol), string(interval), date+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	return writeAtomic(path, func(w io.Writer) error {
		return parquet.Write(w, records)
	})
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeCandleRecords deduplicates records by timestamp, preferring incoming
// records, and sorts the result ascending.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	seen := make(map[int64]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
