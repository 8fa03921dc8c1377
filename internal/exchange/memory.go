package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tempo/internal/domain"
)

// Compile-time interface check.
var _ Exchange = (*Memory)(nil)

// Memory implements Exchange over candles held in memory. It serves replays
// of recorded data and tests.
type Memory struct {
	*Formatter

	name string

	mu     sync.RWMutex
	series map[string][]domain.Candle

	calls atomic.Int64
}

// NewMemory creates an empty Memory exchange with the given name.
func NewMemory(name string) *Memory {
	return &Memory{
		Formatter: NewFormatter(),
		name:      name,
		series:    make(map[string][]domain.Candle),
	}
}

func seriesKey(symbol string, interval domain.Interval) string {
	return strings.ToUpper(symbol) + "/" + string(interval)
}

// Add inserts candles for symbol and interval, replacing candles with equal
// timestamps.
func (m *Memory) Add(symbol string, interval domain.Interval, candles ...domain.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := seriesKey(symbol, interval)
	byTime := make(map[int64]domain.Candle, len(m.series[key])+len(candles))
	for _, c := range m.series[key] {
		byTime[c.Timestamp.UnixMilli()] = c
	}
	for _, c := range candles {
		byTime[c.Timestamp.UnixMilli()] = c
	}
	merged := make([]domain.Candle, 0, len(byTime))
	for _, c := range byTime {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	m.series[key] = merged
}

// Name returns the configured name.
func (m *Memory) Name() string { return m.name }

// Calls returns how many times GetCandles has been invoked.
func (m *Memory) Calls() int64 { return m.calls.Load() }

// GetCandles returns up to limit stored candles with open time at or after
// since.
func (m *Memory) GetCandles(_ context.Context, symbol string, interval domain.Interval, since time.Time, limit int) ([]domain.Candle, error) {
	m.calls.Add(1)
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.series[seriesKey(symbol, interval)]
	i := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(since)
	})
	end := i + limit
	if end > len(series) {
		end = len(series)
	}
	out := make([]domain.Candle, end-i)
	copy(out, series[i:end])
	return out, nil
}
