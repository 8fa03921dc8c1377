// Package domain defines the core value types shared across tempo: candles,
// candle intervals, signal drafts and persisted signals, risk-side position
// views, and the tick outcome sum type.
package domain

import (
	"fmt"
	"time"
)

// Candle is one OHLCV bar as supplied by an exchange data source. Timestamp is
// the open time of the bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TypicalPrice returns (high+low+close)/3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Interval is a candle granularity such as "1m" or "4h".
type Interval string

const (
	OneMinute      Interval = "1m"
	ThreeMinutes   Interval = "3m"
	FiveMinutes    Interval = "5m"
	FifteenMinutes Interval = "15m"
	ThirtyMinutes  Interval = "30m"
	OneHour        Interval = "1h"
	TwoHours       Interval = "2h"
	FourHours      Interval = "4h"
	SixHours       Interval = "6h"
	EightHours     Interval = "8h"
	OneDay         Interval = "1d"
)

var intervalDurations = map[Interval]time.Duration{
	OneMinute:      time.Minute,
	ThreeMinutes:   3 * time.Minute,
	FiveMinutes:    5 * time.Minute,
	FifteenMinutes: 15 * time.Minute,
	ThirtyMinutes:  30 * time.Minute,
	OneHour:        time.Hour,
	TwoHours:       2 * time.Hour,
	FourHours:      4 * time.Hour,
	SixHours:       6 * time.Hour,
	EightHours:     8 * time.Hour,
	OneDay:         24 * time.Hour,
}

// Duration returns the length of one candle of this interval.
func (i Interval) Duration() (time.Duration, error) {
	d, ok := intervalDurations[i]
	if !ok {
		return 0, fmt.Errorf("unknown interval %q", string(i))
	}
	return d, nil
}

// MustDuration is like Duration but panics on an unknown interval. It is
// meant for package-level constants and tests.
func (i Interval) MustDuration() time.Duration {
	d, err := i.Duration()
	if err != nil {
		panic(err)
	}
	return d
}

// Position is the direction of a signal.
type Position string

const (
	PositionLong  Position = "long"
	PositionShort Position = "short"
)

// Valid reports whether p is long or short.
func (p Position) Valid() bool {
	return p == PositionLong || p == PositionShort
}

// ActivePosition is the risk-side view of an open signal.
type ActivePosition struct {
	StrategyName string    `json:"strategyName"`
	Symbol       string    `json:"symbol"`
	OpenedAt     time.Time `json:"openedAt"`
}

// Key returns the "strategy:symbol" key under which the position is tracked.
func (p ActivePosition) Key() string {
	return PositionKey(p.StrategyName, p.Symbol)
}

// PositionKey builds the "strategy:symbol" key shared by the risk position
// map and signal persistence.
func PositionKey(strategyName, symbol string) string {
	return strategyName + ":" + symbol
}
