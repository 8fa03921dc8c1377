// Package builtins provides built-in strategy implementations that ship with
// tempo.
package builtins

import (
	"context"
	"fmt"
	"strings"

	"tempo/internal/domain"
	"tempo/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// CandleSource returns candles ending at the instant bound to ctx. It is
// satisfied by *pricing.Oracle.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]domain.Candle, error)
}

// SMACrossConfig parameterizes SMACross.
type SMACrossConfig struct {
	Name              string
	Interval          domain.Interval
	ShortPeriod       int
	LongPeriod        int
	TakeProfitPercent float64
	StopLossPercent   float64
	LifetimeMinutes   int
}

// SMACross implements a simple moving average crossover strategy. It emits a
// long draft when the short-period SMA crosses above the long-period SMA and
// a short draft when it crosses below, with take-profit and stop-loss placed
// a fixed percentage away from the last close.
type SMACross struct {
	cfg     SMACrossConfig
	candles CandleSource
}

// NewSMACross creates a new SMACross strategy reading candles from src.
func NewSMACross(cfg SMACrossConfig, src CandleSource) (*SMACross, error) {
	if cfg.Name == "" {
		cfg.Name = "sma-cross"
	}
	if cfg.Interval == "" {
		cfg.Interval = domain.FiveMinutes
	}
	if _, err := cfg.Interval.Duration(); err != nil {
		return nil, err
	}
	if cfg.ShortPeriod <= 0 || cfg.LongPeriod <= cfg.ShortPeriod {
		return nil, fmt.Errorf("sma-cross %s: need 0 < short (%d) < long (%d)", cfg.Name, cfg.ShortPeriod, cfg.LongPeriod)
	}
	if cfg.TakeProfitPercent <= 0 || cfg.StopLossPercent <= 0 || cfg.LifetimeMinutes <= 0 {
		return nil, fmt.Errorf("sma-cross %s: take profit, stop loss and lifetime must be positive", cfg.Name)
	}
	return &SMACross{cfg: cfg, candles: src}, nil
}

// Name returns the configured strategy name.
func (s *SMACross) Name() string { return s.cfg.Name }

// Interval returns the candle interval the strategy evaluates on.
func (s *SMACross) Interval() domain.Interval { return s.cfg.Interval }

// GetSignal reads LongPeriod+1 candles and checks for a crossover between the
// previous and the latest candle.
func (s *SMACross) GetSignal(ctx context.Context, symbol string) (*domain.SignalDraft, error) {
	need := s.cfg.LongPeriod + 1
	candles, err := s.candles.GetCandles(ctx, symbol, s.cfg.Interval, need)
	if err != nil {
		return nil, err
	}
	if len(candles) < need {
		return nil, nil
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := len(closes)
	prevShort := sma(closes[:last-1], s.cfg.ShortPeriod)
	prevLong := sma(closes[:last-1], s.cfg.LongPeriod)
	curShort := sma(closes, s.cfg.ShortPeriod)
	curLong := sma(closes, s.cfg.LongPeriod)

	price := closes[last-1]
	tp := s.cfg.TakeProfitPercent / 100
	sl := s.cfg.StopLossPercent / 100

	switch {
	case prevShort <= prevLong && curShort > curLong:
		return &domain.SignalDraft{
			Position:        domain.PositionLong,
			PriceTakeProfit: price * (1 + tp),
			PriceStopLoss:   price * (1 - sl),
			LifetimeMinutes: s.cfg.LifetimeMinutes,
			Note:            note("up", s.cfg),
		}, nil
	case prevShort >= prevLong && curShort < curLong:
		return &domain.SignalDraft{
			Position:        domain.PositionShort,
			PriceTakeProfit: price * (1 - tp),
			PriceStopLoss:   price * (1 + sl),
			LifetimeMinutes: s.cfg.LifetimeMinutes,
			Note:            note("down", s.cfg),
		}, nil
	}
	return nil, nil
}

// sma averages the last n values.
func sma(values []float64, n int) float64 {
	if n > len(values) {
		n = len(values)
	}
	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

func note(direction string, cfg SMACrossConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sma(%d) crossed %s sma(%d) on %s", cfg.ShortPeriod, direction, cfg.LongPeriod, cfg.Interval)
	return b.String()
}
