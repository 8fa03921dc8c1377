package engine

import (
	"fmt"
	"math"

	"tempo/internal/domain"
)

// ValidateSignal checks sig against the price, direction, lifetime and
// distance rules and reports every violation in one *domain.ValidationError.
func ValidateSignal(sig *domain.Signal, cfg Config) error {
	verr := &domain.ValidationError{Subject: fmt.Sprintf("signal %s/%s", sig.StrategyName, sig.Symbol)}

	if !sig.Position.Valid() {
		verr.Add(fmt.Sprintf("position %q is neither long nor short", sig.Position))
	}
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"priceOpen", sig.PriceOpen},
		{"priceTakeProfit", sig.PriceTakeProfit},
		{"priceStopLoss", sig.PriceStopLoss},
	} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) || p.v <= 0 {
			verr.Add(fmt.Sprintf("%s must be a positive finite number, got %v", p.name, p.v))
		}
	}

	open, tp, sl := sig.PriceOpen, sig.PriceTakeProfit, sig.PriceStopLoss
	switch sig.Position {
	case domain.PositionLong:
		if !(tp > open) {
			verr.Add(fmt.Sprintf("long: priceTakeProfit %v must be above priceOpen %v", tp, open))
		}
		if !(sl < open) {
			verr.Add(fmt.Sprintf("long: priceStopLoss %v must be below priceOpen %v", sl, open))
		}
	case domain.PositionShort:
		if !(tp < open) {
			verr.Add(fmt.Sprintf("short: priceTakeProfit %v must be below priceOpen %v", tp, open))
		}
		if !(sl > open) {
			verr.Add(fmt.Sprintf("short: priceStopLoss %v must be above priceOpen %v", sl, open))
		}
	}

	if open > 0 && sig.Position.Valid() {
		tpDist := math.Abs(tp-open) / open * 100
		slDist := math.Abs(sl-open) / open * 100
		if cfg.MinTakeProfitDistancePercent > 0 && tpDist < cfg.MinTakeProfitDistancePercent {
			verr.Add(fmt.Sprintf("take profit distance %.4f%% is below the minimum %.4f%%", tpDist, cfg.MinTakeProfitDistancePercent))
		}
		if cfg.MinStopLossDistancePercent > 0 && slDist < cfg.MinStopLossDistancePercent {
			verr.Add(fmt.Sprintf("stop loss distance %.4f%% is below the minimum %.4f%%", slDist, cfg.MinStopLossDistancePercent))
		}
		if cfg.MaxStopLossDistancePercent > 0 && slDist > cfg.MaxStopLossDistancePercent {
			verr.Add(fmt.Sprintf("stop loss distance %.4f%% exceeds the maximum %.4f%%", slDist, cfg.MaxStopLossDistancePercent))
		}
	}

	if sig.LifetimeMinutes <= 0 {
		verr.Add(fmt.Sprintf("lifetimeMinutes must be positive, got %d", sig.LifetimeMinutes))
	} else if cfg.MaxSignalLifetimeMinutes > 0 && sig.LifetimeMinutes > cfg.MaxSignalLifetimeMinutes {
		verr.Add(fmt.Sprintf("lifetimeMinutes %d exceeds the maximum %d", sig.LifetimeMinutes, cfg.MaxSignalLifetimeMinutes))
	}

	if sig.CreatedAt.UnixMilli() <= 0 {
		verr.Add(fmt.Sprintf("timestamp must be positive, got %d", sig.CreatedAt.UnixMilli()))
	}

	return verr.Err()
}
