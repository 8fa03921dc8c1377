package engine

import (
	"context"
	"fmt"

	"tempo/internal/domain"
	"tempo/internal/pricing"
)

// Backtest resolves the held opened signal against future one-minute
// candles starting at the opening instant. It slides a VWAP window of the
// oracle's candle count over candles, beginning at the first full window,
// and applies the same close rules as Tick. If no rule fires before the
// candles run out the signal closes as expired at the last window.
func (e *Engine) Backtest(ctx context.Context, candles []domain.Candle) (domain.Closed, error) {
	sig := e.signal
	if sig == nil || sig.Scheduled() {
		return domain.Closed{}, ErrNoOpenSignal
	}
	n := e.oracle.AvgPriceCandleCount()
	if len(candles) < n {
		return domain.Closed{}, fmt.Errorf("fast-forward %s needs at least %d candles, got %d", sig.ID, n, len(candles))
	}

	var price float64
	for i := n - 1; i < len(candles); i++ {
		when := candles[i].Timestamp
		price = pricing.VWAP(candles[i-n+1 : i+1])
		if reason, closePrice, ok := closeCondition(sig, when, price); ok {
			return e.close(ctx, when, closePrice, reason)
		}
	}
	last := candles[len(candles)-1].Timestamp
	return e.close(ctx, last, price, domain.CloseTimeExpired)
}
