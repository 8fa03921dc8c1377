package engine

import "tempo/internal/domain"

// ComputePnL returns the net percent return of a round trip. Slippage worsens
// both fills and the fee is charged on each leg.
func ComputePnL(pos domain.Position, priceOpen, priceClose, slippagePercent, feePercent float64) domain.PnL {
	s := slippagePercent / 100

	var entry, exit, pct float64
	if pos == domain.PositionShort {
		entry = priceOpen * (1 - s)
		exit = priceClose * (1 + s)
		pct = (entry - exit) / entry * 100
	} else {
		entry = priceOpen * (1 + s)
		exit = priceClose * (1 - s)
		pct = (exit - entry) / entry * 100
	}
	return domain.PnL{
		Percent:    pct - 2*feePercent,
		PriceOpen:  entry,
		PriceClose: exit,
	}
}
