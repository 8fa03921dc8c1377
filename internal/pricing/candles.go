package pricing

import (
	"fmt"
	"math"
	"sort"
	"time"

	"tempo/internal/domain"
)

// AnomalyError reports a candle rejected by ValidateCandles.
type AnomalyError struct {
	Symbol    string
	Timestamp time.Time
	Reason    string
}

func (e *AnomalyError) Error() string {
	return fmt.Sprintf("anomalous %s candle at %s: %s", e.Symbol, e.Timestamp.UTC().Format(time.RFC3339), e.Reason)
}

// ValidateCandles rejects batches containing a candle with a non-finite or
// non-positive price, a non-finite or negative volume, or a price below
// reference/factor. The reference is the median close when the batch has at
// least medianMin candles and the mean close otherwise.
func ValidateCandles(symbol string, candles []domain.Candle, factor float64, medianMin int) error {
	if len(candles) == 0 {
		return nil
	}

	for _, c := range candles {
		for _, f := range []struct {
			name string
			v    float64
		}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}} {
			if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
				return &AnomalyError{Symbol: symbol, Timestamp: c.Timestamp, Reason: fmt.Sprintf("%s=%v", f.name, f.v)}
			}
		}
		if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
			return &AnomalyError{Symbol: symbol, Timestamp: c.Timestamp, Reason: fmt.Sprintf("volume=%v", c.Volume)}
		}
	}

	if factor <= 0 {
		return nil
	}
	ref := referencePrice(candles, medianMin)
	floor := ref / factor
	for _, c := range candles {
		if c.Open < floor || c.High < floor || c.Low < floor || c.Close < floor {
			return &AnomalyError{
				Symbol:    symbol,
				Timestamp: c.Timestamp,
				Reason:    fmt.Sprintf("price below %v (reference %v / factor %v)", floor, ref, factor),
			}
		}
	}
	return nil
}

func referencePrice(candles []domain.Candle, medianMin int) float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	if len(closes) >= medianMin {
		sort.Float64s(closes)
		mid := len(closes) / 2
		if len(closes)%2 == 0 {
			return (closes[mid-1] + closes[mid]) / 2
		}
		return closes[mid]
	}
	var sum float64
	for _, v := range closes {
		sum += v
	}
	return sum / float64(len(closes))
}

// VWAP returns Σ(typical×volume)/Σvolume over candles, or the mean close when
// total volume is zero. It returns 0 for an empty slice.
func VWAP(candles []domain.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var pv, vol, closes float64
	for _, c := range candles {
		pv += c.TypicalPrice() * c.Volume
		vol += c.Volume
		closes += c.Close
	}
	if vol == 0 {
		return closes / float64(len(candles))
	}
	return pv / vol
}
