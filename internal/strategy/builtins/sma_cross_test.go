package builtins

import (
	"context"
	"math"
	"testing"
	"time"

	"tempo/internal/domain"
)

// series serves fixed closes, newest last.
type series []float64

func (s series) GetCandles(_ context.Context, _ string, _ domain.Interval, limit int) ([]domain.Candle, error) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, 0, len(s))
	for i, c := range s {
		out = append(out, domain.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		})
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func newTestSMA(t *testing.T, src CandleSource) *SMACross {
	t.Helper()
	s, err := NewSMACross(SMACrossConfig{
		Interval:          domain.OneMinute,
		ShortPeriod:       2,
		LongPeriod:        4,
		TakeProfitPercent: 2,
		StopLossPercent:   1,
		LifetimeMinutes:   60,
	}, src)
	if err != nil {
		t.Fatalf("NewSMACross returned error: %v", err)
	}
	return s
}

func TestSMACrossName(t *testing.T) {
	s := newTestSMA(t, series{})
	if got := s.Name(); got != "sma-cross" {
		t.Errorf("SMACross.Name() = %q, want %q", got, "sma-cross")
	}
}

func TestSMACrossRejectsBadConfig(t *testing.T) {
	if _, err := NewSMACross(SMACrossConfig{ShortPeriod: 5, LongPeriod: 3, TakeProfitPercent: 1, StopLossPercent: 1, LifetimeMinutes: 1}, series{}); err == nil {
		t.Error("NewSMACross accepted short >= long")
	}
	if _, err := NewSMACross(SMACrossConfig{ShortPeriod: 2, LongPeriod: 3}, series{}); err == nil {
		t.Error("NewSMACross accepted zero take profit")
	}
}

func TestSMACrossLong(t *testing.T) {
	// prev: short 100 <= long 100; now short 105 > long 102.5
	s := newTestSMA(t, series{100, 100, 100, 100, 110})
	draft, err := s.GetSignal(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetSignal returned error: %v", err)
	}
	if draft == nil || draft.Position != domain.PositionLong {
		t.Fatalf("GetSignal = %+v, want long draft", draft)
	}
	if math.Abs(draft.PriceTakeProfit-112.2) > 1e-9 || math.Abs(draft.PriceStopLoss-108.9) > 1e-9 {
		t.Errorf("tp=%v sl=%v, want %v and %v", draft.PriceTakeProfit, draft.PriceStopLoss, 110*1.02, 110*0.99)
	}
	if draft.PriceOpen != nil {
		t.Errorf("PriceOpen = %v, want market entry", *draft.PriceOpen)
	}
}

func TestSMACrossShort(t *testing.T) {
	s := newTestSMA(t, series{100, 100, 100, 100, 90})
	draft, _ := s.GetSignal(context.Background(), "AAPL")
	if draft == nil || draft.Position != domain.PositionShort {
		t.Fatalf("GetSignal = %+v, want short draft", draft)
	}
	if !(draft.PriceTakeProfit < 90 && draft.PriceStopLoss > 90) {
		t.Errorf("short draft tp=%v sl=%v not around 90", draft.PriceTakeProfit, draft.PriceStopLoss)
	}
}

func TestSMACrossNoSignal(t *testing.T) {
	flat := newTestSMA(t, series{100, 100, 100, 100, 100})
	if draft, _ := flat.GetSignal(context.Background(), "AAPL"); draft != nil {
		t.Errorf("flat series produced %+v", draft)
	}

	short := newTestSMA(t, series{100, 110})
	if draft, _ := short.GetSignal(context.Background(), "AAPL"); draft != nil {
		t.Errorf("insufficient history produced %+v", draft)
	}
}
