package runner

import (
	"math"

	"tempo/internal/domain"
)

// Summary holds the performance metrics of a finished run. PnL values are in
// percent per trade, not compounded.
type Summary struct {
	TotalTrades int     `json:"totalTrades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Cancelled   int     `json:"cancelled"`
	WinRate     float64 `json:"winRate"`
	TotalPnL    float64 `json:"totalPnl"`
	AvgPnL      float64 `json:"avgPnl"`
	// ProfitFactor is gross profit over gross loss; 0 when nothing was lost.
	ProfitFactor float64 `json:"profitFactor"`
	// MaxDrawdown is the largest peak-to-trough fall of cumulative PnL.
	MaxDrawdown float64 `json:"maxDrawdown"`
	// Sharpe is mean over sample standard deviation of trade PnL.
	Sharpe float64 `json:"sharpe"`

	ByReason map[domain.CloseReason]int `json:"byReason"`
}

// Stats accumulates outcomes into a Summary.
type Stats struct {
	pnls      []float64
	cancelled int
	byReason  map[domain.CloseReason]int
}

// NewStats creates an empty accumulator.
func NewStats() *Stats {
	return &Stats{byReason: make(map[domain.CloseReason]int)}
}

// Add records o. Only closed and cancelled outcomes count.
func (s *Stats) Add(o domain.Outcome) {
	switch v := o.(type) {
	case domain.Closed:
		s.pnls = append(s.pnls, v.PnL.Percent)
		s.byReason[v.Reason]++
	case domain.Cancelled:
		s.cancelled++
	}
}

// Summary computes the metrics of everything added so far.
func (s *Stats) Summary() Summary {
	sum := Summary{
		TotalTrades: len(s.pnls),
		Cancelled:   s.cancelled,
		ByReason:    make(map[domain.CloseReason]int, len(s.byReason)),
	}
	for k, v := range s.byReason {
		sum.ByReason[k] = v
	}
	if len(s.pnls) == 0 {
		return sum
	}

	var grossProfit, grossLoss, cum, peak float64
	for _, p := range s.pnls {
		sum.TotalPnL += p
		if p > 0 {
			sum.Wins++
			grossProfit += p
		} else {
			sum.Losses++
			grossLoss -= p
		}
		cum += p
		peak = math.Max(peak, cum)
		sum.MaxDrawdown = math.Max(sum.MaxDrawdown, peak-cum)
	}

	n := float64(len(s.pnls))
	sum.WinRate = float64(sum.Wins) / n * 100
	sum.AvgPnL = sum.TotalPnL / n
	if grossLoss > 0 {
		sum.ProfitFactor = grossProfit / grossLoss
	}
	if len(s.pnls) > 1 {
		var ss float64
		for _, p := range s.pnls {
			ss += (p - sum.AvgPnL) * (p - sum.AvgPnL)
		}
		if std := math.Sqrt(ss / (n - 1)); std > 0 {
			sum.Sharpe = sum.AvgPnL / std
		}
	}
	return sum
}
