// Package metrics exposes Prometheus instruments for tick outcomes and candle
// fetches.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tempo/internal/domain"
)

var (
	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tempo_outcomes_total", Help: "Tick outcomes by action"},
		[]string{"strategy", "symbol", "action"},
	)
	ClosedPnLPercent = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tempo_closed_pnl_percent",
			Help:    "Realized PnL of closed signals in percent",
			Buckets: []float64{-20, -10, -5, -2, -1, -0.5, 0, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"strategy"},
	)
	CandleFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tempo_candle_fetch_failures_total", Help: "Failed candle fetch attempts"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(OutcomesTotal, ClosedPnLPercent, CandleFetchFailures)
}

// Observe records one tick outcome.
func Observe(o domain.Outcome) {
	var strategyName, symbol string
	if sig := domain.SignalOf(o); sig != nil {
		strategyName, symbol = sig.StrategyName, sig.Symbol
	} else if idle, ok := o.(domain.Idle); ok {
		strategyName, symbol = idle.StrategyName, idle.Symbol
	}
	OutcomesTotal.WithLabelValues(strategyName, symbol, string(o.Action())).Inc()

	if closed, ok := o.(domain.Closed); ok {
		ClosedPnLPercent.WithLabelValues(strategyName).Observe(closed.PnL.Percent)
	}
}

// Route mounts an extra handler next to /metrics.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Serve starts a /metrics HTTP server on addr in the background.
func Serve(addr string, routes ...Route) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	return srv
}

// Shutdown stops srv, waiting at most timeout for in-flight scrapes.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
