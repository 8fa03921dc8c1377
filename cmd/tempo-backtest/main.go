package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tempo/internal/app"
	"tempo/internal/config"
	"tempo/internal/domain"
	"tempo/internal/runner"
	"tempo/internal/util"
)

func main() {
	_ = godotenv.Load() // best-effort

	cfgPath := "config/tempo.yaml"
	if p := os.Getenv("TEMPO_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	frame, err := cfg.Backtest.Frame()
	if err != nil {
		log.Fatalf("invalid backtest frame: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ex, err := app.NewExchange(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create exchange: %v", err)
	}
	sess, err := app.Build(ctx, cfg, ex, app.MemoryBackends(), false, logger)
	if err != nil {
		log.Fatalf("failed to build engines: %v", err)
	}

	var (
		mu        sync.Mutex
		summaries = make(map[string]runner.Summary, len(sess.Engines))
		total     = runner.NewStats()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, e := range sess.Engines {
		g.Go(func() error {
			bt := runner.NewBacktest(e, sess.Oracle, frame, logger)
			stats := runner.NewStats()
			var terminal []domain.Outcome
			for o, err := range bt.Run(gctx) {
				if err != nil {
					return fmt.Errorf("%s %s: %w", e.StrategyName(), e.Symbol(), err)
				}
				stats.Add(o)
				if a := o.Action(); a == domain.ActionClosed || a == domain.ActionCancelled {
					terminal = append(terminal, o)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			summaries[domain.PositionKey(e.StrategyName(), e.Symbol())] = stats.Summary()
			for _, o := range terminal {
				total.Add(o)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	printSummaries(frame, summaries, total.Summary())
}

func printSummaries(frame runner.Frame, summaries map[string]runner.Summary, total runner.Summary) {
	keys := make([]string, 0, len(summaries))
	for k := range summaries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("frame %s: %s .. %s (%s)\n\n", frame.Name,
		frame.Start.Format("2006-01-02 15:04"), frame.End.Format("2006-01-02 15:04"), frame.Interval)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "engine\ttrades\twin%\tpnl%\tavg%\tpf\tmaxdd%\tsharpe\tcancelled\t")
	row := func(name string, s runner.Summary) {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t\n",
			name, s.TotalTrades, s.WinRate, s.TotalPnL, s.AvgPnL, s.ProfitFactor, s.MaxDrawdown, s.Sharpe, s.Cancelled)
	}
	for _, k := range keys {
		row(k, summaries[k])
	}
	row("total", total)
	tw.Flush()
}
