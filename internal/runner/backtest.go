package runner

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"tempo/internal/domain"
	"tempo/internal/engine"
	"tempo/internal/execctx"
	"tempo/internal/pricing"
)

// Backtest replays one engine over a frame.
type Backtest struct {
	engine *engine.Engine
	oracle *pricing.Oracle
	frame  Frame
	log    *slog.Logger
}

// NewBacktest creates a backtest runner. oracle must be the oracle the
// engine reads from.
func NewBacktest(e *engine.Engine, oracle *pricing.Oracle, frame Frame, log *slog.Logger) *Backtest {
	if log == nil {
		log = slog.Default()
	}
	return &Backtest{
		engine: e,
		oracle: oracle,
		frame:  frame,
		log:    log.With("component", "backtest", "strategy", e.StrategyName(), "symbol", e.Symbol(), "frame", frame.Name),
	}
}

// Run ticks the engine at every frame instant. When a signal opens, the
// position is resolved at once by fast-forwarding over future candles and
// every instant up to the close is skipped. The first error ends the
// sequence.
func (b *Backtest) Run(ctx context.Context) iter.Seq2[domain.Outcome, error] {
	return func(yield func(domain.Outcome, error) bool) {
		instants, err := b.frame.Instants()
		if err != nil {
			yield(nil, err)
			return
		}
		base := execctx.WithMethod(ctx, execctx.Method{
			StrategyName: b.engine.StrategyName(),
			ExchangeName: b.engine.ExchangeName(),
			FrameName:    b.frame.Name,
		})

		started := time.Now()
		var skipThrough time.Time
		ticks := 0
		for _, when := range instants {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !skipThrough.IsZero() && !when.After(skipThrough) {
				continue
			}

			tctx := execctx.WithExecution(base, execctx.Execution{
				Symbol:   b.engine.Symbol(),
				When:     when,
				Backtest: true,
			})
			o, err := b.engine.Tick(tctx)
			if err != nil {
				yield(nil, err)
				return
			}
			ticks++
			if !yield(o, nil) {
				return
			}

			opened, ok := o.(domain.Opened)
			if !ok {
				continue
			}
			closed, ok, err := b.fastForward(tctx, opened)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(closed, nil) {
				return
			}
			skipThrough = closed.When
		}
		b.log.Info("backtest finished",
			"instants", len(instants),
			"ticks", ticks,
			"elapsed", time.Since(started).Round(time.Millisecond),
		)
	}
}

// fastForward fetches the candles covering the signal's lifetime and lets
// the engine resolve the close. ok is false when not enough future data
// exists, in which case per-instant ticking continues.
func (b *Backtest) fastForward(ctx context.Context, opened domain.Opened) (domain.Closed, bool, error) {
	limit := max(opened.Signal.LifetimeMinutes+1, b.oracle.AvgPriceCandleCount())
	candles, err := b.oracle.NextCandles(ctx, b.engine.Symbol(), domain.OneMinute, limit)
	if err != nil {
		return domain.Closed{}, false, err
	}
	if len(candles) < b.oracle.AvgPriceCandleCount() {
		b.log.Debug("not enough future candles to fast-forward", "got", len(candles), "want", limit)
		return domain.Closed{}, false, nil
	}
	closed, err := b.engine.Backtest(ctx, candles)
	if err != nil {
		return domain.Closed{}, false, err
	}
	return closed, true, nil
}
