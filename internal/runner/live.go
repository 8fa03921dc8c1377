package runner

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"tempo/internal/domain"
	"tempo/internal/engine"
	"tempo/internal/execctx"
)

// DefaultCadence is the live tick period. The extra millisecond keeps ticks
// off exact candle boundaries.
const DefaultCadence = time.Minute + time.Millisecond

// Live ticks one engine in real time until stopped.
type Live struct {
	engine  *engine.Engine
	cadence time.Duration
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	log     *slog.Logger
}

// NewLive creates a live runner ticking e every DefaultCadence.
func NewLive(e *engine.Engine, log *slog.Logger) *Live {
	if log == nil {
		log = slog.Default()
	}
	return &Live{
		engine:  e,
		cadence: DefaultCadence,
		now:     time.Now,
		sleep:   sleepContext,
		log:     log.With("component", "live", "strategy", e.StrategyName(), "symbol", e.Symbol()),
	}
}

// Stop asks the runner to finish. No new signal is generated; the sequence
// ends once the held signal, if any, closes or is cancelled. An in-flight
// tick is not interrupted.
func (l *Live) Stop() {
	l.log.Info("stop requested", "holding_signal", l.engine.HasSignal())
	l.engine.Stop()
}

// Run restores persisted state and then ticks forever. Cancelling ctx ends
// the sequence with ctx.Err(); so does any tick error.
func (l *Live) Run(ctx context.Context) iter.Seq2[domain.Outcome, error] {
	return func(yield func(domain.Outcome, error) bool) {
		base := execctx.WithMethod(ctx, execctx.Method{
			StrategyName: l.engine.StrategyName(),
			ExchangeName: l.engine.ExchangeName(),
		})
		if err := l.engine.Init(base); err != nil {
			yield(nil, err)
			return
		}

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			tctx := execctx.WithExecution(base, execctx.Execution{
				Symbol: l.engine.Symbol(),
				When:   l.now(),
			})
			o, err := l.engine.Tick(tctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(o, nil) {
				return
			}
			if l.engine.Stopped() && !l.engine.HasSignal() {
				l.log.Info("live run finished")
				return
			}
			if err := l.sleep(ctx, l.cadence); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
