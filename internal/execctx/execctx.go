// Package execctx carries the per-tick execution context (symbol, instant,
// mode) and the per-session method context (strategy, exchange, frame)
// inside a context.Context.
//
// Data-access code reads the instant from here instead of taking it as an
// argument, so strategy code cannot ask for data past the bound instant.
// The context keys are unexported: the only way to bind a context is
// WithExecution / WithMethod, which the runners call once per tick and once
// per session.
package execctx

import (
	"context"
	"errors"
	"time"
)

// ErrNoActiveContext is returned when a context-dependent operation runs
// outside a tick. It indicates a wiring bug.
var ErrNoActiveContext = errors.New("execctx: no active execution context")

// Execution is bound once per tick.
type Execution struct {
	Symbol   string
	When     time.Time
	Backtest bool
}

// Method is bound once per run.
type Method struct {
	StrategyName string
	ExchangeName string
	FrameName    string
}

type executionKey struct{}
type methodKey struct{}

// WithExecution returns a child of parent bound to ec.
func WithExecution(parent context.Context, ec Execution) context.Context {
	return context.WithValue(parent, executionKey{}, ec)
}

// ExecutionFrom returns the execution context bound to ctx.
func ExecutionFrom(ctx context.Context) (Execution, error) {
	ec, ok := ctx.Value(executionKey{}).(Execution)
	if !ok {
		return Execution{}, ErrNoActiveContext
	}
	return ec, nil
}

// WithMethod returns a child of parent bound to mc.
func WithMethod(parent context.Context, mc Method) context.Context {
	return context.WithValue(parent, methodKey{}, mc)
}

// MethodFrom returns the method context bound to ctx.
func MethodFrom(ctx context.Context) (Method, error) {
	mc, ok := ctx.Value(methodKey{}).(Method)
	if !ok {
		return Method{}, ErrNoActiveContext
	}
	return mc, nil
}

// Now returns the instant bound to ctx.
func Now(ctx context.Context) (time.Time, error) {
	ec, err := ExecutionFrom(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return ec.When, nil
}

// IsLive reports whether ctx is bound to a live (non-backtest) tick. It is
// false when no execution context is bound.
func IsLive(ctx context.Context) bool {
	ec, err := ExecutionFrom(ctx)
	return err == nil && !ec.Backtest
}
