// Package engine implements the signal lifecycle engine: one Engine owns the
// signal of one (symbol, strategy, mode) triple and moves it through
// idle → scheduled → opened → active → closed|cancelled, one tick at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tempo/internal/domain"
	"tempo/internal/execctx"
	"tempo/internal/pricing"
	"tempo/internal/risk"
	"tempo/internal/store"
	"tempo/internal/strategy"
)

// ErrNoOpenSignal is returned by Backtest when the engine holds no opened
// signal.
var ErrNoOpenSignal = errors.New("engine: no opened signal")

// Config holds the trading parameters the engine applies to every signal.
type Config struct {
	SlippagePercent float64
	FeePercent      float64

	MinTakeProfitDistancePercent float64
	MinStopLossDistancePercent   float64
	MaxStopLossDistancePercent   float64

	ScheduleAwaitMinutes     int
	MaxSignalLifetimeMinutes int
}

// DefaultConfig returns the default trading parameters.
func DefaultConfig() Config {
	return Config{
		SlippagePercent:              0.1,
		FeePercent:                   0.1,
		MinTakeProfitDistancePercent: 0.5,
		MinStopLossDistancePercent:   0.5,
		MaxStopLossDistancePercent:   20,
		ScheduleAwaitMinutes:         120,
		MaxSignalLifetimeMinutes:     1440,
	}
}

// Params wires an Engine.
type Params struct {
	Symbol   string
	Strategy strategy.Strategy
	Oracle   *pricing.Oracle

	// Risk is consulted before a signal is scheduled or opened. Nil allows
	// every signal.
	Risk risk.Checker

	// Store persists the held signal during live ticks. Nil disables
	// persistence.
	Store store.Adapter[*domain.Signal]

	Config Config
	Log    *slog.Logger

	// NewID generates signal IDs. Defaults to random UUIDs.
	NewID func() string
}

// Engine is the lifecycle state machine of one (symbol, strategy, mode)
// triple. Tick and Backtest must not be called concurrently; Stop may be
// called from any goroutine.
type Engine struct {
	symbol   string
	strategy strategy.Strategy
	interval time.Duration
	oracle   *pricing.Oracle
	risk     risk.Checker
	store    store.Adapter[*domain.Signal]
	cfg      Config
	newID    func() string
	log      *slog.Logger

	signal      *domain.Signal
	held        atomic.Bool
	lastAttempt time.Time
	stopped     atomic.Bool
}

// New creates an Engine from p.
func New(p Params) (*Engine, error) {
	if p.Symbol == "" {
		return nil, errors.New("engine: symbol is required")
	}
	if p.Strategy == nil || p.Oracle == nil {
		return nil, errors.New("engine: strategy and oracle are required")
	}
	interval, err := p.Strategy.Interval().Duration()
	if err != nil {
		return nil, fmt.Errorf("engine: strategy %s: %w", p.Strategy.Name(), err)
	}
	if p.Risk == nil {
		p.Risk = risk.NewChain()
	}
	if p.NewID == nil {
		p.NewID = uuid.NewString
	}
	if p.Log == nil {
		p.Log = slog.Default()
	}
	return &Engine{
		symbol:   p.Symbol,
		strategy: p.Strategy,
		interval: interval,
		oracle:   p.Oracle,
		risk:     p.Risk,
		store:    p.Store,
		cfg:      p.Config,
		newID:    p.NewID,
		log:      p.Log.With("component", "engine", "strategy", p.Strategy.Name(), "symbol", p.Symbol),
	}, nil
}

// Symbol returns the symbol the engine trades.
func (e *Engine) Symbol() string { return e.symbol }

// StrategyName returns the name of the engine's strategy.
func (e *Engine) StrategyName() string { return e.strategy.Name() }

// ExchangeName returns the name of the exchange behind the oracle.
func (e *Engine) ExchangeName() string { return e.oracle.ExchangeName() }

// Stop prevents further signal generation. A held signal is still monitored
// until it closes or is cancelled.
func (e *Engine) Stop() { e.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (e *Engine) Stopped() bool { return e.stopped.Load() }

// HasSignal reports whether a scheduled or opened signal is held. Unlike
// Signal it may be called concurrently with Tick.
func (e *Engine) HasSignal() bool { return e.held.Load() }

// setSignal replaces the held signal. Every write to e.signal goes through
// here so held stays in step.
func (e *Engine) setSignal(sig *domain.Signal) {
	e.signal = sig
	e.held.Store(sig != nil)
}

// Signal returns a copy of the held signal, or nil.
func (e *Engine) Signal() *domain.Signal {
	if e.signal == nil {
		return nil
	}
	s := *e.signal
	return &s
}

// Init restores a persisted signal. It only reads the store in live mode
// (ctx not bound to a backtest tick) and only accepts a record whose
// strategy, exchange and symbol match this engine and the method context
// bound to ctx.
func (e *Engine) Init(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if ec, err := execctx.ExecutionFrom(ctx); err == nil && ec.Backtest {
		return nil
	}
	if err := e.store.WaitForInit(ctx); err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	key := domain.PositionKey(e.strategy.Name(), e.symbol)
	ok, err := e.store.HasValue(ctx, key)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	if !ok {
		return nil
	}
	sig, err := e.store.ReadValue(ctx, key)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	if sig == nil {
		return nil
	}

	strategyName, exchangeName := e.strategy.Name(), e.oracle.ExchangeName()
	if mc, err := execctx.MethodFrom(ctx); err == nil {
		strategyName, exchangeName = mc.StrategyName, mc.ExchangeName
	}
	if sig.StrategyName != strategyName || sig.ExchangeName != exchangeName || sig.Symbol != e.symbol {
		e.log.Warn("ignoring persisted signal from another context",
			"signal_strategy", sig.StrategyName,
			"signal_exchange", sig.ExchangeName,
			"signal_symbol", sig.Symbol,
		)
		return nil
	}

	e.setSignal(sig)
	e.log.Info("restored signal", "id", sig.ID, "scheduled", sig.Scheduled())
	return nil
}

// persist writes sig for live ticks.
func (e *Engine) persist(ctx context.Context, sig *domain.Signal) error {
	if e.store == nil || !execctx.IsLive(ctx) {
		return nil
	}
	if err := e.store.WriteValue(ctx, sig.Key(), sig); err != nil {
		return fmt.Errorf("persisting signal %s: %w", sig.ID, err)
	}
	return nil
}

// clear writes the tombstone for live ticks.
func (e *Engine) clear(ctx context.Context, sig *domain.Signal) error {
	if e.store == nil || !execctx.IsLive(ctx) {
		return nil
	}
	if err := e.store.DeleteValue(ctx, sig.Key()); err != nil {
		return fmt.Errorf("clearing signal %s: %w", sig.ID, err)
	}
	return nil
}

func (e *Engine) riskPayload(sig *domain.Signal, when time.Time, price float64) risk.Payload {
	return risk.Payload{
		Symbol:       e.symbol,
		StrategyName: e.strategy.Name(),
		ExchangeName: e.oracle.ExchangeName(),
		Signal:       *sig,
		CurrentPrice: price,
		When:         when,
	}
}

func (e *Engine) onOpen(ctx context.Context, sig domain.Signal, price float64) {
	hook, ok := e.strategy.(strategy.OpenHook)
	if !ok {
		return
	}
	defer e.recoverHook("OnOpen")
	hook.OnOpen(ctx, sig, price)
}

func (e *Engine) onClose(ctx context.Context, closed domain.Closed) {
	hook, ok := e.strategy.(strategy.CloseHook)
	if !ok {
		return
	}
	defer e.recoverHook("OnClose")
	hook.OnClose(ctx, closed)
}

func (e *Engine) recoverHook(name string) {
	if r := recover(); r != nil {
		e.log.Warn("strategy hook panicked", "hook", name, "panic", r)
	}
}
