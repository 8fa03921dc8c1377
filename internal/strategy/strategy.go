// Package strategy defines the Strategy interface implemented by user signal
// logic and provides a Registry for managing multiple strategy
// implementations.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tempo/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Interval is the minimum time between two GetSignal calls for one
	// symbol.
	Interval() domain.Interval

	// GetSignal inspects the market at the instant bound to ctx and returns a
	// draft, or nil for no signal. Market data must be read through ctx-aware
	// sources so the strategy cannot see past the bound instant.
	GetSignal(ctx context.Context, symbol string) (*domain.SignalDraft, error)
}

// OpenHook is implemented by strategies that want to observe opened signals.
type OpenHook interface {
	OnOpen(ctx context.Context, sig domain.Signal, price float64)
}

// CloseHook is implemented by strategies that want to observe closed
// signals.
type CloseHook interface {
	OnClose(ctx context.Context, closed domain.Closed)
}

// Func adapts a function to the Strategy interface.
type Func struct {
	StrategyName string
	Every        domain.Interval
	Fn           func(ctx context.Context, symbol string) (*domain.SignalDraft, error)
}

// Compile-time interface check.
var _ Strategy = Func{}

func (f Func) Name() string              { return f.StrategyName }
func (f Func) Interval() domain.Interval { return f.Every }

func (f Func) GetSignal(ctx context.Context, symbol string) (*domain.SignalDraft, error) {
	return f.Fn(ctx, symbol)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name(). Names must
// be unique because they key persisted signals and risk positions.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[s.Name()]; ok {
		return fmt.Errorf("strategy %q already registered", s.Name())
	}
	r.strategies[s.Name()] = s
	return nil
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
