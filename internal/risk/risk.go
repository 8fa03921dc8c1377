// Package risk implements portfolio-level risk profiles. A Validator holds the
// open positions of every strategy sharing one profile and evaluates the
// profile's ordered rules against proposed signals.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tempo/internal/domain"
	"tempo/internal/execctx"
	"tempo/internal/store"
)

// Payload is what a Rule sees when a signal is checked.
type Payload struct {
	Symbol       string
	StrategyName string
	ExchangeName string
	Signal       domain.Signal
	CurrentPrice float64
	When         time.Time

	ActivePositionCount int
	ActivePositions     []domain.ActivePosition
}

// Rule is one named predicate of a profile. Check returns a non-nil error to
// reject the signal.
type Rule struct {
	Name  string
	Check func(Payload) error
}

// Profile is the static definition of a risk profile.
type Profile struct {
	Name  string
	Rules []Rule

	// OnRejected and OnAllowed are optional observers.
	OnRejected func(Payload, *RejectedError)
	OnAllowed  func(Payload)
}

// RejectedError names the profile and rule that rejected a signal.
type RejectedError struct {
	Profile string
	Rule    string
	Err     error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("risk profile %q rule %q rejected signal: %v", e.Profile, e.Rule, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// PositionMap is the persisted form of a validator's positions.
type PositionMap map[string]domain.ActivePosition

// Validator guards one risk profile. All methods are safe for concurrent
// use; mutations are serialized per validator.
type Validator struct {
	profile Profile
	store   store.Adapter[PositionMap]
	log     *slog.Logger

	mu        sync.Mutex
	positions PositionMap

	initOnce sync.Once
	initErr  error
}

// NewValidator creates a Validator for p. st may be nil, in which case
// positions are never persisted.
func NewValidator(p Profile, st store.Adapter[PositionMap], log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{
		profile:   p,
		store:     st,
		log:       log.With("component", "risk", "profile", p.Name),
		positions: make(PositionMap),
	}
}

// Name returns the profile name.
func (v *Validator) Name() string { return v.profile.Name }

// Init restores persisted positions. It runs once; later calls return the
// first result.
func (v *Validator) Init(ctx context.Context) error {
	v.initOnce.Do(func() {
		if v.store == nil {
			return
		}
		if err := v.store.WaitForInit(ctx); err != nil {
			v.initErr = fmt.Errorf("risk %s: %w", v.profile.Name, err)
			return
		}
		ok, err := v.store.HasValue(ctx, v.profile.Name)
		if err != nil || !ok {
			v.initErr = err
			return
		}
		saved, err := v.store.ReadValue(ctx, v.profile.Name)
		if err != nil {
			v.initErr = fmt.Errorf("risk %s: %w", v.profile.Name, err)
			return
		}
		v.mu.Lock()
		for k, p := range saved {
			v.positions[k] = p
		}
		v.mu.Unlock()
		v.log.Info("restored risk positions", "count", len(saved))
	})
	return v.initErr
}

// Positions returns a snapshot of the open positions sorted by key.
func (v *Validator) Positions() []domain.ActivePosition {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// CheckSignal runs the profile's rules against p, stopping at the first
// rejection.
func (v *Validator) CheckSignal(_ context.Context, p Payload) error {
	v.mu.Lock()
	notify, err := v.checkLocked(p)
	v.mu.Unlock()

	if notify != nil {
		notify()
	}
	return err
}

// AddSignal records pos as open.
func (v *Validator) AddSignal(ctx context.Context, pos domain.ActivePosition) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.addLocked(ctx, pos)
}

// RemoveSignal forgets the position of strategyName on symbol. Removing an
// unknown position is not an error.
func (v *Validator) RemoveSignal(ctx context.Context, strategyName, symbol string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := domain.PositionKey(strategyName, symbol)
	if _, ok := v.positions[key]; !ok {
		return nil
	}
	next := v.cloneLocked()
	delete(next, key)
	return v.commitLocked(ctx, next)
}

// checkLocked evaluates p and returns the profile callback to run once v.mu
// is released, so callbacks may read the validator.
func (v *Validator) checkLocked(p Payload) (notify func(), err error) {
	p.ActivePositions = v.snapshotLocked()
	p.ActivePositionCount = len(p.ActivePositions)

	for _, rule := range v.profile.Rules {
		if err := v.runRule(rule, p); err != nil {
			rej := &RejectedError{Profile: v.profile.Name, Rule: rule.Name, Err: err}
			v.log.Info("signal rejected",
				"strategy", p.StrategyName,
				"symbol", p.Symbol,
				"rule", rule.Name,
				"reason", err,
			)
			if cb := v.profile.OnRejected; cb != nil {
				notify = func() { cb(p, rej) }
			}
			return notify, rej
		}
	}
	if cb := v.profile.OnAllowed; cb != nil {
		notify = func() { cb(p) }
	}
	return notify, nil
}

// runRule calls rule.Check, treating a panic as no rejection.
func (v *Validator) runRule(rule Rule, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Warn("risk rule panicked", "rule", rule.Name, "panic", r)
			err = nil
		}
	}()
	return rule.Check(p)
}

func (v *Validator) addLocked(ctx context.Context, pos domain.ActivePosition) error {
	next := v.cloneLocked()
	next[pos.Key()] = pos
	return v.commitLocked(ctx, next)
}

// commitLocked persists next (live ticks only) and then makes it current.
func (v *Validator) commitLocked(ctx context.Context, next PositionMap) error {
	if v.store != nil && execctx.IsLive(ctx) {
		if err := v.store.WriteValue(ctx, v.profile.Name, next); err != nil {
			return fmt.Errorf("persisting risk %s: %w", v.profile.Name, err)
		}
	}
	v.positions = next
	return nil
}

func (v *Validator) cloneLocked() PositionMap {
	next := make(PositionMap, len(v.positions)+1)
	for k, p := range v.positions {
		next[k] = p
	}
	return next
}

func (v *Validator) snapshotLocked() []domain.ActivePosition {
	out := make([]domain.ActivePosition, 0, len(v.positions))
	for _, p := range v.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// MaxPositions rejects signals once n positions are open in the profile.
func MaxPositions(n int) Rule {
	return Rule{
		Name: fmt.Sprintf("max_positions_%d", n),
		Check: func(p Payload) error {
			if p.ActivePositionCount >= n {
				return fmt.Errorf("%d of %d positions open", p.ActivePositionCount, n)
			}
			return nil
		},
	}
}

// ErrDuplicatePosition is returned by the OnePerSymbol rule.
var ErrDuplicatePosition = errors.New("symbol already has an open position")

// OnePerSymbol rejects a signal when any strategy of the profile already
// holds the symbol.
func OnePerSymbol() Rule {
	return Rule{
		Name: "one_per_symbol",
		Check: func(p Payload) error {
			for _, pos := range p.ActivePositions {
				if pos.Symbol == p.Symbol {
					return fmt.Errorf("%w: %s held by %s", ErrDuplicatePosition, p.Symbol, pos.StrategyName)
				}
			}
			return nil
		},
	}
}
