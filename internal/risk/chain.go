package risk

import (
	"context"
	"errors"
	"sort"

	"tempo/internal/domain"
)

// Checker is the risk view the signal engine depends on.
type Checker interface {
	// CheckSignal evaluates p without changing state.
	CheckSignal(ctx context.Context, p Payload) error
	// Open evaluates p and, if every profile allows it, records pos as open.
	// The check and the add are atomic with respect to other callers.
	Open(ctx context.Context, p Payload, pos domain.ActivePosition) error
	// RemoveSignal forgets a closed position.
	RemoveSignal(ctx context.Context, strategyName, symbol string) error
}

// Compile-time interface check.
var _ Checker = (*Chain)(nil)

// Chain composes validators of different profiles. Profiles are checked in
// the given order and the first rejection wins. An empty Chain allows
// everything.
type Chain struct {
	validators []*Validator
	lockOrder  []*Validator
}

// NewChain composes vs. A profile listed more than once, by pointer or by
// name, is kept only at its first position.
func NewChain(vs ...*Validator) *Chain {
	seen := make(map[string]bool, len(vs))
	unique := make([]*Validator, 0, len(vs))
	for _, v := range vs {
		if v == nil || seen[v.Name()] {
			continue
		}
		seen[v.Name()] = true
		unique = append(unique, v)
	}
	vs = unique

	lockOrder := append([]*Validator(nil), vs...)
	sort.Slice(lockOrder, func(i, j int) bool {
		return lockOrder[i].Name() < lockOrder[j].Name()
	})
	return &Chain{validators: vs, lockOrder: lockOrder}
}

// Validators returns the composed validators in check order.
func (c *Chain) Validators() []*Validator { return c.validators }

// CheckSignal runs every profile in order.
func (c *Chain) CheckSignal(ctx context.Context, p Payload) error {
	for _, v := range c.validators {
		if err := v.CheckSignal(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Open locks every profile (in name order), checks p against each, and adds
// pos to each only if all allow it. Profile callbacks run after the locks
// are released.
func (c *Chain) Open(ctx context.Context, p Payload, pos domain.ActivePosition) error {
	notify, err := c.openLocked(ctx, p, pos)
	for _, fn := range notify {
		fn()
	}
	return err
}

func (c *Chain) openLocked(ctx context.Context, p Payload, pos domain.ActivePosition) (notify []func(), err error) {
	for _, v := range c.lockOrder {
		v.mu.Lock()
	}
	defer func() {
		for i := len(c.lockOrder) - 1; i >= 0; i-- {
			c.lockOrder[i].mu.Unlock()
		}
	}()

	for _, v := range c.validators {
		fn, err := v.checkLocked(p)
		if fn != nil {
			notify = append(notify, fn)
		}
		if err != nil {
			return notify, err
		}
	}

	var added []*Validator
	for _, v := range c.validators {
		if err := v.addLocked(ctx, pos); err != nil {
			for _, a := range added {
				next := a.cloneLocked()
				delete(next, pos.Key())
				err = errors.Join(err, a.commitLocked(ctx, next))
			}
			return notify, err
		}
		added = append(added, v)
	}
	return notify, nil
}

// RemoveSignal removes the position from every profile.
func (c *Chain) RemoveSignal(ctx context.Context, strategyName, symbol string) error {
	var errs []error
	for _, v := range c.validators {
		if err := v.RemoveSignal(ctx, strategyName, symbol); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
