// Package runner drives signal engines through time: a finite, deterministic
// walk over a backtest frame, or an endless real-time loop for live trading.
// Both produce outcomes as an iterator.
package runner

import (
	"errors"
	"fmt"
	"time"

	"tempo/internal/domain"
)

// Frame is a backtest period sampled at a fixed interval.
type Frame struct {
	Name     string
	Start    time.Time
	End      time.Time
	Interval domain.Interval
}

// Instants returns every instant from Start to End inclusive, stepping by
// Interval.
func (f Frame) Instants() ([]time.Time, error) {
	step, err := f.Interval.Duration()
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", f.Name, err)
	}
	if f.Start.IsZero() || f.End.IsZero() {
		return nil, fmt.Errorf("frame %s: start and end are required", f.Name)
	}
	if f.End.Before(f.Start) {
		return nil, errors.New("frame " + f.Name + ": end is before start")
	}

	n := int(f.End.Sub(f.Start)/step) + 1
	out := make([]time.Time, 0, n)
	for t := f.Start; !t.After(f.End); t = t.Add(step) {
		out = append(out, t)
	}
	return out, nil
}
