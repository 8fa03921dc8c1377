package domain

import (
	"strings"
	"time"
)

// SignalDraft is an unvalidated candidate signal returned by strategy code.
// A nil PriceOpen means "open at the current price".
type SignalDraft struct {
	Position        Position `json:"position"`
	PriceOpen       *float64 `json:"priceOpen,omitempty"`
	PriceTakeProfit float64  `json:"priceTakeProfit"`
	PriceStopLoss   float64  `json:"priceStopLoss"`
	LifetimeMinutes int      `json:"lifetimeMinutes"`
	Note            string   `json:"note,omitempty"`
}

// Price returns a pointer to p, for filling SignalDraft.PriceOpen.
func Price(p float64) *float64 {
	return &p
}

// Signal is an accepted draft owned by one lifecycle engine. It is the record
// persisted for live runs.
type Signal struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	StrategyName    string    `json:"strategyName"`
	ExchangeName    string    `json:"exchangeName"`
	Position        Position  `json:"position"`
	PriceOpen       float64   `json:"priceOpen"`
	PriceTakeProfit float64   `json:"priceTakeProfit"`
	PriceStopLoss   float64   `json:"priceStopLoss"`
	LifetimeMinutes int       `json:"lifetimeMinutes"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	ScheduledAt     time.Time `json:"scheduledAt,omitzero"`
	PendingAt       time.Time `json:"pendingAt,omitzero"`
}

// Scheduled reports whether the signal is still waiting for its entry price.
func (s *Signal) Scheduled() bool {
	return s.PendingAt.IsZero()
}

// Lifetime returns the signal lifetime as a duration.
func (s *Signal) Lifetime() time.Duration {
	return time.Duration(s.LifetimeMinutes) * time.Minute
}

// ExpiresAt returns the instant at which an opened signal times out.
func (s *Signal) ExpiresAt() time.Time {
	return s.PendingAt.Add(s.Lifetime())
}

// Key returns the persistence key of the signal.
func (s *Signal) Key() string {
	return PositionKey(s.StrategyName, s.Symbol)
}

// ValidationError collects every rule a draft or configuration violated.
type ValidationError struct {
	Subject    string
	Violations []string
}

// Add records a violation.
func (e *ValidationError) Add(violation string) {
	e.Violations = append(e.Violations, violation)
}

// Err returns e when at least one violation was recorded, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// Error lists every violation on its own line.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Subject)
	b.WriteString(" is invalid:")
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v)
	}
	return b.String()
}
