package domain

import "time"

// Action names the variant of a tick outcome.
type Action string

const (
	ActionIdle      Action = "idle"
	ActionScheduled Action = "scheduled"
	ActionOpened    Action = "opened"
	ActionActive    Action = "active"
	ActionClosed    Action = "closed"
	ActionCancelled Action = "cancelled"
)

// CloseReason explains why an opened signal closed.
type CloseReason string

const (
	CloseTakeProfit  CloseReason = "take_profit"
	CloseStopLoss    CloseReason = "stop_loss"
	CloseTimeExpired CloseReason = "time_expired"
)

// CancelReason explains why a scheduled signal never opened.
type CancelReason string

const (
	CancelTimeout      CancelReason = "timeout"
	CancelStopLoss     CancelReason = "stop_loss"
	CancelRiskRejected CancelReason = "risk_rejected"
)

// Outcome is the result of one tick. It is implemented only by Idle,
// Scheduled, Opened, Active, Closed and Cancelled; use a type switch to
// inspect the payload.
type Outcome interface {
	Action() Action
	// Instant is the tick instant the outcome belongs to.
	Instant() time.Time
	// CurrentPrice is the VWAP (or settlement price) observed for the tick.
	CurrentPrice() float64

	outcome()
}

// Idle is produced when no signal is held.
type Idle struct {
	Symbol       string
	StrategyName string
	Price        float64
	When         time.Time
}

// Scheduled is produced while a signal waits for its entry price.
type Scheduled struct {
	Signal Signal
	Price  float64
	When   time.Time
}

// Opened is produced on the tick a signal's position is entered.
type Opened struct {
	Signal Signal
	Price  float64
	When   time.Time
}

// Active is produced while an opened signal is monitored.
type Active struct {
	Signal Signal
	Price  float64
	When   time.Time
}

// PnL is the realized result of a closed signal after slippage and fees.
type PnL struct {
	// Percent is the net return in percent.
	Percent float64 `json:"percent"`
	// PriceOpen and PriceClose are the slippage-adjusted fill prices.
	PriceOpen  float64 `json:"priceOpen"`
	PriceClose float64 `json:"priceClose"`
}

// Closed is produced when an opened signal reaches a close condition.
type Closed struct {
	Signal Signal
	Price  float64
	When   time.Time
	Reason CloseReason
	PnL    PnL
}

// Cancelled is produced when a scheduled signal is abandoned.
type Cancelled struct {
	Signal Signal
	Price  float64
	When   time.Time
	Reason CancelReason
}

func (Idle) Action() Action      { return ActionIdle }
func (Scheduled) Action() Action { return ActionScheduled }
func (Opened) Action() Action    { return ActionOpened }
func (Active) Action() Action    { return ActionActive }
func (Closed) Action() Action    { return ActionClosed }
func (Cancelled) Action() Action { return ActionCancelled }

func (o Idle) Instant() time.Time      { return o.When }
func (o Scheduled) Instant() time.Time { return o.When }
func (o Opened) Instant() time.Time    { return o.When }
func (o Active) Instant() time.Time    { return o.When }
func (o Closed) Instant() time.Time    { return o.When }
func (o Cancelled) Instant() time.Time { return o.When }

func (o Idle) CurrentPrice() float64      { return o.Price }
func (o Scheduled) CurrentPrice() float64 { return o.Price }
func (o Opened) CurrentPrice() float64    { return o.Price }
func (o Active) CurrentPrice() float64    { return o.Price }
func (o Closed) CurrentPrice() float64    { return o.Price }
func (o Cancelled) CurrentPrice() float64 { return o.Price }

func (Idle) outcome()      {}
func (Scheduled) outcome() {}
func (Opened) outcome()    {}
func (Active) outcome()    {}
func (Closed) outcome()    {}
func (Cancelled) outcome() {}

// SignalOf returns the signal carried by o, or nil for Idle.
func SignalOf(o Outcome) *Signal {
	switch v := o.(type) {
	case Scheduled:
		return &v.Signal
	case Opened:
		return &v.Signal
	case Active:
		return &v.Signal
	case Closed:
		return &v.Signal
	case Cancelled:
		return &v.Signal
	default:
		return nil
	}
}
