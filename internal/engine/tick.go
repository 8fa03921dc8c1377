package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tempo/internal/domain"
	"tempo/internal/execctx"
	"tempo/internal/risk"
)

// Tick advances the state machine by one step at the instant bound to ctx.
// Pricing and persistence errors are returned; strategy errors and rejected
// drafts yield Idle.
func (e *Engine) Tick(ctx context.Context) (domain.Outcome, error) {
	ec, err := execctx.ExecutionFrom(ctx)
	if err != nil {
		return nil, err
	}
	when := ec.When

	price, err := e.oracle.AveragePrice(ctx, e.symbol)
	if err != nil {
		return nil, err
	}

	if e.signal != nil {
		if e.signal.Scheduled() {
			return e.tickScheduled(ctx, when, price)
		}
		return e.tickOpened(ctx, when, price)
	}

	idle := domain.Idle{Symbol: e.symbol, StrategyName: e.strategy.Name(), Price: price, When: when}
	if e.stopped.Load() {
		return idle, nil
	}

	draft := e.generate(ctx, when)
	if draft == nil {
		return idle, nil
	}
	sig, err := e.accept(draft, when, price)
	if err != nil {
		e.log.Warn("signal draft rejected", "error", err)
		return idle, nil
	}

	if draft.PriceOpen != nil && !reached(sig.Position, price, sig.PriceOpen) {
		return e.schedule(ctx, sig, when, price, idle)
	}
	return e.openNow(ctx, sig, when, price, idle)
}

// generate calls the strategy when the throttle allows it. Errors and panics
// count as no signal.
func (e *Engine) generate(ctx context.Context, when time.Time) (draft *domain.SignalDraft) {
	if !e.lastAttempt.IsZero() && when.Sub(e.lastAttempt) < e.interval {
		return nil
	}
	e.lastAttempt = when

	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("strategy panicked", "panic", r)
			draft = nil
		}
	}()
	d, err := e.strategy.GetSignal(ctx, e.symbol)
	if err != nil {
		e.log.Warn("strategy failed", "error", err)
		return nil
	}
	return d
}

// accept validates draft and turns it into a Signal. A missing PriceOpen
// means entry at the current price.
func (e *Engine) accept(draft *domain.SignalDraft, when time.Time, price float64) (*domain.Signal, error) {
	priceOpen := price
	if draft.PriceOpen != nil {
		priceOpen = *draft.PriceOpen
	}
	sig := &domain.Signal{
		ID:              e.newID(),
		Symbol:          e.symbol,
		StrategyName:    e.strategy.Name(),
		ExchangeName:    e.oracle.ExchangeName(),
		Position:        draft.Position,
		PriceOpen:       priceOpen,
		PriceTakeProfit: draft.PriceTakeProfit,
		PriceStopLoss:   draft.PriceStopLoss,
		LifetimeMinutes: draft.LifetimeMinutes,
		Note:            draft.Note,
		CreatedAt:       when,
	}
	if err := ValidateSignal(sig, e.cfg); err != nil {
		return nil, err
	}
	return sig, nil
}

// reached reports whether price has reached the entry price of a position.
func reached(pos domain.Position, price, priceOpen float64) bool {
	if pos == domain.PositionLong {
		return price <= priceOpen
	}
	return price >= priceOpen
}

// stopLossHit reports whether price is at or beyond the stop loss.
func stopLossHit(sig *domain.Signal, price float64) bool {
	if sig.Position == domain.PositionLong {
		return price <= sig.PriceStopLoss
	}
	return price >= sig.PriceStopLoss
}

// takeProfitHit reports whether price is at or beyond the take profit.
func takeProfitHit(sig *domain.Signal, price float64) bool {
	if sig.Position == domain.PositionLong {
		return price >= sig.PriceTakeProfit
	}
	return price <= sig.PriceTakeProfit
}

func (e *Engine) schedule(ctx context.Context, sig *domain.Signal, when time.Time, price float64, idle domain.Idle) (domain.Outcome, error) {
	if err := e.risk.CheckSignal(ctx, e.riskPayload(sig, when, price)); err != nil {
		return idle, nil
	}
	sig.ScheduledAt = when
	if err := e.persist(ctx, sig); err != nil {
		return nil, err
	}
	e.setSignal(sig)
	e.log.Info("signal scheduled", "id", sig.ID, "position", sig.Position, "price_open", sig.PriceOpen, "price", price)
	return domain.Scheduled{Signal: *sig, Price: price, When: when}, nil
}

func (e *Engine) openNow(ctx context.Context, sig *domain.Signal, when time.Time, price float64, idle domain.Idle) (domain.Outcome, error) {
	err := e.open(ctx, sig, when, price)
	var rej *risk.RejectedError
	if errors.As(err, &rej) {
		return idle, nil
	}
	if err != nil {
		return nil, err
	}
	return domain.Opened{Signal: *sig, Price: price, When: when}, nil
}

// open registers sig with risk, stamps PendingAt, and persists it. A failed
// write undoes the risk registration.
func (e *Engine) open(ctx context.Context, sig *domain.Signal, when time.Time, price float64) error {
	pos := domain.ActivePosition{StrategyName: sig.StrategyName, Symbol: sig.Symbol, OpenedAt: when}
	if err := e.risk.Open(ctx, e.riskPayload(sig, when, price), pos); err != nil {
		return err
	}

	opened := *sig
	opened.PendingAt = when
	if err := e.persist(ctx, &opened); err != nil {
		if rerr := e.risk.RemoveSignal(ctx, sig.StrategyName, sig.Symbol); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return err
	}
	*sig = opened
	e.setSignal(sig)
	e.log.Info("signal opened",
		"id", sig.ID,
		"position", sig.Position,
		"price_open", e.oracle.FormatPrice(e.symbol, sig.PriceOpen),
		"take_profit", e.oracle.FormatPrice(e.symbol, sig.PriceTakeProfit),
		"stop_loss", e.oracle.FormatPrice(e.symbol, sig.PriceStopLoss),
	)
	e.onOpen(ctx, *sig, price)
	return nil
}

func (e *Engine) tickScheduled(ctx context.Context, when time.Time, price float64) (domain.Outcome, error) {
	sig := e.signal
	await := time.Duration(e.cfg.ScheduleAwaitMinutes) * time.Minute

	if when.Sub(sig.ScheduledAt) >= await {
		return e.cancel(ctx, when, price, domain.CancelTimeout)
	}
	if stopLossHit(sig, price) {
		return e.cancel(ctx, when, price, domain.CancelStopLoss)
	}
	if reached(sig.Position, price, sig.PriceOpen) {
		err := e.open(ctx, sig, when, price)
		var rej *risk.RejectedError
		if errors.As(err, &rej) {
			return e.cancel(ctx, when, price, domain.CancelRiskRejected)
		}
		if err != nil {
			return nil, err
		}
		return domain.Opened{Signal: *sig, Price: price, When: when}, nil
	}
	return domain.Scheduled{Signal: *sig, Price: price, When: when}, nil
}

func (e *Engine) cancel(ctx context.Context, when time.Time, price float64, reason domain.CancelReason) (domain.Outcome, error) {
	sig := e.signal
	if err := e.clear(ctx, sig); err != nil {
		return nil, err
	}
	e.setSignal(nil)
	e.log.Info("signal cancelled", "id", sig.ID, "reason", reason, "price", price)
	return domain.Cancelled{Signal: *sig, Price: price, When: when, Reason: reason}, nil
}

func (e *Engine) tickOpened(ctx context.Context, when time.Time, price float64) (domain.Outcome, error) {
	sig := e.signal
	if reason, closePrice, ok := closeCondition(sig, when, price); ok {
		closed, err := e.close(ctx, when, closePrice, reason)
		if err != nil {
			return nil, err
		}
		return closed, nil
	}
	return domain.Active{Signal: *sig, Price: price, When: when}, nil
}

// closeCondition evaluates time expiry, then stop loss, then take profit.
// Target hits settle at the target price; expiry settles at price.
func closeCondition(sig *domain.Signal, when time.Time, price float64) (domain.CloseReason, float64, bool) {
	switch {
	case !when.Before(sig.ExpiresAt()):
		return domain.CloseTimeExpired, price, true
	case stopLossHit(sig, price):
		return domain.CloseStopLoss, sig.PriceStopLoss, true
	case takeProfitHit(sig, price):
		return domain.CloseTakeProfit, sig.PriceTakeProfit, true
	}
	return "", 0, false
}

// close releases the risk position first and drops the signal only once that
// succeeded, so a failed release leaves the signal held for the next tick.
// RemoveSignal is idempotent, which makes the retry safe.
func (e *Engine) close(ctx context.Context, when time.Time, closePrice float64, reason domain.CloseReason) (domain.Closed, error) {
	sig := e.signal
	if err := e.risk.RemoveSignal(ctx, sig.StrategyName, sig.Symbol); err != nil {
		return domain.Closed{}, fmt.Errorf("releasing risk position of %s: %w", sig.ID, err)
	}
	if err := e.clear(ctx, sig); err != nil {
		return domain.Closed{}, err
	}
	e.setSignal(nil)

	closed := domain.Closed{
		Signal: *sig,
		Price:  closePrice,
		When:   when,
		Reason: reason,
		PnL:    ComputePnL(sig.Position, sig.PriceOpen, closePrice, e.cfg.SlippagePercent, e.cfg.FeePercent),
	}
	e.log.Info("signal closed",
		"id", sig.ID,
		"reason", reason,
		"price_close", e.oracle.FormatPrice(e.symbol, closePrice),
		"pnl_percent", closed.PnL.Percent,
	)
	e.onClose(ctx, closed)
	return closed, nil
}
