package api

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"tempo/internal/domain"
)

// EncodeOutcome flattens o into a Struct. Signal fields are present for every
// outcome except idle; reason and pnl_percent only for terminal outcomes.
func EncodeOutcome(o domain.Outcome) (*structpb.Struct, error) {
	fields := map[string]any{
		"action": string(o.Action()),
		"when":   o.Instant().UTC().Format(time.RFC3339Nano),
		"price":  o.CurrentPrice(),
	}

	switch v := o.(type) {
	case domain.Idle:
		fields["strategy"] = v.StrategyName
		fields["symbol"] = v.Symbol
	case domain.Closed:
		fields["reason"] = string(v.Reason)
		fields["pnl_percent"] = v.PnL.Percent
	case domain.Cancelled:
		fields["reason"] = string(v.Reason)
	}

	if sig := domain.SignalOf(o); sig != nil {
		fields["strategy"] = sig.StrategyName
		fields["symbol"] = sig.Symbol
		fields["exchange"] = sig.ExchangeName
		fields["signal_id"] = sig.ID
		fields["position"] = string(sig.Position)
		fields["price_open"] = sig.PriceOpen
		fields["price_take_profit"] = sig.PriceTakeProfit
		fields["price_stop_loss"] = sig.PriceStopLoss
	}
	return structpb.NewStruct(fields)
}

// matches reports whether o passes the stream filter in req.
func matches(req *structpb.Struct, o domain.Outcome) bool {
	strategy := req.GetFields()["strategy"].GetStringValue()
	symbol := req.GetFields()["symbol"].GetStringValue()
	if strategy == "" && symbol == "" {
		return true
	}

	var gotStrategy, gotSymbol string
	if sig := domain.SignalOf(o); sig != nil {
		gotStrategy, gotSymbol = sig.StrategyName, sig.Symbol
	} else if idle, ok := o.(domain.Idle); ok {
		gotStrategy, gotSymbol = idle.StrategyName, idle.Symbol
	}
	return (strategy == "" || strategy == gotStrategy) && (symbol == "" || symbol == gotSymbol)
}
