package execctx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestExecutionFromWithoutScope(t *testing.T) {
	_, err := ExecutionFrom(context.Background())
	if !errors.Is(err, ErrNoActiveContext) {
		t.Fatalf("ExecutionFrom returned %v, want ErrNoActiveContext", err)
	}
	if _, err := MethodFrom(context.Background()); !errors.Is(err, ErrNoActiveContext) {
		t.Fatalf("MethodFrom returned %v, want ErrNoActiveContext", err)
	}
	if IsLive(context.Background()) {
		t.Error("IsLive should be false without a bound context")
	}
}

func TestNestedScopeObservesBinding(t *testing.T) {
	when := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	ctx := WithMethod(context.Background(), Method{StrategyName: "sma", ExchangeName: "alpaca"})
	ctx = WithExecution(ctx, Execution{Symbol: "AAPL", When: when, Backtest: true})

	// Work started inside the scope sees the same binding.
	done := make(chan Execution, 1)
	go func(ctx context.Context) {
		ec, _ := ExecutionFrom(ctx)
		done <- ec
	}(ctx)

	ec := <-done
	if ec.Symbol != "AAPL" || !ec.When.Equal(when) || !ec.Backtest {
		t.Errorf("nested ExecutionFrom = %+v, want AAPL at %v backtest", ec, when)
	}
	mc, err := MethodFrom(ctx)
	if err != nil || mc.StrategyName != "sma" {
		t.Errorf("MethodFrom = %+v, %v, want strategy sma", mc, err)
	}
	if IsLive(ctx) {
		t.Error("IsLive should be false for a backtest tick")
	}
}

func TestConcurrentScopesAreIsolated(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	symbols := []string{"AAPL", "MSFT", "TSLA", "NVDA"}

	var wg sync.WaitGroup
	errs := make(chan string, len(symbols)*100)
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				when := base.Add(time.Duration(i*1000+j) * time.Minute)
				ctx := WithExecution(context.Background(), Execution{Symbol: sym, When: when})
				got, _ := Now(ctx)
				ec, _ := ExecutionFrom(ctx)
				if !got.Equal(when) || ec.Symbol != sym {
					errs <- sym
				}
			}
		}(i, sym)
	}
	wg.Wait()
	close(errs)
	for sym := range errs {
		t.Errorf("scope for %s observed a foreign context", sym)
	}
}
