package strategy

import (
	"context"
	"testing"

	"tempo/internal/domain"
)

func stub(name string) Func {
	return Func{
		StrategyName: name,
		Every:        domain.OneMinute,
		Fn: func(context.Context, string) (*domain.SignalDraft, error) {
			return nil, nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stub("test-strategy")); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Get returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stub("dup"))
	if err := r.Register(stub("dup")); err == nil {
		t.Error("Register of a duplicate name returned nil error")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stub("beta"))
	_ = r.Register(stub("alpha"))

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestFuncAdapter(t *testing.T) {
	want := &domain.SignalDraft{Position: domain.PositionLong}
	f := Func{
		StrategyName: "fn",
		Every:        domain.FiveMinutes,
		Fn: func(context.Context, string) (*domain.SignalDraft, error) {
			return want, nil
		},
	}
	got, err := f.GetSignal(context.Background(), "AAPL")
	if err != nil || got != want {
		t.Fatalf("GetSignal = %v, %v; want draft", got, err)
	}
	if f.Interval() != domain.FiveMinutes {
		t.Errorf("Interval() = %s, want 5m", f.Interval())
	}
}
