package events

import (
	"testing"
	"time"

	"tempo/internal/domain"
)

func idle(strategy, symbol string, price float64) domain.Idle {
	return domain.Idle{StrategyName: strategy, Symbol: symbol, Price: price, When: time.Unix(0, 0)}
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(4)
	defer h.Unsubscribe(id)

	h.Publish(idle("sma", "AAPL", 100))

	select {
	case o := <-ch:
		if o.CurrentPrice() != 100 {
			t.Errorf("price = %v, want 100", o.CurrentPrice())
		}
	case <-time.After(time.Second):
		t.Fatal("no outcome delivered")
	}
}

func TestSnapshotKeepsLatestPerEngine(t *testing.T) {
	h := NewHub()
	h.Publish(idle("sma", "MSFT", 1))
	h.Publish(idle("sma", "AAPL", 1))
	h.Publish(idle("sma", "AAPL", 2))

	snap := h.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d outcomes, want 2", len(snap))
	}
	if snap[0].(domain.Idle).Symbol != "AAPL" || snap[0].CurrentPrice() != 2 {
		t.Errorf("snap[0] = %+v, want latest AAPL outcome", snap[0])
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)
	defer h.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(idle("sma", "AAPL", float64(i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if got := (<-ch).CurrentPrice(); got != 0 {
		t.Errorf("buffered outcome price = %v, want the first one", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)
	if h.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", h.SubscriberCount())
	}
	h.Unsubscribe(id)
	h.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0", h.SubscriberCount())
	}

	_, ch2 := h.Subscribe(1)
	h.Close()
	if _, ok := <-ch2; ok {
		t.Error("channel still open after Close")
	}
}
