// Package events fans tick outcomes out to in-process subscribers, keeping the
// latest outcome per strategy and symbol for late joiners.
package events

import (
	"sort"
	"sync"

	"tempo/internal/domain"
)

// Hub holds the latest outcome of every engine and broadcasts new ones.
type Hub struct {
	mu     sync.RWMutex
	latest map[string]domain.Outcome // strategy:symbol -> last outcome

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan domain.Outcome
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		latest: make(map[string]domain.Outcome),
		subs:   make(map[int]chan domain.Outcome),
	}
}

// Publish records o as the latest outcome of its engine and broadcasts it.
func (h *Hub) Publish(o domain.Outcome) {
	h.mu.Lock()
	h.latest[keyOf(o)] = o
	h.mu.Unlock()

	h.broadcast(o)
}

// Snapshot returns the latest outcome of every engine ordered by key.
func (h *Hub) Snapshot() []domain.Outcome {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := make([]string, 0, len(h.latest))
	for k := range h.latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.Outcome, 0, len(keys))
	for _, k := range keys {
		out = append(out, h.latest[k])
	}
	return out
}

// Subscribe returns a channel that receives outcomes. bufSize controls the
// channel buffer; slow consumers will have outcomes dropped.
func (h *Hub) Subscribe(bufSize int) (int, <-chan domain.Outcome) {
	ch := make(chan domain.Outcome, bufSize)
	h.subsMu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.subs[id] = ch
	h.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.subsMu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.subsMu.Unlock()
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	return len(h.subs)
}

// Close unsubscribes everyone, ending their streams.
func (h *Hub) Close() {
	h.subsMu.Lock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.subsMu.Unlock()
}

// broadcast sends an outcome to all subscribers non-blocking (drop on full).
func (h *Hub) broadcast(o domain.Outcome) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- o:
		default:
		}
	}
}

func keyOf(o domain.Outcome) string {
	if sig := domain.SignalOf(o); sig != nil {
		return sig.Key()
	}
	if idle, ok := o.(domain.Idle); ok {
		return domain.PositionKey(idle.StrategyName, idle.Symbol)
	}
	return ""
}
