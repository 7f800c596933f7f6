package services

import "sync"

// Hub fans out version hints to subscribers, per owner. A slow subscriber
// only ever holds the newest hint: older unread ones are replaced.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan int64]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan int64]struct{}{}}
}

// Subscribe registers a listener for ownerID. The returned func removes it.
func (h *Hub) Subscribe(ownerID string) (<-chan int64, func()) {
	ch := make(chan int64, 1)

	h.mu.Lock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = map[chan int64]struct{}{}
	}
	h.subs[ownerID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[ownerID], ch)
		if len(h.subs[ownerID]) == 0 {
			delete(h.subs, ownerID)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) Publish(ownerID string, seq int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[ownerID] {
		select {
		case <-ch:
		default:
		}
		ch <- seq
	}
}

// Subscribers reports how many listeners ownerID has.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}
