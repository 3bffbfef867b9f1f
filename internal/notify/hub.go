package notify

import "sync"

// Hub broadcasts banners to attached UI clients (SSE streams).
// A slow client loses banners instead of blocking the sender.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Banner]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Banner]struct{})}
}

// Register returns a channel receiving every banner until Unregister.
func (h *Hub) Register() chan Banner {
	ch := make(chan Banner, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[ch] = struct{}{}
	return ch
}

func (h *Hub) Unregister(ch chan Banner) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Clients is the number of attached subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Notify(b Banner) {
	b = normalize(b)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- b:
		default:
		}
	}
}
