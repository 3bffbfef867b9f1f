// Package connectivity tracks whether the remote server is reachable.
package connectivity

import "sync"

// State is the read side of the monitor that the store and handlers depend on.
type State interface {
	Online() bool
}

// Monitor holds the last known connectivity state and notifies subscribers on transitions.
// It never probes by itself; a signal source (see Prober.Watch) calls Set.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

func NewMonitor(initial bool) *Monitor {
	return &Monitor{
		online: initial,
		subs:   make(map[int]func(bool)),
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for transitions. The returned func removes it.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Set records the new state. Subscribers run outside the lock and only when the state changed.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}
