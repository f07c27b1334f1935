// Package netstatus tracks online/offline state and tells subscribers about
// real transitions only.
package netstatus

import (
	"slices"
	"sync"

	"housing_sync/internal/adapters/observability"
)

type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Listener gets the new state after each transition.
type Listener func(State)

type Monitor struct {
	mu        sync.Mutex
	state     State
	listeners map[uint64]Listener
	next      uint64
}

// New starts in the state reported by the platform signal.
func New(online bool) *Monitor {
	m := &Monitor{listeners: make(map[uint64]Listener)}
	if online {
		m.state = Online
	}
	observability.SetOnline(online)
	return m
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Online() bool { return m.State() == Online }

// Set feeds a platform connectivity event. Repeats of the current state are
// dropped; a real transition calls every listener once, in subscription
// order, outside the lock.
func (m *Monitor) Set(online bool) {
	next := Offline
	if online {
		next = Online
	}
	m.mu.Lock()
	if next == m.state {
		m.mu.Unlock()
		return
	}
	m.state = next
	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]Listener, len(ids))
	for i, id := range ids {
		fns[i] = m.listeners[id]
	}
	m.mu.Unlock()

	observability.SetOnline(online)
	for _, fn := range fns {
		fn(next)
	}
}

// Subscribe registers fn. The returned func removes it and may be called
// any number of times.
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	m.next++
	id := m.next
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}
