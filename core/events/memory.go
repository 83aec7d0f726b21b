package events

import "sync"

// MemoryEmitter retains emitted events in order. The RPC layer uses it to serve
// recent activity to polling consumers; tests use it to assert emission order.
type MemoryEmitter struct {
	mu     sync.RWMutex
	events []Event
	limit  int
}

// NewMemoryEmitter constructs an emitter that retains at most limit events,
// discarding the oldest first. A non-positive limit retains everything.
func NewMemoryEmitter(limit int) *MemoryEmitter {
	return &MemoryEmitter{limit: limit}
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(evt Event) {
	if m == nil || evt == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
}

// Events returns a snapshot of the retained events in emission order.
func (m *MemoryEmitter) Events() []Event {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
