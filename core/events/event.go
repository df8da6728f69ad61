package events

import "sync"

// Event represents a structured state change emitted by a native engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Capture records every emitted event in order. Intended for tests and for
// wiring assertions against engine side effects.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (c *Capture) Emit(evt Event) {
	if c == nil || evt == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

// Events returns a snapshot of everything emitted so far.
func (c *Capture) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset discards previously captured events.
func (c *Capture) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
