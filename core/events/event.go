package events

import "fixedswap/core/types"

// Event represents a structured state change emitted by a module.
type Event interface {
	EventType() string
}

// Payload is implemented by events that render to the generic representation.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers every event to each non-nil emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Checkpointer is an Emitter whose recorded events can be rolled back to an
// earlier length. Buffer implements it.
type Checkpointer interface {
	Emitter
	Len() int
	Truncate(n int)
}

// Buffer collects events in memory until they are flushed to a downstream
// emitter. Modules that may revert buffer their events so subscribers only
// ever observe settled state changes.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) { b.events = append(b.events, evt) }

// Len reports the number of buffered events.
func (b *Buffer) Len() int { return len(b.events) }

// Truncate drops events recorded after the first n.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n >= len(b.events) {
		return
	}
	b.events = b.events[:n]
}

// Flush forwards buffered events to dst and clears the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if dst != nil {
		for _, evt := range b.events {
			dst.Emit(evt)
		}
	}
	b.events = nil
}
