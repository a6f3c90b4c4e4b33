package events

import "swapledger/core/types"

// Event represents a structured state change emitted by a contract.
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

type eventWithPayload interface {
	Event() *types.Event
}

// Buffer collects the events of a single invocation. The host hands them to
// the event log only when the invocation commits; a discarded buffer leaves no
// trace.
type Buffer struct {
	events []types.Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	if provider, ok := evt.(eventWithPayload); ok {
		if payload := provider.Event(); payload != nil {
			b.events = append(b.events, *payload)
		}
		return
	}
	b.events = append(b.events, types.Event{Type: evt.EventType(), Attributes: map[string]string{}})
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []types.Event {
	if b == nil {
		return nil
	}
	out := make([]types.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.events)
}

// Reset drops every buffered event.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.events = nil
}
