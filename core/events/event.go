package events

import "sync"

// Event is a structured notification describing a state change in one of the
// protocol engines. Attributes carry string-encoded payload fields so events
// can be indexed without knowledge of the emitting module.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Attr returns the attribute stored under key, or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// Emitter broadcasts events to downstream subscribers (RPC, indexers, logs).
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies Emitter while discarding all events. Engines default
// to it so event wiring stays optional.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(*Event) {}

// Recorder captures emitted events in order. Intended for tests and for the
// juzud service, which replays recent events to API clients.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt *Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a snapshot of everything recorded so far.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByType filters the recorded events down to the given type.
func (r *Recorder) ByType(eventType string) []*Event {
	var out []*Event
	for _, evt := range r.Events() {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
