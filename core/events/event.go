package events

import (
	"sync"

	"cyberswap/core/types"
)

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

// Typed wraps a raw event record so it satisfies Event.
type Typed struct {
	Record *types.Event
}

func (t Typed) EventType() string {
	if t.Record == nil {
		return ""
	}
	return t.Record.Type
}

// Event returns the underlying record.
func (t Typed) Event() *types.Event { return t.Record }

// Recorder buffers emitted events until they are drained. The host attaches a
// fresh recorder to every call and only publishes its contents on commit.
type Recorder struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit implements the Emitter interface. Events that do not expose a record
// are stored with their type only.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	var record *types.Event
	if withRecord, ok := evt.(interface{ Event() *types.Event }); ok {
		record = withRecord.Event().Clone()
	}
	if record == nil {
		record = &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	r.mu.Lock()
	r.events = append(r.events, record)
	r.mu.Unlock()
}

// Drain returns the buffered events and resets the recorder.
func (r *Recorder) Drain() []*types.Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}
