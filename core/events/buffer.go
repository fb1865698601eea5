package events

import "sync"

// Buffer is a bounded in-memory emitter retaining the most recent events
// for RPC consumers. Older events are dropped once the capacity is reached.
type Buffer struct {
	mu    sync.Mutex
	cap   int
	items []Event
}

// NewBuffer creates a buffer holding up to capacity events. A non-positive
// capacity defaults to 256.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &Buffer{cap: capacity}
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, evt)
	if len(b.items) > b.cap {
		b.items = b.items[len(b.items)-b.cap:]
	}
}

// Recent returns the buffered events, newest last.
func (b *Buffer) Recent() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.items))
	copy(out, b.items)
	return out
}
