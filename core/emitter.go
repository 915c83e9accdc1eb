package core

import (
	"context"
	"sync/atomic"
)

// Emitter sequences and delivers events for a single source. Delivery blocks
// until the consumer pulls the event or the context is cancelled, which is
// what makes streams lazy: producers advance only as fast as consumers read.
//
// The sequence counter is owned by the emitting entity and shared across all
// emitters created for it, so repeated runs of one source keep a single
// monotonic order.
type Emitter struct {
	source string
	seq    *atomic.Uint64
	ch     chan<- Event
}

// NewEmitter binds a source tag and its sequence counter to an output channel.
func NewEmitter(source string, seq *atomic.Uint64, ch chan<- Event) *Emitter {
	return &Emitter{source: source, seq: seq, ch: ch}
}

// Source returns the emitter's source tag.
func (em *Emitter) Source() string { return em.source }

// Emit builds a sequenced event and delivers it. Returns the context error
// when cancelled before delivery.
func (em *Emitter) Emit(ctx context.Context, typ EventType, payload Payload) error {
	ev := NewEvent(em.source, typ, payload)
	ev.Seq = em.seq.Add(1) - 1
	return em.Forward(ctx, ev)
}

// Forward delivers an already sequenced event unchanged. Delegated runs use
// this to re-emit nested events with their original source tag and sequence.
func (em *Emitter) Forward(ctx context.Context, ev Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case em.ch <- ev:
		return nil
	}
}
