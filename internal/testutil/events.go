package testutil

import (
	"testing"
	"time"

	"github.com/troupe-dev/troupe/core"
)

// CollectEvents drains the stream until it closes, failing the test if it
// does not close within timeout. Use it whenever a test needs the full
// event trace of a run.
func CollectEvents(t *testing.T, ch <-chan core.Event, timeout time.Duration) []core.Event {
	t.Helper()

	var events []core.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("event stream did not close within %v (collected %d events)", timeout, len(events))
			return events
		}
	}
}

// Types returns the event types in stream order.
func Types(events []core.Event) []core.EventType {
	out := make([]core.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// BySource filters the stream down to one source, preserving order.
func BySource(events []core.Event, source string) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.Source == source {
			out = append(out, ev)
		}
	}
	return out
}

// First returns the first event of the given type.
func First(events []core.Event, typ core.EventType) (core.Event, bool) {
	for _, ev := range events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return core.Event{}, false
}

// All returns every event of the given type in stream order.
func All(events []core.Event, typ core.EventType) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the final event of the stream, failing the test when empty.
func Last(t *testing.T, events []core.Event) core.Event {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("event stream is empty")
	}
	return events[len(events)-1]
}

// RequireMonotonicSeq fails the test unless every source's events carry
// strictly increasing sequence indices in stream order.
func RequireMonotonicSeq(t *testing.T, events []core.Event) {
	t.Helper()

	last := make(map[string]uint64)
	seen := make(map[string]bool)
	for i, ev := range events {
		if seen[ev.Source] && ev.Seq <= last[ev.Source] {
			t.Fatalf("event %d: source %s seq %d not greater than previous %d", i, ev.Source, ev.Seq, last[ev.Source])
		}
		last[ev.Source] = ev.Seq
		seen[ev.Source] = true
	}
}

// RequireTerminal fails the test unless the stream's final event for the
// source is of the given terminal type.
func RequireTerminal(t *testing.T, events []core.Event, source string, typ core.EventType) core.Event {
	t.Helper()

	scoped := BySource(events, source)
	if len(scoped) == 0 {
		t.Fatalf("no events for source %s", source)
	}
	final := scoped[len(scoped)-1]
	if final.Type != typ {
		t.Fatalf("source %s terminated with %s, want %s", source, final.Type, typ)
	}
	return final
}
