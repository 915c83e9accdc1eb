package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/troupe-dev/troupe/core"
)

// MockModel is a lightweight in-memory Model useful for tests and examples.
// Responses are scripted in order: each Generate call consumes the next
// entry. An exhausted script produces a descriptive transport error, which
// keeps broken tests loud instead of hanging.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	script   []scriptEntry
	next     int
	requests []Request

	// StreamRunes emits partial responses rune by rune before the final
	// response, mimicking provider token streams.
	StreamRunes bool
	// Latency delays each Generate call, for concurrency tests.
	Latency time.Duration
}

type scriptEntry struct {
	text string
	err  error
	hang bool
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock"}}
}

// QueueResponse appends a canned completion to the script.
func (m *MockModel) QueueResponse(text string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{text: text})
	return m
}

// QueueError appends a transport failure to the script.
func (m *MockModel) QueueError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{err: err})
	return m
}

// QueueHang appends an entry that blocks until the context is done,
// simulating a stuck backend for timeout tests.
func (m *MockModel) QueueHang() *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{hang: true})
	return m
}

// CallCount reports how many Generate calls the mock has served.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

// Requests returns copies of the requests observed so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, if any.
func (m *MockModel) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return Request{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Generate implements Model: emits optional streaming rune chunks then the
// final response for the next scripted entry.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	m.mu.Lock()
	recorded := Request{Messages: core.CloneMessages(req.Messages), Stream: req.Stream}
	m.requests = append(m.requests, recorded)
	var entry scriptEntry
	exhausted := m.next >= len(m.script)
	if !exhausted {
		entry = m.script[m.next]
	}
	m.next++
	latency := m.Latency
	streamRunes := m.StreamRunes
	m.mu.Unlock()

	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if exhausted {
			errCh <- fmt.Errorf("mock model %s: script exhausted after %d responses", m.info.Name, len(m.script))
			return
		}
		if entry.hang {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if latency > 0 {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(latency):
			}
		}
		if entry.err != nil {
			errCh <- entry.err
			return
		}
		if req.Stream && streamRunes {
			for _, r := range entry.text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Content: string(r)}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Content: entry.text, FinishReason: "stop"}:
		}
	}()
	return respCh, errCh
}

// Info implements the Model interface.
func (m *MockModel) Info() Info { return m.info }
