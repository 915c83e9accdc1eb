package tool

import (
	"context"
	"fmt"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/logging"
)

// Context provides a constrained, auditable surface for capability
// implementations. It carries the invocation's cancellation context, the
// identity of the invoking agent, the call id correlating the decision with
// its tool result, and an event forwarding hook used by delegated
// capabilities to re-emit nested events into the caller's stream.
type Context struct {
	ctx     context.Context
	caller  string
	callID  string
	forward func(context.Context, core.Event) error
	logger  logging.Logger
}

// NewContext constructs an invocation context. forward may be nil for
// environments that do not re-emit nested events (direct tool testing).
func NewContext(
	ctx context.Context,
	caller, callID string,
	forward func(context.Context, core.Event) error,
	logger logging.Logger,
) *Context {
	return &Context{
		ctx:     ctx,
		caller:  caller,
		callID:  callID,
		forward: forward,
		logger:  logging.OrNoOp(logger),
	}
}

// Context returns the cancellation context of the invocation.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Caller returns the name of the invoking agent.
func (c *Context) Caller() string { return c.caller }

// CallID returns the invocation's correlation id.
func (c *Context) CallID() string { return c.callID }

// Logger returns the logger associated with the invocation.
func (c *Context) Logger() logging.Logger { return c.logger }

// ForwardEvent re-emits a nested event into the caller's stream, preserving
// the event's original source tag and sequence.
func (c *Context) ForwardEvent(ev core.Event) error {
	if c.forward == nil {
		return fmt.Errorf("event forwarding not configured")
	}
	return c.forward(c.Context(), ev)
}

// CanForward reports whether nested event forwarding is configured.
func (c *Context) CanForward() bool { return c.forward != nil }
