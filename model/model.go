package model

import (
	"context"
	"fmt"

	"github.com/troupe-dev/troupe/core"
)

// Request captures the normalized model input produced by an agent loop: the
// full role-tagged history including the system prompt. Capability schemas
// travel inside the system prompt, not as provider tool definitions.
type Request struct {
	Messages []core.Message `json:"messages"`
	Stream   bool           `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model. Partial
// responses carry incremental content fragments; the final response carries
// the complete turn text. A turn ends when the response channel closes.
type Response struct {
	Partial      bool   `json:"partial"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface required by agent loops to drive
// generation. Implementations deliver responses on the first channel and at
// most one transport error on the second; both close when the turn is over.
// A cancelled or expired ctx must terminate generation promptly.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ToolTurnText renders a tool-role history message as user-visible text for
// providers without a native representation of in-band capability results.
func ToolTurnText(msg core.Message) string {
	if msg.IsError {
		return fmt.Sprintf("Result of %s (failed): %s", msg.ToolName, msg.Content)
	}
	return fmt.Sprintf("Result of %s: %s", msg.ToolName, msg.Content)
}
