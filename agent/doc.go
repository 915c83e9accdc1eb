// Package agent contains the reasoning loop at the heart of Troupe. The
// package focuses on three concerns:
//
//  1. Loop configuration and conversational state (Agent, Options)
//  2. The step cycle: model turn, decision parsing, concurrent capability
//     execution, feedback into history (loop.go, parse.go)
//  3. Delegation: exposing an agent as a capability of another agent
//     (AsTool), with nested event forwarding
//
// Design principles:
//   - Minimal hidden global state; explicit wiring via options
//   - Observability; every state transition surfaces as a typed core.Event
//   - Extensibility; models, renderers and capabilities are interfaces
//
// Execution model:
//   - Run returns a lazily consumed event stream; the loop advances only as
//     fast as the consumer reads
//   - A run opens with start (or resume when history already exists) and
//     terminates with exactly one end or error event
//   - Capability invocations requested in one turn execute concurrently;
//     the loop resumes reasoning only after every invocation resolved
//
// The package intentionally keeps persistence, model specifics and group
// coordination in their respective packages to avoid cyclic deps.
package agent
