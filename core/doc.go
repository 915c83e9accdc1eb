// Package core provides the foundational domain types shared across Troupe.
// It defines the core abstractions for:
//
//   - Events (immutable, per-source sequenced orchestration records)
//   - Messages (role-tagged conversation history entries)
//   - Parameters (ordered capability schemas)
//   - Snapshots (durable agent/group state for session persistence)
//   - The error taxonomy (backend, capability, parse, protocol, state)
//
// The package intentionally keeps implementation concerns (loops, protocols,
// persistence backends, model transports) out of scope, exposing small types
// and interfaces so the agent, group and session packages can interoperate
// without depending on each other.
package core
