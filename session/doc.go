// Package session houses concrete implementations of core.SessionStore.
// The contract itself (and the Snapshot type) live in the core package so
// higher level packages depend on the interface, never on a storage backend.
//
// All durable backends share one blob format: a framed, deterministically
// encoded CBOR body (see Encode and Decode). Determinism makes saved
// snapshots reproducible byte for byte, so a save/load cycle returns the
// exact message history that went in.
//
// Three backends are provided:
//
//  1. InMemoryStore: volatile map, for tests and short-lived tools.
//  2. FileStore: one <id>.snap blob per session in a directory.
//  3. SQLiteStore: a snapshots table in a SQLite database.
package session
