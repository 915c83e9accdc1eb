// Package group coordinates teams of agents under a fixed collaboration
// protocol. A Group owns an ordered member set, wires delegation and shared
// capabilities at construction time, and exposes the same event stream
// surface as a single agent: Run returns a lazily consumed channel opening
// with start (or resume after Restore) and closing after exactly one end or
// error event.
//
// Five mutually exclusive modes are supported:
//   - manager_delegation: one member coordinates, the rest are specialists
//     reachable only through delegated capabilities
//   - broadcast: every member can delegate to every other; one entry member
//     receives the task
//   - round_robin: members run in declaration order, each feeding the next
//   - voting: members run concurrently on the same task; majority answer
//     wins, ties resolve to the earliest-declared member
//   - competition: members produce candidates concurrently; an optimizer
//     agent outside the member set picks the winner
//
// All protocol wiring and its validation happen in New; a group that
// constructed successfully cannot fail for wiring reasons at run time.
package group
