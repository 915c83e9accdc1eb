package core

import (
	"context"
	"errors"
	"time"
)

// SnapshotVersion is the current snapshot schema version. Encoders stamp it;
// decoders reject other versions.
const SnapshotVersion = 1

// MemberState is the durable state of one agent loop: its full message
// history and the step counter. Events are not part of it.
type MemberState struct {
	Name       string    `json:"name"`
	Step       int       `json:"step"`
	Messages   []Message `json:"messages"`
	LastAnswer string    `json:"last_answer,omitempty"`
}

// Clone returns a deep copy of the member state.
func (m *MemberState) Clone() *MemberState {
	if m == nil {
		return nil
	}
	return &MemberState{
		Name:       m.Name,
		Step:       m.Step,
		Messages:   CloneMessages(m.Messages),
		LastAnswer: m.LastAnswer,
	}
}

// Snapshot is the durable state of a group run: the protocol, the ordered
// member states and the role bindings needed to validate a restore. It is
// produced by Group.Snapshot and consumed by Group.Restore; stores persist
// it as an opaque blob.
type Snapshot struct {
	Version   int           `json:"version"`
	Group     string        `json:"group"`
	Mode      string        `json:"mode"`
	Entry     string        `json:"entry,omitempty"`
	Manager   string        `json:"manager,omitempty"`
	Optimizer string        `json:"optimizer,omitempty"`
	Members   []MemberState `json:"members"`
	CreatedAt time.Time     `json:"created_at"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Members = make([]MemberState, len(s.Members))
	for i := range s.Members {
		out.Members[i] = *s.Members[i].Clone()
	}
	return &out
}

// MemberNames returns the member names in declaration order.
func (s *Snapshot) MemberNames() []string {
	names := make([]string, len(s.Members))
	for i := range s.Members {
		names[i] = s.Members[i].Name
	}
	return names
}

// ErrSessionNotFound is returned by SessionStore.Load and Delete for ids
// that were never saved.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists group snapshots under caller-chosen ids. A saved id
// may be overwritten; implementations must return deep or decoded copies so
// callers never share mutable state with the store.
type SessionStore interface {
	// Save persists the snapshot under id, replacing any previous value.
	Save(ctx context.Context, id string, snap *Snapshot) error
	// Load retrieves the snapshot saved under id.
	Load(ctx context.Context, id string) (*Snapshot, error)
	// Delete removes the snapshot saved under id.
	Delete(ctx context.Context, id string) error
	// List returns all saved ids in unspecified order.
	List(ctx context.Context) ([]string, error)
}
