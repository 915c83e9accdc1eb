package group

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/troupe-dev/troupe/agent"
	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/logging"
	"github.com/troupe-dev/troupe/tool"
	"github.com/troupe-dev/troupe/workspace"
)

// Mode selects the collaboration protocol of a group. Modes are mutually
// exclusive and fixed at construction.
type Mode string

// Supported collaboration protocols.
const (
	ModeManagerDelegation Mode = "manager_delegation"
	ModeBroadcast         Mode = "broadcast"
	ModeRoundRobin        Mode = "round_robin"
	ModeVoting            Mode = "voting"
	ModeCompetition       Mode = "competition"
)

// DefaultEventBuffer is the capacity of a group's event stream channel.
const DefaultEventBuffer = 64

func validMode(m Mode) bool {
	switch m {
	case ModeManagerDelegation, ModeBroadcast, ModeRoundRobin, ModeVoting, ModeCompetition:
		return true
	}
	return false
}

// Options configure a Group instance.
//
// Use functional options with New to override defaults.
type Options struct {
	// Mode selects the collaboration protocol. Defaults to ModeBroadcast.
	Mode Mode
	// Manager names the coordinating member for manager_delegation.
	// Defaults to the first member.
	Manager string
	// Entry names the member that receives the task in broadcast mode.
	// Defaults to the first member.
	Entry string
	// Optimizer is the judging agent for competition mode. It must not be
	// part of the member set. Required for that mode.
	Optimizer *agent.Agent
	// SharedTools are appended to every member's capability set.
	SharedTools []tool.Tool
	// Workspace, when set, has its file capabilities appended to every
	// member.
	Workspace *workspace.Workspace
	// EventBuffer sets the event channel capacity.
	EventBuffer int
	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// Group is a team of agents bound to one collaboration protocol.
//
// Like an Agent, a Group is not re-entrant: concurrent Run calls serialize,
// each continuing the member histories the previous run left behind.
type Group struct {
	name        string
	mode        Mode
	members     []*agent.Agent
	byName      map[string]*agent.Agent
	manager     *agent.Agent
	entry       *agent.Agent
	optimizer   *agent.Agent
	eventBuffer int
	logger      logging.Logger

	// seq numbers the group's own events for its whole lifetime.
	seq atomic.Uint64

	mu       sync.Mutex // serializes runs and guards the fields below
	runs     int
	restored bool
}

// New constructs a group over the given members, wiring the selected
// protocol's delegation graph and shared capabilities. Members are kept in
// declaration order; that order is load-bearing for round_robin execution
// and voting tie-breaks.
//
// All protocol validation happens here: unknown modes, duplicate member
// names, a specialist holding a delegated capability in manager_delegation,
// a missing optimizer in competition and similar misconfigurations fail
// construction, never a run.
func New(name string, members []*agent.Agent, optFns ...func(o *Options)) (*Group, error) {
	if name == "" {
		return nil, errors.New("group name must not be empty")
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("group %s: at least one member is required", name)
	}

	opts := Options{
		Mode:        ModeBroadcast,
		EventBuffer: DefaultEventBuffer,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if !validMode(opts.Mode) {
		return nil, &core.ProtocolError{Group: name, Detail: fmt.Sprintf("unknown mode %q", opts.Mode)}
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}

	g := &Group{
		name:        name,
		mode:        opts.Mode,
		members:     append([]*agent.Agent(nil), members...),
		byName:      make(map[string]*agent.Agent, len(members)),
		eventBuffer: opts.EventBuffer,
		logger:      logging.OrNoOp(opts.Logger),
	}
	for _, m := range g.members {
		if m == nil {
			return nil, fmt.Errorf("group %s: nil member", name)
		}
		if _, exists := g.byName[m.Name()]; exists {
			return nil, fmt.Errorf("group %s: duplicate member name %q", name, m.Name())
		}
		g.byName[m.Name()] = m
	}

	shared := append([]tool.Tool(nil), opts.SharedTools...)
	if opts.Workspace != nil {
		shared = append(shared, opts.Workspace.Tools()...)
	}
	for _, m := range g.members {
		if err := m.ExtendTools(shared...); err != nil {
			return nil, fmt.Errorf("group %s: %w", name, err)
		}
	}

	if err := g.wire(opts); err != nil {
		return nil, err
	}
	return g, nil
}

// wire applies the mode's delegation graph and validation.
func (g *Group) wire(opts Options) error {
	switch g.mode {
	case ModeManagerDelegation:
		managerName := opts.Manager
		if managerName == "" {
			managerName = g.members[0].Name()
		}
		manager, ok := g.byName[managerName]
		if !ok {
			return &core.ProtocolError{Group: g.name, Detail: fmt.Sprintf("manager %q is not a member", managerName)}
		}
		g.manager = manager
		for _, m := range g.members {
			if m == manager {
				continue
			}
			if err := g.requireIsolated(m, "specialist"); err != nil {
				return err
			}
		}
		for _, m := range g.members {
			if m == manager {
				continue
			}
			if err := manager.ExtendTools(m.AsTool()); err != nil {
				return fmt.Errorf("group %s: wiring manager: %w", g.name, err)
			}
		}

	case ModeBroadcast:
		entryName := opts.Entry
		if entryName == "" {
			entryName = g.members[0].Name()
		}
		entry, ok := g.byName[entryName]
		if !ok {
			return &core.ProtocolError{Group: g.name, Detail: fmt.Sprintf("entry %q is not a member", entryName)}
		}
		g.entry = entry
		for _, m := range g.members {
			for _, other := range g.members {
				if other == m {
					continue
				}
				if err := m.ExtendTools(other.AsTool()); err != nil {
					return fmt.Errorf("group %s: wiring broadcast: %w", g.name, err)
				}
			}
		}

	case ModeRoundRobin:
		// Declaration order is the pipeline; no delegation wiring.

	case ModeVoting:
		for _, m := range g.members {
			if err := g.requireIsolated(m, "voting member"); err != nil {
				return err
			}
		}

	case ModeCompetition:
		if opts.Optimizer == nil {
			return &core.ProtocolError{Group: g.name, Detail: "competition mode requires an optimizer"}
		}
		if _, ok := g.byName[opts.Optimizer.Name()]; ok {
			return &core.ProtocolError{Group: g.name, Detail: fmt.Sprintf("optimizer %q must not be a member", opts.Optimizer.Name())}
		}
		g.optimizer = opts.Optimizer
		for _, m := range g.members {
			if err := g.requireIsolated(m, "competing member"); err != nil {
				return err
			}
		}
	}
	return nil
}

// requireIsolated rejects members holding a delegated capability that
// targets another member of this group.
func (g *Group) requireIsolated(m *agent.Agent, role string) error {
	for _, t := range m.Tools() {
		d, ok := t.(tool.Delegated)
		if !ok {
			continue
		}
		if _, isMember := g.byName[d.TargetAgent()]; isMember {
			return &core.ProtocolError{
				Group:  g.name,
				Detail: fmt.Sprintf("%s %q must not hold a delegated capability targeting member %q", role, m.Name(), d.TargetAgent()),
			}
		}
	}
	return nil
}

// Name returns the group's identity.
func (g *Group) Name() string { return g.name }

// Mode returns the group's collaboration protocol.
func (g *Group) Mode() Mode { return g.mode }

// Members returns the member set in declaration order.
func (g *Group) Members() []*agent.Agent {
	return append([]*agent.Agent(nil), g.members...)
}

// MemberNames returns the member names in declaration order.
func (g *Group) MemberNames() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.Name()
	}
	return names
}

// Member returns the named member, or nil when unknown.
func (g *Group) Member(name string) *agent.Agent { return g.byName[name] }

// Manager returns the coordinating member in manager_delegation mode.
func (g *Group) Manager() *agent.Agent { return g.manager }

// Entry returns the task-receiving member in broadcast mode.
func (g *Group) Entry() *agent.Agent { return g.entry }

// Optimizer returns the judging agent in competition mode.
func (g *Group) Optimizer() *agent.Agent { return g.optimizer }

// Snapshot captures the group's full conversational state: every member's
// history in declaration order plus the protocol identity needed to verify
// a later Restore.
func (g *Group) Snapshot() *core.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := &core.Snapshot{
		Version:   core.SnapshotVersion,
		Group:     g.name,
		Mode:      string(g.mode),
		CreatedAt: time.Now().UTC(),
	}
	if g.manager != nil {
		snap.Manager = g.manager.Name()
	}
	if g.entry != nil {
		snap.Entry = g.entry.Name()
	}
	if g.optimizer != nil {
		snap.Optimizer = g.optimizer.Name()
	}
	for _, m := range g.members {
		snap.Members = append(snap.Members, m.Snapshot())
	}
	return snap
}

// Restore replaces every member's conversational state from a snapshot.
// The snapshot must have been taken from a group with the same name, mode
// and exact ordered member name set; any mismatch fails with
// StateMismatchError before any member is touched. After a successful
// restore the next Run opens with a resume event.
func (g *Group) Restore(snap *core.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("group %s: nil snapshot", g.name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if snap.Version != core.SnapshotVersion {
		return &core.StateMismatchError{
			Field: "version",
			Got:   strconv.Itoa(snap.Version),
			Want:  strconv.Itoa(core.SnapshotVersion),
		}
	}
	if snap.Group != g.name {
		return &core.StateMismatchError{Field: "group", Got: snap.Group, Want: g.name}
	}
	if snap.Mode != string(g.mode) {
		return &core.StateMismatchError{Field: "mode", Got: snap.Mode, Want: string(g.mode)}
	}

	names := g.MemberNames()
	snapNames := snap.MemberNames()
	if len(snapNames) != len(names) || !equalNames(snapNames, names) {
		return &core.StateMismatchError{
			Field: "members",
			Got:   strings.Join(snapNames, ","),
			Want:  strings.Join(names, ","),
		}
	}

	for i, m := range g.members {
		if err := m.Restore(snap.Members[i]); err != nil {
			return err
		}
	}
	g.restored = true
	g.logger.Info("group.restored", "group", g.name, "mode", string(g.mode), "members", len(g.members))
	return nil
}

func equalNames(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
