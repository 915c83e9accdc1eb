// Package troupe provides a high-level facade over the agent loop, group
// coordination and session packages, enabling quick construction of
// multi-agent systems. Most applications interact with this package by:
//  1. Creating a Troupe via New() (optionally overriding the session store
//     and logger)
//  2. Registering agents and groups, either hand-built or from config
//  3. Running them by name and draining the event stream
//
// The facade delegates orchestration to the agent and group packages and
// persistence to the session store; it adds no semantics of its own. All
// defaults are safe for local development and testing; production
// deployments typically supply a durable store and a structured logger.
package troupe

import (
	"context"
	"fmt"

	"github.com/troupe-dev/troupe/agent"
	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/group"
	"github.com/troupe-dev/troupe/logging"
	"github.com/troupe-dev/troupe/registry"
	"github.com/troupe-dev/troupe/session"
)

// Options configures the Troupe instance.
type Options struct {
	// SessionStore persists group snapshots. Defaults to in-memory.
	SessionStore core.SessionStore
	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// Troupe aggregates a registry of agents and groups with a session store.
type Troupe struct {
	registry *registry.Registry
	store    core.SessionStore
	logger   logging.Logger
}

// New creates a new Troupe instance with optional overrides. An unset store
// is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Troupe {
	opts := Options{
		SessionStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Troupe{
		registry: registry.New(),
		store:    opts.SessionStore,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Registry exposes the underlying registry, for callers that built one via
// config.Build and want to merge it in or inspect registered names.
func (t *Troupe) Registry() *registry.Registry { return t.registry }

// RegisterAgent adds an agent under its name.
func (t *Troupe) RegisterAgent(a *agent.Agent) error { return t.registry.AddAgent(a) }

// RegisterGroup adds a group under its name.
func (t *Troupe) RegisterGroup(g *group.Group) error { return t.registry.AddGroup(g) }

// Agent looks up a registered agent by name.
func (t *Troupe) Agent(name string) (*agent.Agent, bool) { return t.registry.Agent(name) }

// Group looks up a registered group by name.
func (t *Troupe) Group(name string) (*group.Group, bool) { return t.registry.Group(name) }

// RunAgent starts the named agent and returns its event stream.
func (t *Troupe) RunAgent(ctx context.Context, name string, inputs core.Inputs) (<-chan core.Event, error) {
	a, ok := t.registry.Agent(name)
	if !ok {
		return nil, fmt.Errorf("agent %q not registered", name)
	}
	return a.Run(ctx, inputs)
}

// RunGroup starts the named group and returns its event stream.
func (t *Troupe) RunGroup(ctx context.Context, name string, inputs core.Inputs) (<-chan core.Event, error) {
	g, ok := t.registry.Group(name)
	if !ok {
		return nil, fmt.Errorf("group %q not registered", name)
	}
	return g.Run(ctx, inputs)
}

// RunGroupSync is a synchronous helper that drains the event stream and
// returns the collected events together with the final answer. A run that
// terminates with an error event is returned as an error.
func (t *Troupe) RunGroupSync(ctx context.Context, name string, inputs core.Inputs) ([]core.Event, string, error) {
	ch, err := t.RunGroup(ctx, name, inputs)
	if err != nil {
		return nil, "", err
	}
	return drain(ch)
}

// RunAgentSync is the synchronous counterpart of RunAgent.
func (t *Troupe) RunAgentSync(ctx context.Context, name string, inputs core.Inputs) ([]core.Event, string, error) {
	ch, err := t.RunAgent(ctx, name, inputs)
	if err != nil {
		return nil, "", err
	}
	return drain(ch)
}

func drain(ch <-chan core.Event) ([]core.Event, string, error) {
	var events []core.Event
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) == 0 {
		return events, "", fmt.Errorf("run produced no events")
	}
	last := events[len(events)-1]
	if msg, ok := last.ErrorMessage(); ok {
		return events, "", fmt.Errorf("%s: %s", last.Source, msg)
	}
	answer, _ := last.FinalAnswer()
	return events, answer, nil
}

// SaveSession snapshots the named group into the session store under id.
func (t *Troupe) SaveSession(ctx context.Context, id, groupName string) error {
	g, ok := t.registry.Group(groupName)
	if !ok {
		return fmt.Errorf("group %q not registered", groupName)
	}
	if err := t.store.Save(ctx, id, g.Snapshot()); err != nil {
		return err
	}
	t.logger.Info("troupe.session.saved", "session_id", id, "group", groupName)
	return nil
}

// ResumeSession loads the snapshot stored under id and restores it into the
// named group. The group must match the snapshot's shape; a mismatch leaves
// the group untouched.
func (t *Troupe) ResumeSession(ctx context.Context, id, groupName string) error {
	g, ok := t.registry.Group(groupName)
	if !ok {
		return fmt.Errorf("group %q not registered", groupName)
	}
	snap, err := t.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := g.Restore(snap); err != nil {
		return err
	}
	t.logger.Info("troupe.session.resumed", "session_id", id, "group", groupName)
	return nil
}

// Sessions lists the ids currently held by the session store.
func (t *Troupe) Sessions(ctx context.Context) ([]string, error) {
	return t.store.List(ctx)
}
