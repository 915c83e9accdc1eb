package agent

import (
	"context"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/tool"
)

// delegationPathKey carries the chain of agents currently running on this
// call path, so delegation cycles are rejected instead of deadlocking on a
// target's run lock.
type delegationPathKey struct{}

func delegationPath(ctx context.Context) []string {
	path, _ := ctx.Value(delegationPathKey{}).([]string)
	return path
}

func pushDelegation(ctx context.Context, name string) context.Context {
	parent := delegationPath(ctx)
	path := make([]string, len(parent)+1)
	copy(path, parent)
	path[len(parent)] = name
	return context.WithValue(ctx, delegationPathKey{}, path)
}

// AsToolOptions configure the delegated capability wrapper.
type AsToolOptions struct {
	// Name overrides the capability name. Defaults to the agent name.
	Name string
	// Description overrides the capability description. Defaults to the
	// agent's description.
	Description string
}

// AsTool exposes the agent as a capability of another agent. Invoking it
// runs the wrapped agent to completion over the call arguments, forwards
// every nested event into the caller's stream with source and sequence
// preserved, and returns the nested run's final answer.
//
// Repeated invocations continue the wrapped agent's history, opening with a
// resume event; the agent's run lock serializes overlapping delegations.
// Delegating to an agent that is already running on the current call path
// (itself included) is rejected at call time: the cycle would deadlock on
// that run lock.
func (a *Agent) AsTool(optFns ...func(o *AsToolOptions)) tool.Delegated {
	opts := AsToolOptions{Name: a.name, Description: a.description}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &agentTool{agent: a, name: opts.Name, description: opts.Description}
}

type agentTool struct {
	agent       *Agent
	name        string
	description string
}

// Name implements tool.Tool.
func (t *agentTool) Name() string { return t.name }

// Description implements tool.Tool.
func (t *agentTool) Description() string { return t.description }

// TargetAgent implements tool.Delegated.
func (t *agentTool) TargetAgent() string { return t.agent.Name() }

// Parameters implements tool.Tool. Agents with declared input parameters
// expose them unchanged; otherwise the capability takes a single free-form
// "input" string.
func (t *agentTool) Parameters() []core.Parameter {
	if params := t.agent.InputParameters(); len(params) > 0 {
		return params
	}
	return []core.Parameter{{
		Name:        "input",
		Type:        core.TypeString,
		Description: "Task description for " + t.agent.Name(),
		Required:    true,
	}}
}

// Call implements tool.Tool by running the wrapped agent to completion.
func (t *agentTool) Call(tctx *tool.Context, args map[string]any) (any, error) {
	ctx := tctx.Context()
	if tctx.Caller() == t.agent.Name() {
		return nil, core.NewCapabilityError(t.name, core.CodeValidation, "agent %s cannot delegate to itself", t.agent.Name())
	}
	for _, ancestor := range delegationPath(ctx) {
		if ancestor == t.agent.Name() {
			return nil, core.NewCapabilityError(t.name, core.CodeValidation, "delegation cycle: agent %s is already running on this call path", t.agent.Name())
		}
	}
	events, err := t.agent.Run(ctx, core.Inputs(args))
	if err != nil {
		return nil, core.NewCapabilityError(t.name, core.CodeValidation, "%v", err)
	}

	var final, failure string
	gotEnd := false
	for ev := range events {
		if tctx.CanForward() {
			if err := tctx.ForwardEvent(ev); err != nil {
				tctx.Logger().Warn("delegation.forward.dropped", "tool", t.name, "error", err.Error())
			}
		}
		switch ev.Type {
		case core.EventEnd:
			if answer, ok := ev.FinalAnswer(); ok {
				final = answer
				gotEnd = true
			}
		case core.EventError:
			if msg, ok := ev.ErrorMessage(); ok {
				failure = msg
			} else {
				failure = "delegated run failed"
			}
		}
	}

	if failure != "" {
		return nil, core.NewCapabilityError(t.name, core.CodeExecution, "delegated agent %s failed: %s", t.agent.Name(), failure)
	}
	if !gotEnd {
		return nil, core.NewCapabilityError(t.name, core.CodeExecution, "delegated agent %s terminated without an answer", t.agent.Name())
	}
	return final, nil
}
