package group

import (
	"context"
	"fmt"
	"sync"

	"github.com/troupe-dev/troupe/agent"
	"github.com/troupe-dev/troupe/core"
)

// Run starts one group run over the given named inputs and returns its
// event stream. The stream merges the group's own lifecycle events with
// every participating agent's forwarded events; per-source order is
// preserved. The channel closes after the group's terminal end or error
// event.
func (g *Group) Run(ctx context.Context, inputs core.Inputs) (<-chan core.Event, error) {
	ch := make(chan core.Event, g.eventBuffer)
	go g.run(ctx, inputs.Clone(), ch)
	return ch, nil
}

func (g *Group) run(ctx context.Context, inputs core.Inputs, ch chan<- core.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer close(ch)

	em := core.NewEmitter(core.GroupSource(g.name), &g.seq, ch)

	g.logger.Debug("group.run.start", "group", g.name, "mode", string(g.mode), "members", len(g.members))

	opening := core.EventStart
	payload := core.Payload{
		"input":   map[string]any(inputs),
		"mode":    string(g.mode),
		"members": g.MemberNames(),
	}
	switch {
	case g.manager != nil:
		payload["manager"] = g.manager.Name()
	case g.entry != nil:
		payload["entry"] = g.entry.Name()
	case g.optimizer != nil:
		payload["optimizer"] = g.optimizer.Name()
	}
	if g.restored || g.runs > 0 {
		opening = core.EventResume
	}
	if err := em.Emit(ctx, opening, payload); err != nil {
		return
	}

	var (
		answer string
		extra  core.Payload
		err    error
	)
	switch g.mode {
	case ModeManagerDelegation:
		answer, err = g.forwardAgent(ctx, em, nil, g.manager, inputs)
	case ModeBroadcast:
		answer, err = g.forwardAgent(ctx, em, nil, g.entry, inputs)
	case ModeRoundRobin:
		answer, err = g.runRoundRobin(ctx, em, inputs)
	case ModeVoting:
		answer, extra, err = g.runVoting(ctx, em, inputs)
	case ModeCompetition:
		answer, extra, err = g.runCompetition(ctx, em, inputs)
	}
	if err != nil {
		kind := core.ErrorKind(err)
		g.logger.Error("group.run.failed", "group", g.name, "mode", string(g.mode), "kind", kind, "error", err.Error())
		_ = em.Emit(ctx, core.EventError, core.Payload{"error": err.Error(), "kind": kind})
		return
	}

	endPayload := core.Payload{"final_answer": answer}
	for k, v := range extra {
		endPayload[k] = v
	}
	g.logger.Info("group.run.complete", "group", g.name, "mode", string(g.mode))
	if em.Emit(ctx, core.EventEnd, endPayload) == nil {
		g.runs++
	}
}

// forwardAgent runs one agent over inputs, forwards its whole event stream
// (nested delegation events included) into the group stream, and returns its
// final answer. emitMu, when non-nil, serializes forwarding with sibling
// streams.
func (g *Group) forwardAgent(ctx context.Context, em *core.Emitter, emitMu *sync.Mutex, a *agent.Agent, inputs core.Inputs) (string, error) {
	events, err := a.Run(ctx, inputs)
	if err != nil {
		return "", fmt.Errorf("agent %s rejected the task: %w", a.Name(), err)
	}

	var final, failure string
	gotEnd := false
	for ev := range events {
		if emitMu != nil {
			emitMu.Lock()
		}
		ferr := em.Forward(ctx, ev)
		if emitMu != nil {
			emitMu.Unlock()
		}
		if ferr != nil {
			for range events {
			}
			return "", ferr
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
				failure = "run failed"
			}
		}
	}

	if failure != "" {
		return "", fmt.Errorf("agent %s failed: %s", a.Name(), failure)
	}
	if !gotEnd {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("agent %s terminated without an answer", a.Name())
	}
	return final, nil
}

// runRoundRobin executes the members as a pipeline in declaration order.
// Each member's final answer becomes the sole input of the next member,
// bound to that member's first declared parameter. The first failure aborts
// the pipeline: later members never start.
func (g *Group) runRoundRobin(ctx context.Context, em *core.Emitter, inputs core.Inputs) (string, error) {
	carry := inputs
	var answer string
	for i, m := range g.members {
		var err error
		answer, err = g.forwardAgent(ctx, em, nil, m, carry)
		if err != nil {
			return "", &core.ProtocolError{
				Group:  g.name,
				Detail: fmt.Sprintf("round_robin aborted at member %d (%s)", i+1, m.Name()),
				Err:    err,
			}
		}
		if i < len(g.members)-1 {
			carry = core.Inputs{pipelineInputName(g.members[i+1]): answer}
		}
	}
	return answer, nil
}

// pipelineInputName picks the parameter a member's pipeline input binds to:
// its first declared input parameter, or "input" when none are declared.
func pipelineInputName(a *agent.Agent) string {
	if params := a.InputParameters(); len(params) > 0 {
		return params[0].Name
	}
	return "input"
}

// memberOutcome records one member's result in a concurrent phase.
type memberOutcome struct {
	member *agent.Agent
	answer string
	err    error
}

// runMembersConcurrently starts every member on the same inputs, one
// forwarding goroutine per member so each source's events stay in order
// inside the merged stream, and blocks until all members resolved. The
// returned slice keeps declaration order.
func (g *Group) runMembersConcurrently(ctx context.Context, em *core.Emitter, inputs core.Inputs) []memberOutcome {
	outcomes := make([]memberOutcome, len(g.members))

	var emitMu sync.Mutex
	var wg sync.WaitGroup
	for i, m := range g.members {
		wg.Add(1)
		go func(idx int, a *agent.Agent) {
			defer wg.Done()
			answer, err := g.forwardAgent(ctx, em, &emitMu, a, inputs.Clone())
			outcomes[idx] = memberOutcome{member: a, answer: answer, err: err}
			if err != nil {
				g.logger.Warn("group.member.failed", "group", g.name, "member", a.Name(), "error", err.Error())
			}
		}(i, m)
	}
	wg.Wait()
	return outcomes
}
