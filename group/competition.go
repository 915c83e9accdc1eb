package group

import (
	"context"
	"fmt"
	"strings"

	"github.com/troupe-dev/troupe/core"
)

// runCompetition collects candidate answers from every member concurrently,
// then runs the optimizer over the numbered candidates to pick the group's
// final answer. Members that failed contribute no candidate; all members
// failing fails the group without invoking the optimizer.
func (g *Group) runCompetition(ctx context.Context, em *core.Emitter, inputs core.Inputs) (string, core.Payload, error) {
	outcomes := g.runMembersConcurrently(ctx, em, inputs)
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	var candidates []memberOutcome
	for _, o := range outcomes {
		if o.err == nil {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return "", nil, &core.ProtocolError{Group: g.name, Detail: "all competing members failed"}
	}

	var sources []string
	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "Candidate %d (from %s):\n%s\n\n", i+1, c.member.Name(), c.answer)
		sources = append(sources, c.member.Name())
	}

	g.logger.Info("group.competition.judging", "group", g.name, "candidates", len(candidates), "optimizer", g.optimizer.Name())

	answer, err := g.forwardAgent(ctx, em, nil, g.optimizer, core.Inputs{
		"task":       inputs.JSON(),
		"candidates": strings.TrimRight(sb.String(), "\n"),
	})
	if err != nil {
		return "", nil, &core.ProtocolError{Group: g.name, Detail: "optimizer failed", Err: err}
	}
	return answer, core.Payload{"candidates": sources}, nil
}
