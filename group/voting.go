package group

import (
	"context"
	"strings"

	"github.com/troupe-dev/troupe/core"
)

// runVoting runs every member concurrently on the same inputs and tallies
// their final answers as votes. A vote is the whitespace-trimmed answer,
// matched exactly. The majority answer wins; on a tie the earliest-declared
// member among the tied answers decides. Failed members are excluded from
// the tally; only all members failing fails the group.
func (g *Group) runVoting(ctx context.Context, em *core.Emitter, inputs core.Inputs) (string, core.Payload, error) {
	outcomes := g.runMembersConcurrently(ctx, em, inputs)
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	tally := make(map[string]int)
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		tally[strings.TrimSpace(o.answer)]++
	}
	if len(tally) == 0 {
		return "", nil, &core.ProtocolError{Group: g.name, Detail: "all voting members failed"}
	}

	maxVotes := 0
	for _, n := range tally {
		if n > maxVotes {
			maxVotes = n
		}
	}

	// Declaration order resolves ties: the first member whose vote reached
	// the maximum owns the winning answer.
	var winner string
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		if tally[strings.TrimSpace(o.answer)] == maxVotes {
			winner = o.answer
			g.logger.Info("group.vote.decided",
				"group", g.name,
				"winner", o.member.Name(),
				"votes", maxVotes,
				"ballots", len(tally),
			)
			break
		}
	}

	votes := make(map[string]int, len(tally))
	for answer, n := range tally {
		votes[answer] = n
	}
	return winner, core.Payload{"votes": votes}, nil
}
