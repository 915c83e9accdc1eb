// Package tool implements the capability subsystem that lets agents invoke
// structured operations (APIs, computations, side effects, nested agents)
// with schema validated arguments and consistent error handling.
package tool

import (
	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/internal/util"
)

// Tool defines a capability an agent loop can invoke during a decision
// round.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case recommended) and
//     descriptions; the description is what the model sees
//   - Declare an ordered parameter schema so prompts render deterministically
//   - Handle errors gracefully, returning *core.CapabilityError for
//     domain failures
//   - Be safe for concurrent use: rounds dispatch invocations in parallel
type Tool interface {
	// Name returns the unique identifier for this capability. Uniqueness is
	// enforced per agent scope at wiring time.
	Name() string

	// Description returns a human-readable description of what this
	// capability does, provided to the model for guidance.
	Description() string

	// Parameters returns the ordered argument schema. Declaration order is
	// preserved when the schema is rendered into prompts.
	Parameters() []core.Parameter

	// Call executes the capability with validated arguments. The result is
	// stringified into the invoking loop's history; errors are fed back as
	// failed tool results and never abort the loop.
	Call(toolCtx *Context, args map[string]any) (any, error)
}

// Delegated marks capabilities that wrap a nested agent loop. Group wiring
// uses the marker to tell plain capabilities from delegated ones and to
// validate protocol exposure rules.
type Delegated interface {
	Tool

	// TargetAgent returns the name of the wrapped agent.
	TargetAgent() string
}

// ValidationError reports an argument that does not satisfy a capability's
// parameter schema.
type ValidationError = util.ValidationError
