package tool

import (
	"errors"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/internal/util"
)

// Func is the implementation signature of a plain capability.
type Func func(toolCtx *Context, args map[string]any) (any, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// capability.
//
// Responsibilities:
//   - Holds an ordered parameter schema
//   - Validates supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *core.CapabilityError
//     with consistent codes: VALIDATION_ERROR for schema mismatches,
//     EXECUTION_ERROR for plain implementation errors (CapabilityErrors
//     returned by the function pass through unchanged)
//
// A FunctionTool has no internal mutable state after construction and is
// safe for concurrent use. Results are recomputed on every invocation;
// nothing is memoized.
type FunctionTool struct {
	name        string
	description string
	params      []core.Parameter
	fn          Func
}

// NewFunctionTool constructs a FunctionTool from an explicit ordered schema
// and implementation.
//
// Example:
//
//	sum := tool.NewFunctionTool(
//	    "calculate_sum",
//	    "Calculate the sum of two numbers",
//	    []core.Parameter{
//	        {Name: "a", Type: core.TypeNumber, Required: true},
//	        {Name: "b", Type: core.TypeNumber, Required: true},
//	    },
//	    func(tc *tool.Context, args map[string]any) (any, error) {
//	        return args["a"].(float64) + args["b"].(float64), nil
//	    },
//	)
func NewFunctionTool(name, description string, params []core.Parameter, fn Func) *FunctionTool {
	return &FunctionTool{name: name, description: description, params: params, fn: fn}
}

// NewFunctionToolFromStruct constructs a FunctionTool deriving the ordered
// schema from a struct prototype via reflection (json and description tags,
// omitempty/pointer fields optional).
func NewFunctionToolFromStruct(name, description string, argsProto any, fn Func) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		params:      util.ParametersFromStruct(argsProto),
		fn:          fn,
	}
}

// Name returns the capability name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the capability description.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the ordered argument schema.
func (t *FunctionTool) Parameters() []core.Parameter { return t.params }

// Call validates args against the schema and invokes the wrapped function.
func (t *FunctionTool) Call(toolCtx *Context, args map[string]any) (any, error) {
	if err := util.ValidateArguments(t.params, args); err != nil {
		return nil, core.NewCapabilityError(t.name, core.CodeValidation, "%v", err)
	}
	result, err := t.fn(toolCtx, args)
	if err != nil {
		var capErr *core.CapabilityError
		if errors.As(err, &capErr) {
			return nil, capErr
		}
		return nil, core.NewCapabilityError(t.name, core.CodeExecution, "%v", err)
	}
	return result, nil
}
