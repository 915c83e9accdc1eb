package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/troupe-dev/troupe/core"
)

func testContext() *Context {
	return NewContext(context.Background(), "tester", core.NewID(), nil, nil)
}

func TestFunctionTool_CallValidatesArguments(t *testing.T) {
	sum := NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		[]core.Parameter{
			{Name: "a", Type: core.TypeNumber, Required: true},
			{Name: "b", Type: core.TypeNumber, Required: true},
		},
		func(_ *Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	result, err := sum.Call(testContext(), map[string]any{"a": float64(2), "b": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, float64(5), result)

	_, err = sum.Call(testContext(), map[string]any{"a": float64(2)})
	require.Error(t, err)
	var capErr *core.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, core.CodeValidation, capErr.Code)
	assert.Equal(t, "calculate_sum", capErr.Tool)
}

func TestFunctionTool_ErrorNormalization(t *testing.T) {
	plain := NewFunctionTool("fails", "Always fails", nil,
		func(_ *Context, _ map[string]any) (any, error) {
			return nil, errors.New("boom")
		})

	_, err := plain.Call(testContext(), nil)
	var capErr *core.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, core.CodeExecution, capErr.Code)

	custom := NewFunctionTool("custom", "Returns a typed failure", nil,
		func(_ *Context, _ map[string]any) (any, error) {
			return nil, core.NewCapabilityError("custom", core.CodeNotFound, "no such record")
		})

	_, err = custom.Call(testContext(), nil)
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, core.CodeNotFound, capErr.Code, "typed capability errors pass through unchanged")
}

func TestFunctionTool_NoMemoization(t *testing.T) {
	calls := 0
	counter := NewFunctionTool("counter", "Counts invocations", nil,
		func(_ *Context, _ map[string]any) (any, error) {
			calls++
			return calls, nil
		})

	for i := 1; i <= 3; i++ {
		result, err := counter.Call(testContext(), map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, i, result, "identical invocations must re-execute")
	}
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type args struct {
		City string `json:"city" description:"City to look up"`
		Days int    `json:"days,omitempty"`
	}
	tl := NewFunctionToolFromStruct("weather", "Look up weather", args{},
		func(_ *Context, a map[string]any) (any, error) { return a["city"], nil })

	params := tl.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "city", params[0].Name)
	assert.True(t, params[0].Required)
	assert.Equal(t, "days", params[1].Name)
	assert.False(t, params[1].Required)

	_, err := tl.Call(testContext(), map[string]any{"days": float64(2)})
	require.Error(t, err, "missing required city")
}

func TestContext_ForwardingUnconfigured(t *testing.T) {
	tc := testContext()
	assert.False(t, tc.CanForward())
	err := tc.ForwardEvent(core.NewEvent(core.AgentSource("x"), core.EventEnd, nil))
	assert.Error(t, err)
}
