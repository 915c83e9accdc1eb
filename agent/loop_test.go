package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/internal/testutil"
	"github.com/troupe-dev/troupe/model"
	"github.com/troupe-dev/troupe/tool"
)

const collectTimeout = 5 * time.Second

func newTestAgent(t *testing.T, llm model.Model, optFns ...func(o *Options)) *Agent {
	t.Helper()
	a, err := New("tester", llm, optFns...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a
}

func runToCompletion(t *testing.T, a *Agent, inputs core.Inputs) []core.Event {
	t.Helper()
	events, err := a.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	return testutil.CollectEvents(t, events, collectTimeout)
}

func callBlock(toolName, argsJSON string) string {
	return fmt.Sprintf("<tool_call>\n{\"tool\": %q, \"arguments\": %s}\n</tool_call>", toolName, argsJSON)
}

func TestAgentRun_DirectAnswer(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.StreamRunes = true
	llm.QueueResponse("Paris")

	a := newTestAgent(t, llm)
	events := runToCompletion(t, a, core.Inputs{"question": "capital of France?"})

	testutil.RequireMonotonicSeq(t, events)
	for _, ev := range events {
		if ev.Source != core.AgentSource("tester") {
			t.Fatalf("unexpected source %q", ev.Source)
		}
	}

	if events[0].Type != core.EventStart {
		t.Fatalf("first event = %s, want start", events[0].Type)
	}
	if step, ok := testutil.First(events, core.EventStep); !ok {
		t.Fatal("missing step event")
	} else if n, _ := step.StepNumber(); n != 1 {
		t.Fatalf("step number = %d, want 1", n)
	}

	if streamed := testutil.All(events, core.EventReasoningStream); len(streamed) != len("Paris") {
		t.Fatalf("reasoning_stream count = %d, want %d", len(streamed), len("Paris"))
	}
	if content, ok := testutil.First(events, core.EventContentStream); !ok {
		t.Fatal("missing content_stream event")
	} else if content.Payload["content"] != "Paris" {
		t.Fatalf("content = %v, want Paris", content.Payload["content"])
	}

	final := testutil.RequireTerminal(t, events, core.AgentSource("tester"), core.EventEnd)
	if answer, _ := final.FinalAnswer(); answer != "Paris" {
		t.Fatalf("final answer = %q, want Paris", answer)
	}

	history := a.History()
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3 (system, task, answer)", len(history))
	}
	if history[0].Role != core.RoleSystem || history[1].Role != core.RoleUser || history[2].Role != core.RoleAssistant {
		t.Fatalf("unexpected history roles: %v %v %v", history[0].Role, history[1].Role, history[2].Role)
	}
	if !strings.Contains(history[1].Content, `"question":"capital of France?"`) {
		t.Fatalf("task message missing inputs: %q", history[1].Content)
	}
	if a.Step() != 1 {
		t.Fatalf("step = %d, want 1", a.Step())
	}
	if a.LastAnswer() != "Paris" {
		t.Fatalf("last answer = %q, want Paris", a.LastAnswer())
	}
}

func TestAgentRun_ToolRoundTrip(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueResponse("I will add them.\n" + callBlock("add", `{"a": 2, "b": 3}`))
	llm.QueueResponse("The sum is 5.")

	add := tool.NewFunctionTool("add", "Add two numbers", []core.Parameter{
		{Name: "a", Type: core.TypeNumber, Required: true},
		{Name: "b", Type: core.TypeNumber, Required: true},
	}, func(_ *tool.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	a := newTestAgent(t, llm, func(o *Options) { o.Tools = []tool.Tool{add} })
	events := runToCompletion(t, a, core.Inputs{"task": "2+3"})

	decision, ok := testutil.First(events, core.EventDecision)
	if !ok {
		t.Fatal("missing decision event")
	}
	if decision.Payload["tool"] != "add" {
		t.Fatalf("decision tool = %v, want add", decision.Payload["tool"])
	}

	result, ok := testutil.First(events, core.EventToolResult)
	if !ok {
		t.Fatal("missing tool_result event")
	}
	if result.Payload["tool"] != "add" {
		t.Fatalf("tool_result tool = %v, want add", result.Payload["tool"])
	}
	if result.Payload["id"] != decision.Payload["id"] {
		t.Fatal("tool_result id does not correlate with decision id")
	}
	if result.Payload["result"] != "5" {
		t.Fatalf("tool_result result = %v, want 5", result.Payload["result"])
	}
	if _, hasErr := result.Payload["error"]; hasErr {
		t.Fatal("tool_result should not carry an error")
	}

	if llm.CallCount() != 2 {
		t.Fatalf("model calls = %d, want 2", llm.CallCount())
	}
	second, _ := llm.LastRequest()
	if len(second.Messages) != 4 {
		t.Fatalf("second request carried %d messages, want 4 (system, task, decision, result)", len(second.Messages))
	}
	toolMsg := second.Messages[3]
	if toolMsg.Role != core.RoleTool || toolMsg.ToolName != "add" || toolMsg.Content != "5" {
		t.Fatalf("unexpected tool feedback message: %+v", toolMsg)
	}

	final := testutil.RequireTerminal(t, events, core.AgentSource("tester"), core.EventEnd)
	if answer, _ := final.FinalAnswer(); answer != "The sum is 5." {
		t.Fatalf("final answer = %q", answer)
	}
}

func TestAgentRun_ConcurrentFanIn(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueResponse(
		callBlock("slow", `{}`) + callBlock("medium", `{}`) + callBlock("fast", `{}`),
	)
	llm.QueueResponse("done")

	var mu sync.Mutex
	var completionOrder []string
	mkTool := func(name string, delay time.Duration) tool.Tool {
		return tool.NewFunctionTool(name, "test tool", nil, func(_ *tool.Context, _ map[string]any) (any, error) {
			time.Sleep(delay)
			mu.Lock()
			completionOrder = append(completionOrder, name)
			mu.Unlock()
			return name + "-result", nil
		})
	}

	a := newTestAgent(t, llm, func(o *Options) {
		o.Tools = []tool.Tool{
			mkTool("slow", 60*time.Millisecond),
			mkTool("medium", 30*time.Millisecond),
			mkTool("fast", time.Millisecond),
		}
	})
	events := runToCompletion(t, a, core.Inputs{"task": "race"})
	testutil.RequireMonotonicSeq(t, events)

	results := testutil.All(events, core.EventToolResult)
	if len(results) != 3 {
		t.Fatalf("tool_result count = %d, want 3", len(results))
	}

	// All three tools ran concurrently: completion order follows latency,
	// not declaration order.
	mu.Lock()
	order := append([]string(nil), completionOrder...)
	mu.Unlock()
	if len(order) != 3 || order[0] != "fast" || order[2] != "slow" {
		t.Fatalf("completion order = %v, want fast first and slow last", order)
	}

	// The loop resumes reasoning only after every invocation resolved.
	steps := testutil.All(events, core.EventStep)
	if len(steps) != 2 {
		t.Fatalf("step count = %d, want 2", len(steps))
	}
	secondStepIdx := -1
	lastResultIdx := -1
	for i, ev := range events {
		if ev.Type == core.EventStep {
			if n, _ := ev.StepNumber(); n == 2 {
				secondStepIdx = i
			}
		}
		if ev.Type == core.EventToolResult {
			lastResultIdx = i
		}
	}
	if lastResultIdx > secondStepIdx {
		t.Fatalf("tool_result at %d after second step at %d: barrier violated", lastResultIdx, secondStepIdx)
	}

	// History folds results in declaration order regardless of completion.
	history := a.History()
	var folded []string
	for _, msg := range history {
		if msg.Role == core.RoleTool {
			folded = append(folded, msg.ToolName)
		}
	}
	want := []string{"slow", "medium", "fast"}
	for i := range want {
		if folded[i] != want[i] {
			t.Fatalf("folded order = %v, want %v", folded, want)
		}
	}
}

func TestAgentRun_NoMemoization(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueResponse(callBlock("probe", `{"key": "same"}`))
	llm.QueueResponse(callBlock("probe", `{"key": "same"}`))
	llm.QueueResponse("final")

	var calls atomic.Int64
	probe := tool.NewFunctionTool("probe", "counts invocations", []core.Parameter{
		{Name: "key", Type: core.TypeString, Required: true},
	}, func(_ *tool.Context, _ map[string]any) (any, error) {
		return calls.Add(1), nil
	})

	a := newTestAgent(t, llm, func(o *Options) { o.Tools = []tool.Tool{probe} })
	events := runToCompletion(t, a, core.Inputs{})

	if calls.Load() != 2 {
		t.Fatalf("identical invocations executed %d times, want 2", calls.Load())
	}
	results := testutil.All(events, core.EventToolResult)
	if len(results) != 2 {
		t.Fatalf("tool_result count = %d, want 2", len(results))
	}
	if results[0].Payload["result"] == results[1].Payload["result"] {
		t.Fatal("second invocation returned a memoized result")
	}
}

func TestAgentRun_ParseRetryThenSuccess(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueResponse(`<tool_call>{"tool": "broken"`)
	llm.QueueResponse("Recovered answer.")

	a := newTestAgent(t, llm)
	events := runToCompletion(t, a, core.Inputs{})

	if _, ok := testutil.First(events, core.EventError); ok {
		t.Fatal("recovered parse failure must not emit an error event")
	}
	final := testutil.RequireTerminal(t, events, core.AgentSource("tester"), core.EventEnd)
	if answer, _ := final.FinalAnswer(); answer != "Recovered answer." {
		t.Fatalf("final answer = %q", answer)
	}
	if llm.CallCount() != 2 {
		t.Fatalf("model calls = %d, want 2", llm.CallCount())
	}

	second, _ := llm.LastRequest()
	corrective := second.Messages[len(second.Messages)-1]
	if corrective.Role != core.RoleUser || !strings.Contains(corrective.Content, "malformed") {
		t.Fatalf("expected corrective instruction as last message, got %+v", corrective)
	}
}

func TestAgentRun_ParseFailureTwiceFatal(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueResponse(`<tool_call>{"tool": "broken"`)
	llm.QueueResponse(`<tool_call>still broken`)

	a := newTestAgent(t, llm)
	events := runToCompletion(t, a, core.Inputs{})

	final := testutil.RequireTerminal(t, events, core.AgentSource("tester"), core.EventError)
	if final.Payload["kind"] != "parse" {
		t.Fatalf("error kind = %v, want parse", final.Payload["kind"])
	}
	if llm.CallCount() != 2 {
		t.Fatalf("model calls = %d, want 2 (one retry)", llm.CallCount())
	}
}

func TestAgentRun_BackendErrorFatal(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueError(errors.New("rate limited"))

	a := newTestAgent(t, llm)
	events := runToCompletion(t, a, core.Inputs{})

	final := testutil.RequireTerminal(t, events, core.AgentSource("tester"), core.EventError)
	if final.Payload["kind"] != "backend" {
		t.Fatalf("error kind = %v, want backend", final.Payload["kind"])
	}
	if msg, _ := final.ErrorMessage(); !strings.Contains(msg, "rate limited") {
		t.Fatalf("error message = %q, want to contain cause", msg)
	}
	if llm.CallCount() != 1 {
		t.Fatalf("model calls = %d, want 1 (no retry on backend failure)", llm.CallCount())
	}
}

func TestAgentRun_RequestTimeout(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueHang()

	a := newTestAgent(t, llm, func(o *Options) { o.RequestTimeout = 50 * time.Millisecond })

	start := time.Now()
	events := runToCompletion(t, a, core.Inputs{})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("run took %v, timeout did not bound the model call", elapsed)
	}

	final := testutil.RequireTerminal(t, events, core.AgentSource("tester"), core.EventError)
	if final.Payload["kind"] != "backend" {
		t.Fatalf("error kind = %v, want backend", final.Payload["kind"])
	}
}

func TestAgentRun_MaxStepsGuard(t *testing.T) {
	llm := model.NewMockModel("mock")
	for i := 0; i < 3; i++ {
		llm.QueueResponse(callBlock("noop", `{}`))
	}

	noop := tool.NewFunctionTool("noop", "does nothing", nil, func(_ *tool.Context, _ map[string]any) (any, error) {
		return "ok", nil
	})

	a := newTestAgent(t, llm, func(o *Options) {
		o.Tools = []tool.Tool{noop}
		o.MaxSteps = 2
	})
	events := runToCompletion(t, a, core.Inputs{})

	final := testutil.RequireTerminal(t, events, core.AgentSource("tester"), core.EventError)
	if msg, _ := final.ErrorMessage(); !strings.Contains(msg, "maximum") {
		t.Fatalf("error message = %q", msg)
	}
	if llm.CallCount() != 2 {
		t.Fatalf("model calls = %d, want 2", llm.CallCount())
	}
	if len(testutil.All(events, core.EventStep)) != 2 {
		t.Fatal("expected exactly 2 step events before the guard tripped")
	}
}

func TestAgentRun_ResumeContinuesHistory(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueResponse("First answer.")
	llm.QueueResponse("Second answer.")

	a := newTestAgent(t, llm)

	first := runToCompletion(t, a, core.Inputs{"task": "one"})
	if first[0].Type != core.EventStart {
		t.Fatalf("first run opened with %s, want start", first[0].Type)
	}

	second := runToCompletion(t, a, core.Inputs{"task": "two"})
	if second[0].Type != core.EventResume {
		t.Fatalf("second run opened with %s, want resume", second[0].Type)
	}
	if second[0].Payload["step"] != 1 {
		t.Fatalf("resume step = %v, want 1", second[0].Payload["step"])
	}

	// Sequence indices keep counting across runs of the same agent.
	if second[0].Seq <= first[len(first)-1].Seq {
		t.Fatalf("resume seq %d not after previous run's last seq %d", second[0].Seq, first[len(first)-1].Seq)
	}

	req, _ := llm.LastRequest()
	if len(req.Messages) != 4 {
		t.Fatalf("resumed request carried %d messages, want 4 (prior run + new task)", len(req.Messages))
	}
	if a.LastAnswer() != "Second answer." {
		t.Fatalf("last answer = %q", a.LastAnswer())
	}
	if a.Step() != 2 {
		t.Fatalf("step = %d, want 2", a.Step())
	}
}

func TestAgentRun_InputValidation(t *testing.T) {
	llm := model.NewMockModel("mock")
	a := newTestAgent(t, llm, func(o *Options) {
		o.InputParameters = []core.Parameter{
			{Name: "city", Type: core.TypeString, Description: "City to inspect", Required: true},
		}
	})

	if _, err := a.Run(context.Background(), core.Inputs{}); err == nil {
		t.Fatal("Run() should reject missing required input")
	}
	if llm.CallCount() != 0 {
		t.Fatal("validation failure must not reach the model")
	}
}

func TestAgentRun_UnknownCapabilityRecovered(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueResponse(callBlock("missing", `{}`))
	llm.QueueResponse("Worked around it.")

	a := newTestAgent(t, llm)
	events := runToCompletion(t, a, core.Inputs{})

	result, ok := testutil.First(events, core.EventToolResult)
	if !ok {
		t.Fatal("missing tool_result event")
	}
	errText, ok := result.Payload["error"].(string)
	if !ok || !strings.Contains(errText, "unknown capability") {
		t.Fatalf("tool_result error = %v", result.Payload["error"])
	}

	testutil.RequireTerminal(t, events, core.AgentSource("tester"), core.EventEnd)

	var folded *core.Message
	history := a.History()
	for i := range history {
		if history[i].Role == core.RoleTool {
			folded = &history[i]
		}
	}
	if folded == nil || !folded.IsError {
		t.Fatal("recovered failure should fold into history as an error tool message")
	}
}

func TestAgentRun_PanicRecovered(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueResponse(callBlock("explode", `{}`))
	llm.QueueResponse("Survived.")

	explode := tool.NewFunctionTool("explode", "panics", nil, func(_ *tool.Context, _ map[string]any) (any, error) {
		panic("boom")
	})

	a := newTestAgent(t, llm, func(o *Options) { o.Tools = []tool.Tool{explode} })
	events := runToCompletion(t, a, core.Inputs{})

	result, ok := testutil.First(events, core.EventToolResult)
	if !ok {
		t.Fatal("missing tool_result event")
	}
	errText, _ := result.Payload["error"].(string)
	if !strings.Contains(errText, "panic") || !strings.Contains(errText, "boom") {
		t.Fatalf("tool_result error = %q, want panic detail", errText)
	}

	final := testutil.RequireTerminal(t, events, core.AgentSource("tester"), core.EventEnd)
	if answer, _ := final.FinalAnswer(); answer != "Survived." {
		t.Fatalf("final answer = %q", answer)
	}
}

func TestAgentRun_ConsumerCancel(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.QueueHang()

	a := newTestAgent(t, llm)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := a.Run(ctx, core.Inputs{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	time.AfterFunc(20*time.Millisecond, cancel)

	collected := testutil.CollectEvents(t, events, collectTimeout)
	if _, ok := testutil.First(collected, core.EventEnd); ok {
		t.Fatal("cancelled run must not complete successfully")
	}
}
