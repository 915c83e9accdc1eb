package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/model"
	"github.com/troupe-dev/troupe/prompt"
	"github.com/troupe-dev/troupe/tool"
)

// retryInstruction is fed back after a malformed decision. The loop grants
// exactly one retry per reasoning cycle before failing the run.
const retryInstruction = "Your previous reply contained a malformed capability invocation. " +
	"Reply again: either emit well-formed <tool_call> blocks or give the final answer without any <tool_call> block."

// run drives the reasoning loop for one invocation. It owns the run lock for
// its whole duration, closes the event channel on the way out, and emits
// exactly one terminal event unless the consumer cancelled the context.
func (a *Agent) run(ctx context.Context, inputs core.Inputs, ch chan<- core.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer close(ch)

	ctx = pushDelegation(ctx, a.name)
	em := core.NewEmitter(core.AgentSource(a.name), &a.seq, ch)

	a.logger.Debug("agent.run.start", "agent", a.name, "history", len(a.history), "step", a.step)

	opening := core.EventStart
	payload := core.Payload{"input": map[string]any(inputs)}
	if len(a.history) > 0 {
		opening = core.EventResume
		payload["step"] = a.step
	}
	if err := em.Emit(ctx, opening, payload); err != nil {
		return
	}

	if len(a.history) == 0 {
		system, err := a.renderer.Render(a.promptData())
		if err != nil {
			a.fail(ctx, em, fmt.Errorf("render system prompt: %w", err))
			return
		}
		a.history = append(a.history, core.SystemMessage(system))
	}
	a.history = append(a.history, core.UserMessage(prompt.TaskMessage(inputs)))

	retried := false
	for {
		if a.step >= a.maxSteps {
			a.fail(ctx, em, fmt.Errorf("exceeded maximum of %d reasoning steps", a.maxSteps))
			return
		}
		a.step++

		if err := em.Emit(ctx, core.EventStep, core.Payload{"step": a.step}); err != nil {
			return
		}

		text, err := a.reason(ctx, em)
		if err != nil {
			a.fail(ctx, em, err)
			return
		}

		calls, perr := ParseDecision(text)
		if perr != nil {
			if retried {
				a.fail(ctx, em, &core.ParseError{Agent: a.name, Detail: perr.Error()})
				return
			}
			retried = true
			a.logger.Warn("agent.decision.malformed", "agent", a.name, "step", a.step, "error", perr.Error())
			a.history = append(a.history, core.AssistantMessage(text), core.UserMessage(retryInstruction))
			continue
		}
		retried = false

		if len(calls) == 0 {
			if err := em.Emit(ctx, core.EventContentStream, core.Payload{"content": text}); err != nil {
				return
			}
			a.history = append(a.history, core.AssistantMessage(text))
			a.lastAnswer = text
			a.logger.Info("agent.run.complete", "agent", a.name, "steps", a.step)
			_ = em.Emit(ctx, core.EventEnd, core.Payload{"final_answer": text, "step": a.step})
			return
		}

		toolCalls := make([]core.ToolCall, len(calls))
		for i, c := range calls {
			toolCalls[i] = core.ToolCall{ID: c.ID, Name: c.Tool, Arguments: c.Arguments}
			if err := em.Emit(ctx, core.EventDecision, core.Payload{"id": c.ID, "tool": c.Tool, "arguments": c.Arguments}); err != nil {
				return
			}
		}
		a.history = append(a.history, core.AssistantMessage(text, toolCalls...))

		results := a.act(ctx, em, calls)
		if ctx.Err() != nil {
			a.fail(ctx, em, ctx.Err())
			return
		}

		// Feed results back in declaration order regardless of completion
		// order, so replays of the history are deterministic.
		for _, r := range results {
			if r.err != nil {
				a.history = append(a.history, core.ToolErrorMessage(r.call.Tool, r.err.Error()))
			} else {
				a.history = append(a.history, core.ToolMessage(r.call.Tool, formatResult(r.result)))
			}
		}
	}
}

// fail emits the terminal error event. Failed runs are not resumable; the
// history keeps whatever was appended before the failure.
func (a *Agent) fail(ctx context.Context, em *core.Emitter, err error) {
	kind := core.ErrorKind(err)
	a.logger.Error("agent.run.failed", "agent", a.name, "kind", kind, "error", err.Error())
	_ = em.Emit(ctx, core.EventError, core.Payload{"error": err.Error(), "kind": kind})
}

// promptData assembles the renderer's variable contract from the agent's
// configuration, splitting capabilities into plain and delegated lists.
func (a *Agent) promptData() prompt.Data {
	data := prompt.Data{
		AgentName:      a.name,
		Description:    a.description,
		TargetLanguage: a.targetLanguage,
		Context:        a.contextData,
	}
	for _, t := range a.tools {
		summary := prompt.ToolSummary{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
		if _, ok := t.(tool.Delegated); ok {
			data.AgentTools = append(data.AgentTools, summary)
		} else {
			data.Tools = append(data.Tools, summary)
		}
		data.AllTools = append(data.AllTools, summary)
	}
	return data
}

// reason performs one model turn, streaming partial output as
// reasoning_stream events, and returns the turn's full text. Model failures
// and per-call timeouts surface as BackendError.
func (a *Agent) reason(ctx context.Context, em *core.Emitter) (string, error) {
	mctx := ctx
	if a.requestTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		defer cancel()
	}

	req := model.Request{Messages: core.CloneMessages(a.history), Stream: true}
	respCh, errCh := a.llm.Generate(mctx, req)

	var partials strings.Builder
	var final string
	gotFinal := false
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				partials.WriteString(resp.Content)
				if err := em.Emit(ctx, core.EventReasoningStream, core.Payload{"content": resp.Content}); err != nil {
					return "", err
				}
				continue
			}
			final = resp.Content
			gotFinal = true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return "", &core.BackendError{Agent: a.name, Err: err}
			}
		}
	}

	if !gotFinal {
		if partials.Len() == 0 {
			return "", &core.BackendError{Agent: a.name, Err: errors.New("model produced no response")}
		}
		final = partials.String()
	}
	return final, nil
}

// actResult pairs a decision with its outcome for history folding.
type actResult struct {
	call   DecisionCall
	result any
	err    error
}

// act executes the turn's capability invocations concurrently, bounded by
// MaxParallelCalls, and blocks until every invocation resolved. tool_result
// events are emitted in completion order; the returned slice keeps
// declaration order.
func (a *Agent) act(ctx context.Context, em *core.Emitter, calls []DecisionCall) []actResult {
	results := make([]actResult, len(calls))

	maxPar := a.maxParallel
	if maxPar > len(calls) {
		maxPar = len(calls)
	}
	sem := make(chan struct{}, maxPar)

	// emitMu keeps this source's sequence assignment and channel delivery
	// atomic across the invocation goroutines.
	var emitMu sync.Mutex
	var wg sync.WaitGroup

	for i := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, c DecisionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			res, err := a.invoke(ctx, em, &emitMu, c)
			results[idx] = actResult{call: c, result: res, err: err}

			a.logger.Info("agent.capability.executed",
				"agent", a.name,
				"tool", c.Tool,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err != nil,
			)

			payload := core.Payload{"id": c.ID, "tool": c.Tool}
			if err != nil {
				payload["error"] = err.Error()
			} else {
				payload["result"] = formatResult(res)
			}
			emitMu.Lock()
			_ = em.Emit(ctx, core.EventToolResult, payload)
			emitMu.Unlock()
		}(i, calls[i])
	}

	wg.Wait()
	return results
}

// invoke runs a single capability with panic containment. Every failure
// comes back as a CapabilityError so the loop can recover by feeding it to
// the model.
func (a *Agent) invoke(ctx context.Context, em *core.Emitter, emitMu *sync.Mutex, c DecisionCall) (result any, err error) {
	t, ok := a.toolIndex[c.Tool]
	if !ok {
		return nil, core.NewCapabilityError(c.Tool, core.CodeNotFound, "unknown capability %q", c.Tool)
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent.capability.panic", "agent", a.name, "tool", c.Tool, "recover", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
			err = core.NewCapabilityError(c.Tool, core.CodePanic, "panic: %v", r)
		}
	}()

	forward := func(fctx context.Context, ev core.Event) error {
		emitMu.Lock()
		defer emitMu.Unlock()
		return em.Forward(fctx, ev)
	}
	tctx := tool.NewContext(ctx, a.name, c.ID, forward, a.logger)

	result, err = t.Call(tctx, c.Arguments)
	if err != nil {
		var ce *core.CapabilityError
		if !errors.As(err, &ce) {
			err = core.NewCapabilityError(c.Tool, core.CodeExecution, "%v", err)
		}
	}
	return result, err
}

// formatResult stringifies a capability result for history and events.
func formatResult(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
