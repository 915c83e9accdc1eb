package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/internal/util"
	"github.com/troupe-dev/troupe/logging"
	"github.com/troupe-dev/troupe/model"
	"github.com/troupe-dev/troupe/prompt"
	"github.com/troupe-dev/troupe/tool"
)

// Defaults applied by New when not overridden via Options.
const (
	// DefaultMaxSteps bounds the number of reasoning cycles per run.
	DefaultMaxSteps = 25
	// DefaultEventBuffer is the capacity of the event stream channel.
	DefaultEventBuffer = 64
	// DefaultMaxParallelCalls caps concurrent capability invocations of a
	// single turn.
	DefaultMaxParallelCalls = 8
)

// Options configures an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	// Description states the agent's role. It feeds the system prompt and
	// the delegated-capability description when the agent is used as a tool.
	Description string
	// Renderer produces the system prompt. Defaults to the built-in
	// template renderer.
	Renderer prompt.Renderer
	// InputParameters declares the named inputs a run accepts, in order.
	// When declared, Run validates inputs against them before starting.
	InputParameters []core.Parameter
	// Tools are the agent's capabilities in wiring order.
	Tools []tool.Tool
	// TargetLanguage is the output language requested in the system prompt.
	TargetLanguage string
	// Context carries arbitrary key/value pairs rendered into the system
	// prompt.
	Context map[string]any
	// MaxSteps bounds the reasoning cycles per run. Exceeding it fails the
	// run.
	MaxSteps int
	// RequestTimeout bounds each individual model call. Zero means no
	// per-call deadline beyond the run context.
	RequestTimeout time.Duration
	// EventBuffer sets the event channel capacity.
	EventBuffer int
	// MaxParallelCalls caps concurrent capability invocations per turn.
	MaxParallelCalls int
	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// Agent is a conversational reasoning loop around a language model. It owns
// an append-only message history, a set of capabilities, and emits a typed
// event stream per run.
//
// An Agent is not re-entrant: concurrent Run calls serialize on an internal
// lock, each continuing the history the previous run left behind. Use
// Snapshot/Restore to move that history across processes.
type Agent struct {
	name           string
	description    string
	llm            model.Model
	renderer       prompt.Renderer
	inputParams    []core.Parameter
	tools          []tool.Tool
	toolIndex      map[string]tool.Tool
	targetLanguage string
	contextData    map[string]any
	maxSteps       int
	requestTimeout time.Duration
	eventBuffer    int
	maxParallel    int
	logger         logging.Logger

	// seq numbers this agent's events for its whole lifetime, so repeated
	// runs keep a single monotonic order.
	seq atomic.Uint64

	mu         sync.Mutex // serializes runs and guards the fields below
	history    []core.Message
	step       int
	lastAnswer string
}

// New constructs an Agent with sensible defaults.
//
// Parameters:
//   - name: identity used in event sources, prompts and delegation
//   - llm: language model backend for reasoning turns
//
// Returns an error when the name is empty, the model is nil, or two
// capabilities share a name.
func New(name string, llm model.Model, optFns ...func(o *Options)) (*Agent, error) {
	if name == "" {
		return nil, errors.New("agent name must not be empty")
	}
	if llm == nil {
		return nil, fmt.Errorf("agent %s: model must not be nil", name)
	}

	opts := Options{
		Description:      fmt.Sprintf("Agent %s", name),
		MaxSteps:         DefaultMaxSteps,
		EventBuffer:      DefaultEventBuffer,
		MaxParallelCalls: DefaultMaxParallelCalls,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Renderer == nil {
		r, err := prompt.NewTemplateRenderer()
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		opts.Renderer = r
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.MaxParallelCalls <= 0 {
		opts.MaxParallelCalls = DefaultMaxParallelCalls
	}

	a := &Agent{
		name:           name,
		description:    opts.Description,
		llm:            llm,
		renderer:       opts.Renderer,
		inputParams:    append([]core.Parameter(nil), opts.InputParameters...),
		toolIndex:      make(map[string]tool.Tool),
		targetLanguage: opts.TargetLanguage,
		contextData:    opts.Context,
		maxSteps:       opts.MaxSteps,
		requestTimeout: opts.RequestTimeout,
		eventBuffer:    opts.EventBuffer,
		maxParallel:    opts.MaxParallelCalls,
		logger:         logging.OrNoOp(opts.Logger),
	}

	if err := a.ExtendTools(opts.Tools...); err != nil {
		return nil, err
	}

	return a, nil
}

// Name returns the agent's identity.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's role description.
func (a *Agent) Description() string { return a.description }

// Model returns the configured language model backend.
func (a *Agent) Model() model.Model { return a.llm }

// InputParameters returns a copy of the declared run inputs.
func (a *Agent) InputParameters() []core.Parameter {
	return append([]core.Parameter(nil), a.inputParams...)
}

// Tools returns a copy of the capability set in wiring order.
func (a *Agent) Tools() []tool.Tool {
	return append([]tool.Tool(nil), a.tools...)
}

// HasTool reports whether a capability with the given name is wired.
func (a *Agent) HasTool(name string) bool {
	_, ok := a.toolIndex[name]
	return ok
}

// ExtendTools appends capabilities to the agent's set. Names must be unique
// across the whole set; a collision leaves the set unchanged.
func (a *Agent) ExtendTools(tools ...tool.Tool) error {
	for _, t := range tools {
		if t == nil {
			return fmt.Errorf("agent %s: nil tool", a.name)
		}
		if _, exists := a.toolIndex[t.Name()]; exists {
			return fmt.Errorf("agent %s: duplicate tool name %q", a.name, t.Name())
		}
	}
	for _, t := range tools {
		a.tools = append(a.tools, t)
		a.toolIndex[t.Name()] = t
	}
	return nil
}

// History returns a deep copy of the conversation history.
func (a *Agent) History() []core.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return core.CloneMessages(a.history)
}

// Step returns the completed reasoning cycle count.
func (a *Agent) Step() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.step
}

// LastAnswer returns the final answer of the most recent successful run, or
// the empty string when none completed yet.
func (a *Agent) LastAnswer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAnswer
}

// Snapshot captures the agent's conversational state for persistence. The
// returned state shares no mutable memory with the agent.
func (a *Agent) Snapshot() core.MemberState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return core.MemberState{
		Name:       a.name,
		Step:       a.step,
		Messages:   core.CloneMessages(a.history),
		LastAnswer: a.lastAnswer,
	}
}

// Restore replaces the agent's conversational state from a snapshot taken
// for the same agent name. The next Run continues the restored history and
// opens with a resume event.
func (a *Agent) Restore(state core.MemberState) error {
	if state.Name != a.name {
		return &core.StateMismatchError{Field: "member", Got: state.Name, Want: a.name}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = core.CloneMessages(state.Messages)
	a.step = state.Step
	a.lastAnswer = state.LastAnswer
	return nil
}

// Reset clears the conversational state. The event sequence counter keeps
// counting so event ordering stays monotonic across resets.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.step = 0
	a.lastAnswer = ""
}

// Run starts one reasoning run over the given named inputs and returns its
// event stream. The stream is lazy: the loop advances only as fast as the
// caller consumes events, and the channel closes after the terminal end or
// error event.
//
// When InputParameters are declared, inputs are validated first and a
// validation failure is returned synchronously without emitting events. A
// run on an agent with existing history opens with resume instead of start
// and continues that history.
func (a *Agent) Run(ctx context.Context, inputs core.Inputs) (<-chan core.Event, error) {
	if len(a.inputParams) > 0 {
		if err := util.ValidateArguments(a.inputParams, inputs); err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.name, err)
		}
	}

	ch := make(chan core.Event, a.eventBuffer)
	go a.run(ctx, inputs.Clone(), ch)
	return ch, nil
}
