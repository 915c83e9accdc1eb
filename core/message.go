package core

import "encoding/json"

// Role identifies the author of a Message within a conversation history.
type Role string

// Conversation roles understood by model backends.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall records a single capability invocation requested by an assistant
// turn. ID correlates the decision with its later tool result.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is one entry of an agent loop's conversation history. History is
// append-only and mutated exclusively by the owning loop. Tool messages carry
// the invoked capability's name and its stringified result; IsError marks a
// recovered capability failure fed back to the model.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
	IsError   bool       `json:"is_error,omitempty"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message with optional tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage builds a tool-role message carrying an invocation result.
func ToolMessage(toolName, content string) Message {
	return Message{Role: RoleTool, ToolName: toolName, Content: content}
}

// ToolErrorMessage builds a tool-role message carrying a recovered failure.
func ToolErrorMessage(toolName, detail string) Message {
	return Message{Role: RoleTool, ToolName: toolName, Content: detail, IsError: true}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = ToolCall{ID: tc.ID, Name: tc.Name, Arguments: cloneMap(tc.Arguments)}
		}
	}
	return out
}

// CloneMessages returns a deep copy of a history slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Inputs holds the named input parameters of a run.
type Inputs map[string]any

// JSON renders the inputs as a compact JSON object with lexically sorted
// keys. An empty input set renders as "{}".
func (in Inputs) JSON() string {
	if len(in) == 0 {
		return "{}"
	}
	b, err := json.Marshal(map[string]any(in))
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Clone returns a deep copy of the inputs.
func (in Inputs) Clone() Inputs {
	if in == nil {
		return nil
	}
	return Inputs(cloneMap(in))
}

// cloneMap deep-copies nested map/slice values so histories and snapshots
// never share mutable state with their origin.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
