package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/internal/util"
)

// Tag pair delimiting capability invocations inside a model turn.
const (
	openTag  = "<tool_call>"
	closeTag = "</tool_call>"
)

// DecisionCall is one parsed capability invocation request. ID is assigned
// at parse time and correlates the decision event with its tool result.
type DecisionCall struct {
	ID        string
	Tool      string
	Arguments map[string]any
}

// ParseDecision scans a model turn for <tool_call> blocks, each wrapping a
// JSON object of the form {"tool": "...", "arguments": {...}}. Blocks are
// returned in text order. A turn without blocks parses as a final answer
// (nil, nil); any malformed block fails the whole turn so the loop can
// retry it.
func ParseDecision(text string) ([]DecisionCall, error) {
	var calls []DecisionCall
	rest := text
	for {
		start := strings.Index(rest, openTag)
		if start < 0 {
			break
		}
		rest = rest[start+len(openTag):]
		end := strings.Index(rest, closeTag)
		if end < 0 {
			return nil, fmt.Errorf("block %d: missing %s", len(calls)+1, closeTag)
		}
		body := rest[:end]
		rest = rest[end+len(closeTag):]

		raw, err := util.ExtractJSONObject(body)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", len(calls)+1, err)
		}

		var decoded struct {
			Tool      string         `json:"tool"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("block %d: %w", len(calls)+1, err)
		}
		if decoded.Tool == "" {
			return nil, fmt.Errorf("block %d: missing %q field", len(calls)+1, "tool")
		}
		if decoded.Arguments == nil {
			decoded.Arguments = map[string]any{}
		}

		calls = append(calls, DecisionCall{
			ID:        core.NewID(),
			Tool:      decoded.Tool,
			Arguments: decoded.Arguments,
		})
	}
	return calls, nil
}
