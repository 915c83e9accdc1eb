package agent

import (
	"strings"
	"testing"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantTools []string
		wantErr   string
	}{
		{
			name:      "plain answer",
			text:      "The capital of France is Paris.",
			wantTools: nil,
		},
		{
			name:      "single call",
			text:      "Let me check.\n<tool_call>\n{\"tool\": \"search\", \"arguments\": {\"query\": \"weather\"}}\n</tool_call>",
			wantTools: []string{"search"},
		},
		{
			name: "multiple calls in text order",
			text: `<tool_call>{"tool": "read_file", "arguments": {"path": "a.txt"}}</tool_call>
some reasoning in between
<tool_call>{"tool": "write_file", "arguments": {"path": "b.txt", "content": "x"}}</tool_call>`,
			wantTools: []string{"read_file", "write_file"},
		},
		{
			name:      "fenced json inside block",
			text:      "<tool_call>\n```json\n{\"tool\": \"search\", \"arguments\": {}}\n```\n</tool_call>",
			wantTools: []string{"search"},
		},
		{
			name:      "missing arguments defaults to empty",
			text:      `<tool_call>{"tool": "ping"}</tool_call>`,
			wantTools: []string{"ping"},
		},
		{
			name:    "unterminated block",
			text:    `<tool_call>{"tool": "search", "arguments": {}}`,
			wantErr: "missing </tool_call>",
		},
		{
			name:    "no json object in block",
			text:    "<tool_call>call the search tool please</tool_call>",
			wantErr: "no JSON object",
		},
		{
			name:    "invalid json",
			text:    `<tool_call>{"tool": "search", "arguments": {</tool_call>`,
			wantErr: "block 1",
		},
		{
			name:    "missing tool field",
			text:    `<tool_call>{"arguments": {"query": "x"}}</tool_call>`,
			wantErr: `missing "tool" field`,
		},
		{
			name:    "second block malformed fails whole turn",
			text:    `<tool_call>{"tool": "a"}</tool_call><tool_call>{"nope": 1}</tool_call>`,
			wantErr: "block 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, err := ParseDecision(tt.text)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseDecision() expected error containing %q, got calls %v", tt.wantErr, calls)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseDecision() error = %q, want contains %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecision() unexpected error: %v", err)
			}
			if len(calls) != len(tt.wantTools) {
				t.Fatalf("ParseDecision() returned %d calls, want %d", len(calls), len(tt.wantTools))
			}
			for i, want := range tt.wantTools {
				if calls[i].Tool != want {
					t.Errorf("call %d tool = %q, want %q", i, calls[i].Tool, want)
				}
				if calls[i].ID == "" {
					t.Errorf("call %d missing id", i)
				}
				if calls[i].Arguments == nil {
					t.Errorf("call %d arguments should never be nil", i)
				}
			}
		})
	}
}

func TestParseDecisionArguments(t *testing.T) {
	calls, err := ParseDecision(`<tool_call>{"tool": "add", "arguments": {"a": 2, "b": 3}}</tool_call>`)
	if err != nil {
		t.Fatalf("ParseDecision() error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if got := calls[0].Arguments["a"]; got != float64(2) {
		t.Errorf("argument a = %v (%T), want 2", got, got)
	}
	if got := calls[0].Arguments["b"]; got != float64(3) {
		t.Errorf("argument b = %v (%T), want 3", got, got)
	}
}
