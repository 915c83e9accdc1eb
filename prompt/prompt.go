// Package prompt defines the renderer contract between agent loops and
// system prompt construction, plus a text/template implementation with a
// built-in default template.
//
// The loop supplies a fixed variable contract (Data); renderers turn it into
// the system prompt that teaches the model its identity, its capabilities
// and the invocation syntax. Custom renderers can replace the template
// entirely as long as they honor the contract.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/troupe-dev/troupe/core"
)

// ToolSummary is the prompt-facing description of one capability.
type ToolSummary struct {
	Name        string
	Description string
	Parameters  []core.Parameter
}

// Signature renders the capability as a compact call signature, optional
// parameters marked with '?'. Parameter order follows the declared schema.
func (s ToolSummary) Signature() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, p := range s.Parameters {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if !p.Required {
			b.WriteByte('?')
		}
		typ := p.Type
		if typ == "" {
			typ = core.TypeAny
		}
		b.WriteString(": ")
		b.WriteString(typ)
	}
	b.WriteByte(')')
	return b.String()
}

// Data is the fixed variable contract supplied to renderers.
type Data struct {
	// AgentName is the loop's identity.
	AgentName string
	// Description is the loop's role description.
	Description string
	// TargetLanguage is the output language the loop should respond in.
	TargetLanguage string
	// Tools lists the plain capabilities.
	Tools []ToolSummary
	// AgentTools lists the delegated capabilities (team members).
	AgentTools []ToolSummary
	// AllTools is the combined capability list in wiring order.
	AllTools []ToolSummary
	// Context carries arbitrary caller-supplied key/value pairs. Rendering
	// iterates keys in sorted order for determinism.
	Context map[string]any
}

// Renderer turns the variable contract into a system prompt.
type Renderer interface {
	Render(data Data) (string, error)
}

// TaskMessage frames the named inputs of a run as the opening user turn.
func TaskMessage(inputs core.Inputs) string {
	return fmt.Sprintf("Task started. Here are your input parameters:\n%s\nNow, begin your work.", inputs.JSON())
}

// DefaultTemplate is the built-in system prompt. It documents the
// <tool_call> invocation syntax the decision parser understands.
const DefaultTemplate = `You are {{.AgentName}}{{if .Description}}, {{.Description}}{{end}}.
{{- if .AllTools}}

You can use the following capabilities. To invoke one, include a block in your reply formatted exactly like this:

<tool_call>
{"tool": "capability_name", "arguments": {"parameter": "value"}}
</tool_call>

You may include several blocks in one reply; they run concurrently and each result arrives in the next turn. When you have everything you need, reply with the final answer alone, without any <tool_call> block.
{{- if .Tools}}

Capabilities:
{{- range .Tools}}
- {{.Signature}}{{if .Description}}: {{.Description}}{{end}}
{{- end}}
{{- end}}
{{- if .AgentTools}}

Team members you can delegate to:
{{- range .AgentTools}}
- {{.Signature}}{{if .Description}}: {{.Description}}{{end}}
{{- end}}
{{- end}}
{{- else}}

Reply with the final answer directly.
{{- end}}

Respond in {{default "English" .TargetLanguage}}.
{{- range $key, $value := .Context}}
{{$key}}: {{$value}}
{{- end}}
`

// Options configure a TemplateRenderer.
type Options struct {
	// Template overrides DefaultTemplate. It is parsed with the same
	// helper funcs (default, join, upper, lower).
	Template string
}

// TemplateRenderer renders Data through a text/template.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer parses the configured template (DefaultTemplate when
// not overridden) with helper funcs.
func NewTemplateRenderer(optFns ...func(o *Options)) (*TemplateRenderer, error) {
	opts := Options{Template: DefaultTemplate}
	for _, fn := range optFns {
		fn(&opts)
	}
	tmpl, err := template.New("system").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
	}).Parse(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// Render implements Renderer.
func (r *TemplateRenderer) Render(data Data) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return buf.String(), nil
}
