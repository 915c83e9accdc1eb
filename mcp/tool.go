package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/tool"
)

// Tools discovers the server's tools and adapts each one into a capability
// backed by this client. The adapters stay valid until the client closes.
func (c *Client) Tools(ctx context.Context) ([]tool.Tool, error) {
	infos, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tool.Tool, len(infos))
	for i, info := range infos {
		out[i] = &remoteTool{
			client:      c,
			name:        info.Name,
			description: info.Description,
			params:      parseParameters(info.InputSchema),
		}
	}
	return out, nil
}

// CallTool invokes one remote tool and returns its textual result. An
// isError result or a server-side failure becomes a CapabilityError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	result, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", core.NewCapabilityError(name, core.CodeExecution, "%v", err)
	}

	var call struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &call); err != nil {
		return "", core.NewCapabilityError(name, core.CodeExecution, "parse tool result: %v", err)
	}

	var parts []string
	for _, block := range call.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if len(parts) == 0 {
		text = string(result)
	}

	if call.IsError {
		return "", core.NewCapabilityError(name, core.CodeExecution, "%s", text)
	}
	return text, nil
}

// remoteTool adapts one server tool to the capability interface. Argument
// schema validation stays with the server, which owns the schema.
type remoteTool struct {
	client      *Client
	name        string
	description string
	params      []core.Parameter
}

func (t *remoteTool) Name() string        { return t.name }
func (t *remoteTool) Description() string { return t.description }

func (t *remoteTool) Parameters() []core.Parameter {
	return append([]core.Parameter(nil), t.params...)
}

func (t *remoteTool) Call(toolCtx *tool.Context, args map[string]any) (any, error) {
	toolCtx.Logger().Debug("mcp.tool.call", "tool", t.name, "server", t.client.ServerName())
	return t.client.CallTool(toolCtx.Context(), t.name, args)
}

// parseParameters flattens a JSON schema's properties into the ordered
// parameter list prompts render from. Properties sort by name so the
// rendered signature is stable across runs; a property without a type stays
// untyped rather than guessing.
func parseParameters(schema json.RawMessage) []core.Parameter {
	if len(schema) == 0 {
		return nil
	}
	var parsed struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return nil
	}

	required := make(map[string]bool, len(parsed.Required))
	for _, name := range parsed.Required {
		required[name] = true
	}

	names := make([]string, 0, len(parsed.Properties))
	for name := range parsed.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]core.Parameter, 0, len(names))
	for _, name := range names {
		prop := parsed.Properties[name]
		params = append(params, core.Parameter{
			Name:        name,
			Type:        prop.Type,
			Description: prop.Description,
			Required:    required[name],
		})
	}
	return params
}
