package config

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"github.com/troupe-dev/troupe/agent"
	"github.com/troupe-dev/troupe/group"
	"github.com/troupe-dev/troupe/logging"
	"github.com/troupe-dev/troupe/model"
	anthropicmodel "github.com/troupe-dev/troupe/model/anthropic"
	openaimodel "github.com/troupe-dev/troupe/model/openai"
	"github.com/troupe-dev/troupe/prompt"
	"github.com/troupe-dev/troupe/registry"
	"github.com/troupe-dev/troupe/tool"
	"github.com/troupe-dev/troupe/workspace"
)

// BuildOptions configure how a parsed Config becomes live agents and groups.
type BuildOptions struct {
	// Tools is the set of capabilities configuration may reference by name.
	Tools []tool.Tool
	// Renderer overrides the system prompt renderer for every agent.
	Renderer prompt.Renderer
	// Logger receives structured diagnostics from agents and groups.
	Logger logging.Logger
	// ModelFactory turns an endpoint definition into a backend. Defaults to
	// the built-in openai / anthropic factory.
	ModelFactory func(ep Endpoint) (model.Model, error)
}

// Build instantiates every endpoint, agent and group of the configuration
// and returns them in a registry. Each endpoint is constructed exactly once;
// agents sharing an endpoint share the backend instance.
func (c *Config) Build(optFns ...func(o *BuildOptions)) (*registry.Registry, error) {
	opts := BuildOptions{
		ModelFactory: defaultModelFactory,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	toolSet := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		if _, ok := toolSet[t.Name()]; ok {
			return nil, fmt.Errorf("duplicate tool %q in tool set", t.Name())
		}
		toolSet[t.Name()] = t
	}

	models := make(map[string]model.Model, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		m, err := opts.ModelFactory(ep)
		if err != nil {
			return nil, err
		}
		models[ep.Name] = m
	}

	reg := registry.New()

	agents := make(map[string]*agent.Agent, len(c.Agents))
	for _, ac := range c.Agents {
		tools, err := resolveTools(toolSet, ac.Tools)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}
		a, err := agent.New(ac.Name, models[ac.Endpoint], func(o *agent.Options) {
			o.Description = ac.Description
			o.InputParameters = coreParameters(ac.InputParameters)
			o.Tools = tools
			o.Logger = opts.Logger
			if ac.TargetLanguage != "" {
				o.TargetLanguage = ac.TargetLanguage
			}
			if ac.MaxSteps > 0 {
				o.MaxSteps = ac.MaxSteps
			}
			if len(ac.Context) > 0 {
				o.Context = ac.Context
			}
			if opts.Renderer != nil {
				o.Renderer = opts.Renderer
			}
		})
		if err != nil {
			return nil, err
		}
		agents[ac.Name] = a
		if err := reg.AddAgent(a); err != nil {
			return nil, err
		}
	}

	for _, gc := range c.Groups {
		members := make([]*agent.Agent, len(gc.Members))
		for i, name := range gc.Members {
			members[i] = agents[name]
		}

		sharedTools, err := resolveTools(toolSet, gc.SharedTools)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", gc.Name, err)
		}

		var ws *workspace.Workspace
		if gc.Workspace != "" {
			ws, err = workspace.New(gc.Workspace)
			if err != nil {
				return nil, fmt.Errorf("group %s: workspace: %w", gc.Name, err)
			}
		}

		g, err := group.New(gc.Name, members, func(o *group.Options) {
			o.Mode = group.Mode(gc.Mode)
			o.Manager = gc.Manager
			o.Entry = gc.Entry
			o.Optimizer = agents[gc.Optimizer]
			o.SharedTools = sharedTools
			o.Workspace = ws
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, err
		}
		if err := reg.AddGroup(g); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func resolveTools(toolSet map[string]tool.Tool, names []string) ([]tool.Tool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	tools := make([]tool.Tool, len(names))
	for i, name := range names {
		t, ok := toolSet[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		tools[i] = t
	}
	return tools, nil
}

// defaultModelFactory constructs the built-in provider adapters from an
// endpoint definition.
func defaultModelFactory(ep Endpoint) (model.Model, error) {
	apiKey := ""
	if ep.APIKeyEnv != "" {
		apiKey = os.Getenv(ep.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("endpoint %s: environment variable %s is empty", ep.Name, ep.APIKeyEnv)
		}
	}

	switch ep.Provider {
	case "openai":
		var clientOpts []openaioption.RequestOption
		if apiKey != "" {
			clientOpts = append(clientOpts, openaioption.WithAPIKey(apiKey))
		}
		if ep.BaseURL != "" {
			clientOpts = append(clientOpts, openaioption.WithBaseURL(ep.BaseURL))
		}
		client := openai.NewClient(clientOpts...)
		return openaimodel.NewModelFromClient(&client, func(o *openaimodel.Options) {
			if ep.Model != "" {
				o.Model = ep.Model
			}
			if ep.Temperature != nil {
				o.Temperature = *ep.Temperature
			}
			if ep.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(ep.MaxTokens)
			}
		}), nil

	case "anthropic":
		var clientOpts []anthropicoption.RequestOption
		if apiKey != "" {
			clientOpts = append(clientOpts, anthropicoption.WithAPIKey(apiKey))
		}
		if ep.BaseURL != "" {
			clientOpts = append(clientOpts, anthropicoption.WithBaseURL(ep.BaseURL))
		}
		client := anthropic.NewClient(clientOpts...)
		return anthropicmodel.NewModelFromClient(&client, func(o *anthropicmodel.Options) {
			if ep.Model != "" {
				o.Model = anthropic.Model(ep.Model)
			}
			if ep.Temperature != nil {
				o.Temperature = *ep.Temperature
			}
			if ep.MaxTokens > 0 {
				o.MaxTokens = int64(ep.MaxTokens)
			}
		}), nil

	default:
		return nil, fmt.Errorf("endpoint %s: unknown provider %q", ep.Name, ep.Provider)
	}
}
