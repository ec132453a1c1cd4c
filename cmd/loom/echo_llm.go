package main

import (
	"context"

	"github.com/loomlabs/loom/internal/agent"
	"github.com/loomlabs/loom/internal/team"
	"github.com/loomlabs/loom/pkg/models"
)

// injectEchoFactory gives every agent node without an LLM source the
// echo factory, recursing into nested sub-teams.
func injectEchoFactory(cfg *team.Config) {
	for i := range cfg.Nodes {
		node := &cfg.Nodes[i]
		if node.Team != nil {
			injectEchoFactory(node.Team)
			continue
		}
		if node.Agent.LLM == nil && node.Agent.LLMFactory == nil {
			node.Agent.LLMFactory = echoFactory{}
		}
	}
}

// echoFactory backs agents that have no real provider wired. The echo
// client repeats the user message, which is enough to exercise the
// runtime end to end without network access.
type echoFactory struct{}

func (echoFactory) Defaults(model string) (agent.LLMSettings, error) {
	return agent.LLMSettings{Model: model, Provider: models.ProviderUnknown}, nil
}

func (echoFactory) Create(settings agent.LLMSettings) (agent.LLMClient, error) {
	return &echoClient{settings: settings}, nil
}

type echoClient struct {
	settings agent.LLMSettings
	prompt   string
}

func (c *echoClient) ConfigureSystemPrompt(prompt string) { c.prompt = prompt }

func (c *echoClient) StreamUserMessage(ctx context.Context, msg models.Message) (<-chan agent.Chunk, error) {
	out := make(chan agent.Chunk, 2)
	out <- agent.Chunk{Content: "Echo: " + msg.Content}
	out <- agent.Chunk{Final: true}
	close(out)
	return out, nil
}

func (c *echoClient) SendUserMessage(ctx context.Context, msg models.Message) (agent.CompleteResponse, error) {
	return agent.CompleteResponse{Content: "Echo: " + msg.Content}, nil
}

func (c *echoClient) Provider() models.Provider { return c.settings.Provider }

func (c *echoClient) ModelName() string { return c.settings.Model }

func (c *echoClient) Cleanup(ctx context.Context) error { return nil }
