package agent

import (
	"context"

	"github.com/loomlabs/loom/pkg/models"
)

// Chunk is one unit of a streamed LLM response. The worker drains
// chunks until the channel closes or Final is set.
type Chunk struct {
	// Content is the partial response text.
	Content string

	// Final marks the terminal sentinel chunk.
	Final bool

	// Err aborts the stream when non-nil.
	Err error
}

// CompleteResponse is a non-streamed LLM reply.
type CompleteResponse struct {
	Content string
}

// LLMClient is the narrow contract the runtime consumes. Concrete
// provider clients live outside the core.
//
// Implementations must be safe for concurrent use; the runtime calls
// them only from the owning agent's worker goroutine, but a client
// may be shared across agents.
type LLMClient interface {
	// ConfigureSystemPrompt installs the processed system prompt.
	ConfigureSystemPrompt(prompt string)

	// StreamUserMessage streams the response to msg chunk by chunk.
	// The returned channel is closed after the final chunk.
	StreamUserMessage(ctx context.Context, msg models.Message) (<-chan Chunk, error)

	// SendUserMessage returns the complete response in one call.
	SendUserMessage(ctx context.Context, msg models.Message) (CompleteResponse, error)

	// Provider identifies the provider family for tool-call format
	// selection.
	Provider() models.Provider

	// ModelName returns the configured model identifier.
	ModelName() string

	// Cleanup releases client resources during shutdown.
	Cleanup(ctx context.Context) error
}

// LLMSettings is the finalized LLM configuration produced by the
// bootstrap sequence. Layering order: model defaults, then custom
// overrides, then the processed system prompt.
type LLMSettings struct {
	Model         string          `json:"model" yaml:"model"`
	Provider      models.Provider `json:"provider" yaml:"provider"`
	SystemMessage string          `json:"system_message" yaml:"system_message"`
	Custom        map[string]any  `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// LLMFactory resolves model names into settings and clients. The
// bootstrap sequence uses Defaults during config finalization (an
// unknown model fails the step) and Create during instance creation.
type LLMFactory interface {
	// Defaults returns the baseline settings for a model name. An
	// unrecognized model returns an error naming the model.
	Defaults(model string) (LLMSettings, error)

	// Create builds a client from finalized settings.
	Create(settings LLMSettings) (LLMClient, error)
}
