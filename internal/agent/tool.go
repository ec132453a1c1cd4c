package agent

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the contract for executable agent tools. Concrete tools
// (file IO, browsers, fetchers) are external collaborators.
type Tool interface {
	// Name returns the tool name used in LLM function calling.
	Name() string

	// Description explains what the tool does, for prompt injection.
	Description() string

	// ArgumentSchema returns the JSON Schema of the tool's arguments.
	ArgumentSchema() json.RawMessage

	// Execute runs the tool. Arguments match ArgumentSchema. The
	// result may be plain text, structured data, a
	// models.ContextFile, or a []models.ContextFile.
	Execute(ctx context.Context, tc *Context, args map[string]any) (any, error)
}

// ToolOptions holds per-tool execution overrides. The runtime imposes
// no default timeout; tools own their own unless overridden here.
type ToolOptions struct {
	// Timeout bounds a single execution when > 0.
	Timeout time.Duration
}
