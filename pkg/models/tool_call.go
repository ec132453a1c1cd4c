package models

// ToolCall is a request from the LLM to execute a named tool with
// named arguments. IDs are generated when the model does not supply
// one, so every call is individually addressable through the approval
// protocol.
type ToolCall struct {
	// ID uniquely identifies this invocation. UUID unless the model
	// supplied its own id on the wire.
	ID string `json:"id"`

	// Name is the tool to invoke. A call without a name is invalid.
	Name string `json:"name"`

	// Arguments maps argument names to decoded values.
	Arguments map[string]any `json:"arguments,omitempty"`

	// TurnID groups calls extracted from the same LLM response.
	// Empty when the call is not part of a multi-call turn.
	TurnID string `json:"turn_id,omitempty"`
}

// IsValid reports whether the call can be dispatched.
func (c ToolCall) IsValid() bool {
	return c.Name != ""
}

// ToolResult is the outcome of one tool invocation. Errors are data,
// not control flow: a failed tool produces a result with Error set
// and is fed back to the LLM for self-correction.
type ToolResult struct {
	// ToolName is the name of the executed tool.
	ToolName string `json:"tool_name"`

	// InvocationID matches the originating ToolCall.ID.
	InvocationID string `json:"invocation_id"`

	// Result holds the tool output: plain text, structured data, a
	// ContextFile, or a []ContextFile.
	Result any `json:"result,omitempty"`

	// Error is non-empty when execution failed or was denied.
	Error string `json:"error,omitempty"`

	// Args echoes the invocation arguments for logging.
	Args map[string]any `json:"args,omitempty"`

	// TurnID matches the originating call's turn, if any.
	TurnID string `json:"turn_id,omitempty"`

	// Denied marks results synthesized from a rejected approval.
	Denied bool `json:"denied,omitempty"`
}

// Succeeded reports whether the invocation completed without error.
func (r ToolResult) Succeeded() bool {
	return r.Error == "" && !r.Denied
}

// ContextFiles extracts any file attachments from the result value.
func (r ToolResult) ContextFiles() []ContextFile {
	switch v := r.Result.(type) {
	case ContextFile:
		return []ContextFile{v}
	case *ContextFile:
		if v != nil {
			return []ContextFile{*v}
		}
	case []ContextFile:
		return v
	}
	return nil
}
