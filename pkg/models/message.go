package models

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks messages authored by the user (or synthesized on
	// the user's behalf, e.g. aggregated tool results).
	RoleUser Role = "user"

	// RoleAssistant marks messages produced by the LLM.
	RoleAssistant Role = "assistant"

	// RoleSystem marks the processed system prompt.
	RoleSystem Role = "system"

	// RoleTool marks raw tool output messages.
	RoleTool Role = "tool"
)

// Message is a single entry in an agent's conversation history.
//
// Messages flow in chronological order. Tool results re-enter the
// conversation as synthesized user messages so the LLM sees them on
// its next turn.
type Message struct {
	// Role indicates who authored the message.
	Role Role `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// SenderID identifies the originating agent for inter-agent
	// messages. Empty for ordinary user and assistant messages.
	SenderID string `json:"sender_id,omitempty"`

	// SenderName is the human-readable name of the sender for
	// inter-agent messages.
	SenderName string `json:"sender_name,omitempty"`

	// IsError flags assistant messages recorded after a failed LLM
	// stream. Error-flagged messages skip tool-call extraction.
	IsError bool `json:"is_error,omitempty"`

	// Synthesized flags messages the runtime fabricated from tool
	// results rather than received from a caller.
	Synthesized bool `json:"synthesized,omitempty"`

	// Attachments carries context files riding along with the text.
	Attachments []ContextFile `json:"attachments,omitempty"`
}
