package agent

import "github.com/loomlabs/loom/pkg/models"

// EventType is the monotonic tag carried by every input event. The
// dispatcher switches exhaustively on it.
type EventType int

const (
	EventTypeBootstrapAgent EventType = iota + 1
	EventTypeAgentReady
	EventTypeAgentStopped
	EventTypeAgentError
	EventTypeUserMessageReceived
	EventTypeInterAgentMessageReceived
	EventTypeLLMUserMessageReady
	EventTypeLLMCompleteResponseReceived
	EventTypePendingToolInvocation
	EventTypeApprovedToolInvocation
	EventTypeExecuteToolInvocation
	EventTypeToolExecutionApproval
	EventTypeToolResult
	EventTypeGeneric
)

var eventTypeNames = map[EventType]string{
	EventTypeBootstrapAgent:              "bootstrap_agent",
	EventTypeAgentReady:                  "agent_ready",
	EventTypeAgentStopped:                "agent_stopped",
	EventTypeAgentError:                  "agent_error",
	EventTypeUserMessageReceived:         "user_message_received",
	EventTypeInterAgentMessageReceived:   "inter_agent_message_received",
	EventTypeLLMUserMessageReady:         "llm_user_message_ready",
	EventTypeLLMCompleteResponseReceived: "llm_complete_response_received",
	EventTypePendingToolInvocation:       "pending_tool_invocation",
	EventTypeApprovedToolInvocation:      "approved_tool_invocation",
	EventTypeExecuteToolInvocation:       "execute_tool_invocation",
	EventTypeToolExecutionApproval:       "tool_execution_approval",
	EventTypeToolResult:                  "tool_result",
	EventTypeGeneric:                     "generic",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsControl reports whether the event type belongs to the internal
// system queue (lifecycle control events that must not be starved).
func (t EventType) IsControl() bool {
	switch t {
	case EventTypeBootstrapAgent, EventTypeAgentReady, EventTypeAgentStopped, EventTypeAgentError:
		return true
	}
	return false
}

// Event is the sum type of everything the worker loop consumes.
type Event interface {
	EventType() EventType
}

// BootstrapAgent requests the bootstrap sequence. Enqueued once at
// startup.
type BootstrapAgent struct{}

func (BootstrapAgent) EventType() EventType { return EventTypeBootstrapAgent }

// AgentReady signals bootstrap completion. The dispatcher's
// post-handler hint promotes the phase to idle.
type AgentReady struct{}

func (AgentReady) EventType() EventType { return EventTypeAgentReady }

// AgentStopped requests cooperative shutdown.
type AgentStopped struct{}

func (AgentStopped) EventType() EventType { return EventTypeAgentStopped }

// AgentError records a runtime error for logging and external
// surfacing. It does not itself change phase; the component that
// enqueued it already transitioned.
type AgentError struct {
	Message string
	Details string
}

func (AgentError) EventType() EventType { return EventTypeAgentError }

// UserMessageReceived carries an inbound user message, either posted
// by a caller or synthesized from tool results.
type UserMessageReceived struct {
	Message models.Message
}

func (UserMessageReceived) EventType() EventType { return EventTypeUserMessageReceived }

// InterAgentMessageReceived carries a message from another agent.
type InterAgentMessageReceived struct {
	SenderID   string
	SenderName string
	Content    string
}

func (InterAgentMessageReceived) EventType() EventType { return EventTypeInterAgentMessageReceived }

// LLMUserMessageReady carries the fully composed user message to be
// streamed to the LLM.
type LLMUserMessageReady struct {
	Message models.Message
}

func (LLMUserMessageReady) EventType() EventType { return EventTypeLLMUserMessageReady }

// LLMCompleteResponseReceived carries the accumulated LLM response
// after the stream ends.
type LLMCompleteResponseReceived struct {
	Response string
	IsError  bool
}

func (LLMCompleteResponseReceived) EventType() EventType { return EventTypeLLMCompleteResponseReceived }

// PendingToolInvocation is a tool call extracted from an LLM response
// that has not yet passed the approval gate.
type PendingToolInvocation struct {
	Invocation models.ToolCall
}

func (PendingToolInvocation) EventType() EventType { return EventTypePendingToolInvocation }

// ApprovedToolInvocation is a tool call that cleared the approval
// gate and awaits execution scheduling.
type ApprovedToolInvocation struct {
	Invocation models.ToolCall
}

func (ApprovedToolInvocation) EventType() EventType { return EventTypeApprovedToolInvocation }

// ExecuteToolInvocation schedules actual tool execution.
type ExecuteToolInvocation struct {
	Invocation models.ToolCall
}

func (ExecuteToolInvocation) EventType() EventType { return EventTypeExecuteToolInvocation }

// ToolExecutionApproval is a caller's verdict on a pending
// invocation.
type ToolExecutionApproval struct {
	InvocationID string
	Approved     bool
	Reason       string
}

func (ToolExecutionApproval) EventType() EventType { return EventTypeToolExecutionApproval }

// ToolResultEvent carries one tool invocation outcome back into the
// loop.
type ToolResultEvent struct {
	Result models.ToolResult
}

func (ToolResultEvent) EventType() EventType { return EventTypeToolResult }

// GenericEvent carries arbitrary payloads for extensions.
type GenericEvent struct {
	Name    string
	Payload map[string]any
}

func (GenericEvent) EventType() EventType { return EventTypeGeneric }
