package models

import "time"

// AgentEvent is the unit of the external event stream. Subscribers
// receive events by kind; every event carries a payload map plus
// sequencing metadata so consumers can reorder or deduplicate.
type AgentEvent struct {
	// Kind is the event kind string subscribers key on.
	Kind string `json:"kind"`

	// AgentName identifies the emitting agent.
	AgentName string `json:"agent_name"`

	// Sequence is a per-agent monotonic counter.
	Sequence uint64 `json:"sequence"`

	// Time is when the event was emitted.
	Time time.Time `json:"time"`

	// Payload carries kind-specific data.
	Payload map[string]any `json:"payload,omitempty"`
}

// Data event kinds emitted by the external notifier.
const (
	EventKindAssistantChunk          = "agent_data_assistant_chunk"
	EventKindAssistantStreamEnd      = "agent_data_assistant_chunk_stream_end"
	EventKindAssistantComplete       = "agent_data_assistant_complete_response"
	EventKindToolLog                 = "agent_data_tool_log"
	EventKindToolApprovalRequested   = "agent_data_tool_approval_requested"
	EventKindToolApproved            = "agent_tool_approved"
	EventKindToolDenied              = "agent_tool_denied"
	EventKindToolExecutionStarted    = "agent_tool_execution_started"
	EventKindToolExecutionSucceeded  = "agent_tool_execution_succeeded"
	EventKindToolExecutionFailed     = "agent_tool_execution_failed"
	EventKindInterAgentMessage       = "agent_data_inter_agent_message_received"
	EventKindSystemTaskNotification  = "agent_data_system_task_notification_received"
	EventKindTodoListUpdated         = "agent_data_todo_list_updated"
	EventKindErrorOutputGeneration   = "agent_error_output_generation"
	EventKindStatusPrefix            = "agent_status_"
)
