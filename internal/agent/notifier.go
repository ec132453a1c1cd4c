package agent

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loomlabs/loom/pkg/models"
)

// Subscriber receives external events. Subscribers must not block;
// panics are recovered and logged so one bad subscriber cannot take
// down the worker.
type Subscriber func(models.AgentEvent)

// Notifier is the publish-only fan-out for phase changes and data
// events. All methods are non-blocking and never return errors;
// emission failures are a subscriber's problem, logged and dropped.
type Notifier struct {
	agentName string
	logger    *slog.Logger
	sequence  atomic.Uint64

	mu     sync.RWMutex
	byKind map[string][]Subscriber
	all    []Subscriber
}

// NewNotifier creates a notifier for one agent.
func NewNotifier(agentName string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		agentName: agentName,
		logger:    logger,
		byKind:    make(map[string][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event kind.
func (n *Notifier) Subscribe(kind string, fn Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.byKind[kind] = append(n.byKind[kind], fn)
}

// SubscribeAll registers a subscriber for every event.
func (n *Notifier) SubscribeAll(fn Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, fn)
}

func (n *Notifier) emit(kind string, payload map[string]any) {
	event := models.AgentEvent{
		Kind:      kind,
		AgentName: n.agentName,
		Sequence:  n.sequence.Add(1),
		Time:      time.Now(),
		Payload:   payload,
	}

	n.mu.RLock()
	subscribers := append([]Subscriber(nil), n.byKind[kind]...)
	subscribers = append(subscribers, n.all...)
	n.mu.RUnlock()

	for _, fn := range subscribers {
		n.dispatch(fn, event)
	}
}

func (n *Notifier) dispatch(fn Subscriber, event models.AgentEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("notifier subscriber panicked",
				"kind", event.Kind, "panic", r)
		}
	}()
	fn(event)
}

// PhaseChanged emits the status event for a completed transition.
func (n *Notifier) PhaseChanged(from, to Phase, data map[string]any) {
	payload := map[string]any{
		"old_phase": from.String(),
		"new_phase": to.String(),
	}
	for k, v := range data {
		payload[k] = v
	}
	n.emit(to.StatusEventKind(), payload)
}

// AssistantChunk emits one streamed response fragment.
func (n *Notifier) AssistantChunk(content string) {
	n.emit(models.EventKindAssistantChunk, map[string]any{"content": content})
}

// AssistantStreamEnd marks the end of a streamed response.
func (n *Notifier) AssistantStreamEnd() {
	n.emit(models.EventKindAssistantStreamEnd, nil)
}

// AssistantComplete emits the final response text.
func (n *Notifier) AssistantComplete(content string) {
	n.emit(models.EventKindAssistantComplete, map[string]any{"content": content})
}

// ToolLog emits a tool diagnostic line.
func (n *Notifier) ToolLog(message string) {
	n.emit(models.EventKindToolLog, map[string]any{"message": message})
}

// ToolApprovalRequested emits the approval gate opening for one
// invocation.
func (n *Notifier) ToolApprovalRequested(inv models.ToolCall) {
	n.emit(models.EventKindToolApprovalRequested, map[string]any{
		"invocation_id": inv.ID,
		"tool_name":     inv.Name,
		"arguments":     inv.Arguments,
	})
}

// ToolApproved emits a positive approval verdict.
func (n *Notifier) ToolApproved(invocationID, toolName string) {
	n.emit(models.EventKindToolApproved, map[string]any{
		"invocation_id": invocationID,
		"tool_name":     toolName,
	})
}

// ToolDenied emits a negative approval verdict.
func (n *Notifier) ToolDenied(invocationID, toolName, reason string) {
	n.emit(models.EventKindToolDenied, map[string]any{
		"invocation_id": invocationID,
		"tool_name":     toolName,
		"reason":        reason,
	})
}

// ToolExecutionStarted emits the start of one tool execution.
func (n *Notifier) ToolExecutionStarted(toolName, invocationID string) {
	n.emit(models.EventKindToolExecutionStarted, map[string]any{
		"tool_name":     toolName,
		"invocation_id": invocationID,
	})
}

// ToolExecutionSucceeded emits a successful tool outcome.
func (n *Notifier) ToolExecutionSucceeded(toolName, invocationID string, result any) {
	n.emit(models.EventKindToolExecutionSucceeded, map[string]any{
		"tool_name":     toolName,
		"invocation_id": invocationID,
		"result":        result,
	})
}

// ToolExecutionFailed emits a failed or denied tool outcome.
func (n *Notifier) ToolExecutionFailed(toolName, invocationID, errMsg string) {
	n.emit(models.EventKindToolExecutionFailed, map[string]any{
		"tool_name":     toolName,
		"invocation_id": invocationID,
		"error":         errMsg,
	})
}

// TodoListUpdated emits a task/todo list change.
func (n *Notifier) TodoListUpdated(payload map[string]any) {
	n.emit(models.EventKindTodoListUpdated, payload)
}

// InterAgentMessageReceived emits an inbound agent-to-agent message.
func (n *Notifier) InterAgentMessageReceived(senderID, senderName, content string) {
	n.emit(models.EventKindInterAgentMessage, map[string]any{
		"sender_id":   senderID,
		"sender_name": senderName,
		"content":     content,
	})
}

// SystemTaskNotification emits a task-board assignment notification.
func (n *Notifier) SystemTaskNotification(payload map[string]any) {
	n.emit(models.EventKindSystemTaskNotification, payload)
}

// ErrorOutputGeneration emits an output-generation failure.
func (n *Notifier) ErrorOutputGeneration(message, details string) {
	n.emit(models.EventKindErrorOutputGeneration, map[string]any{
		"error_message": message,
		"error_details": details,
	})
}
