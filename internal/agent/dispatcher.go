package agent

import (
	"context"
	"fmt"
)

// Dispatcher routes dequeued events to their handlers. It applies
// phase hints before and after each handler and converts handler
// errors into the error phase plus an AgentError on the internal
// queue; the worker loop itself never sees a handler error.
type Dispatcher struct {
	tc *Context
}

// NewDispatcher creates a dispatcher bound to one agent context.
func NewDispatcher(tc *Context) *Dispatcher {
	return &Dispatcher{tc: tc}
}

// Dispatch handles one event. It never returns an error; failures are
// absorbed into the agent's error phase so the loop keeps running.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, from QueueName) {
	tc := d.tc
	if tc.Metrics != nil {
		tc.Metrics.EventsDispatched.WithLabelValues(ev.EventType().String(), string(from)).Inc()
	}

	d.preHint(ctx, ev)

	if err := d.handle(ctx, ev); err != nil {
		if tc.Metrics != nil {
			tc.Metrics.HandlerErrors.WithLabelValues(ev.EventType().String()).Inc()
		}
		message := fmt.Sprintf("handler for %s failed", ev.EventType().String())
		tc.Logger.Error("event handler failed",
			"event_type", ev.EventType().String(), "error", err)
		tc.Phases.NotifyErrorOccurred(ctx, message, err.Error())
		_ = tc.State.Queues.EnqueueInternal(AgentError{Message: message, Details: err.Error()})
		return
	}

	d.postHint(ctx, ev)
}

func (d *Dispatcher) preHint(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case UserMessageReceived:
		d.tc.Phases.NotifyProcessingUserInput(ctx)
	case LLMCompleteResponseReceived:
		d.tc.Phases.NotifyAnalyzingLLMResponse(ctx)
	case PendingToolInvocation:
		// Invalid invocations are dropped by the handler without
		// populating the pending table; entering the approval phase for
		// one would strand the agent there.
		if !d.tc.Config.AutoExecuteTools && e.Invocation.IsValid() {
			d.tc.Phases.NotifyAwaitingToolApproval(ctx, map[string]any{
				"invocation_id": e.Invocation.ID,
				"tool_name":     e.Invocation.Name,
			})
		}
	case ExecuteToolInvocation:
		d.tc.Phases.NotifyExecutingTool(ctx)
	case ToolResultEvent:
		d.tc.Phases.NotifyProcessingToolResult(ctx)
	}
}

func (d *Dispatcher) postHint(ctx context.Context, ev Event) {
	if ev.EventType() == EventTypeAgentReady {
		d.tc.Phases.NotifyInitializationComplete(ctx)
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case AgentReady:
		d.tc.Logger.Info("agent ready")
		return nil
	case AgentError:
		d.tc.Logger.Error("agent error event", "message", e.Message, "details", e.Details)
		return nil
	case UserMessageReceived:
		return d.handleUserMessage(ctx, e)
	case InterAgentMessageReceived:
		return d.handleInterAgentMessage(ctx, e)
	case LLMUserMessageReady:
		return d.handleLLMUserMessage(ctx, e)
	case LLMCompleteResponseReceived:
		return d.handleLLMCompleteResponse(ctx, e)
	case PendingToolInvocation:
		return d.handlePendingToolInvocation(ctx, e)
	case ApprovedToolInvocation:
		return d.tc.State.Queues.EnqueueToolInvocationRequest(ExecuteToolInvocation{Invocation: e.Invocation})
	case ExecuteToolInvocation:
		return d.handleExecuteToolInvocation(ctx, e)
	case ToolExecutionApproval:
		return d.handleToolExecutionApproval(ctx, e)
	case ToolResultEvent:
		return d.handleToolResult(ctx, e)
	case GenericEvent:
		d.tc.Logger.Debug("generic event", "name", e.Name)
		return nil
	default:
		d.tc.Logger.Warn("no handler for event", "event_type", ev.EventType().String())
		return nil
	}
}
