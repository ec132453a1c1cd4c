package agent

import (
	"context"

	"github.com/loomlabs/loom/pkg/models"
)

// Processor is the base contract shared by all pluggable transforms.
// Processors of one family run in ascending Order; ties run in
// registration order.
type Processor interface {
	Name() string
	Order() int
}

// PromptProcessor transforms the system prompt during bootstrap. Any
// processor error fails the SystemPromptProcessing step.
type PromptProcessor interface {
	Processor
	ProcessPrompt(ctx context.Context, prompt string, tc *Context) (string, error)
}

// ResponseProcessor inspects a complete LLM response. The first
// processor that returns handled=true stops the chain; tool-usage
// processors enqueue PendingToolInvocation events as a side effect.
type ResponseProcessor interface {
	Processor
	ProcessResponse(ctx context.Context, response string, tc *Context, trigger LLMCompleteResponseReceived) (handled bool, err error)
}

// InvocationPreprocessor may rewrite a tool invocation before
// execution (argument normalization, path rebasing).
type InvocationPreprocessor interface {
	Processor
	ProcessInvocation(ctx context.Context, inv models.ToolCall, tc *Context) (models.ToolCall, error)
}

// ResultProcessor may transform a tool result before it is surfaced
// and aggregated.
type ResultProcessor interface {
	Processor
	ProcessResult(ctx context.Context, res models.ToolResult, tc *Context) (models.ToolResult, error)
}

// LifecycleEvent names the hook points lifecycle processors bind to.
type LifecycleEvent string

const (
	LifecycleBootstrapStarted  LifecycleEvent = "agent_bootstrap_started"
	LifecycleReady             LifecycleEvent = "agent_ready"
	LifecycleShuttingDown      LifecycleEvent = "agent_shutting_down"
	LifecycleErrorEntered      LifecycleEvent = "agent_error_entered"
	LifecyclePhaseTransition   LifecycleEvent = "agent_phase_transition"
)

// LifecycleProcessor runs when its lifecycle event fires. The phase
// manager awaits completion before external notification; errors are
// logged and do not block the transition.
type LifecycleProcessor interface {
	Processor
	LifecycleEvent() LifecycleEvent
	ProcessLifecycle(ctx context.Context, tc *Context, from, to Phase) error
}

// PhaseHook runs on a specific (from, to) transition, before external
// notification. Hook errors are logged, never blocking.
type PhaseHook interface {
	On() (from, to Phase)
	Run(ctx context.Context, tc *Context) error
}

// lifecycleEventFor maps a completed transition to the lifecycle
// event it fires, if any.
func lifecycleEventFor(to Phase) (LifecycleEvent, bool) {
	switch to {
	case PhaseBootstrapping:
		return LifecycleBootstrapStarted, true
	case PhaseIdle:
		return LifecycleReady, true
	case PhaseShuttingDown:
		return LifecycleShuttingDown, true
	case PhaseError:
		return LifecycleErrorEntered, true
	}
	return "", false
}
