package agent

import (
	"context"
	"log/slog"
)

// PhaseManager owns all phase transitions. One method exists per
// allowed transition; each validates the source phase, updates the
// state atomically, runs matching lifecycle processors and phase
// hooks, then fans the change out through the external notifier.
//
// Calls where the target equals the current phase are no-ops. Illegal
// source phases are logged and leave the state untouched.
type PhaseManager struct {
	tc     *Context
	logger *slog.Logger

	hooks     *PhaseHookRegistry
	lifecycle *LifecycleProcessorRegistry
}

func newPhaseManager(tc *Context) *PhaseManager {
	pm := &PhaseManager{
		tc:        tc,
		logger:    tc.Logger,
		hooks:     NewPhaseHookRegistry(),
		lifecycle: NewLifecycleProcessorRegistry(),
	}
	for _, hook := range tc.Config.PhaseHooks {
		pm.hooks.Register(hook)
	}
	for _, proc := range sortProcessors(tc.Config.LifecycleProcessors) {
		pm.lifecycle.Register(proc)
	}
	return pm
}

// Current returns the current phase.
func (pm *PhaseManager) Current() Phase {
	return pm.tc.State.Phase()
}

func (pm *PhaseManager) transition(ctx context.Context, target Phase, data map[string]any) bool {
	current := pm.Current()
	if current == target {
		return false
	}
	if !isLegalSource(target, current) {
		pm.logger.Warn("illegal phase transition rejected",
			"from", current.String(), "to", target.String())
		return false
	}
	return pm.commit(ctx, current, target, data)
}

func (pm *PhaseManager) commit(ctx context.Context, from, to Phase, data map[string]any) bool {
	pm.tc.State.setPhase(to)
	if pm.tc.Metrics != nil {
		pm.tc.Metrics.PhaseTransitions.WithLabelValues(from.String(), to.String()).Inc()
	}

	if event, ok := lifecycleEventFor(to); ok {
		for _, proc := range pm.lifecycle.For(event) {
			if err := proc.ProcessLifecycle(ctx, pm.tc, from, to); err != nil {
				pm.logger.Error("lifecycle processor failed",
					"processor", proc.Name(), "event", string(event), "error", err)
			}
		}
	}
	for _, hook := range pm.hooks.For(from, to) {
		if err := hook.Run(ctx, pm.tc); err != nil {
			pm.logger.Error("phase hook failed",
				"from", from.String(), "to", to.String(), "error", err)
		}
	}

	pm.tc.Notifier.PhaseChanged(from, to, data)
	return true
}

// NotifyBootstrappingStarted moves Uninitialized -> Bootstrapping.
func (pm *PhaseManager) NotifyBootstrappingStarted(ctx context.Context) bool {
	return pm.transition(ctx, PhaseBootstrapping, nil)
}

// NotifyInitializationComplete moves Bootstrapping -> Idle.
func (pm *PhaseManager) NotifyInitializationComplete(ctx context.Context) bool {
	return pm.transition(ctx, PhaseIdle, nil)
}

// NotifyProcessingUserInput marks the start of a turn.
func (pm *PhaseManager) NotifyProcessingUserInput(ctx context.Context) bool {
	return pm.transition(ctx, PhaseProcessingUserInput, nil)
}

// NotifyAwaitingLLMResponse marks the LLM stream opening.
func (pm *PhaseManager) NotifyAwaitingLLMResponse(ctx context.Context) bool {
	return pm.transition(ctx, PhaseAwaitingLLMResponse, nil)
}

// NotifyAnalyzingLLMResponse marks tool-call extraction.
func (pm *PhaseManager) NotifyAnalyzingLLMResponse(ctx context.Context) bool {
	return pm.transition(ctx, PhaseAnalyzingLLMResponse, nil)
}

// NotifyAwaitingToolApproval marks the approval gate opening.
func (pm *PhaseManager) NotifyAwaitingToolApproval(ctx context.Context, data map[string]any) bool {
	return pm.transition(ctx, PhaseAwaitingToolApproval, data)
}

// NotifyToolDenied marks an approval rejection.
func (pm *PhaseManager) NotifyToolDenied(ctx context.Context, data map[string]any) bool {
	return pm.transition(ctx, PhaseToolDenied, data)
}

// NotifyExecutingTool marks tool execution starting.
func (pm *PhaseManager) NotifyExecutingTool(ctx context.Context) bool {
	return pm.transition(ctx, PhaseExecutingTool, nil)
}

// NotifyProcessingToolResult marks result aggregation.
func (pm *PhaseManager) NotifyProcessingToolResult(ctx context.Context) bool {
	return pm.transition(ctx, PhaseProcessingToolResult, nil)
}

// NotifyIdle returns the agent to rest after a completed turn.
func (pm *PhaseManager) NotifyIdle(ctx context.Context) bool {
	return pm.transition(ctx, PhaseIdle, nil)
}

// NotifyShutdownInitiated moves any non-terminal phase to
// ShuttingDown.
func (pm *PhaseManager) NotifyShutdownInitiated(ctx context.Context) bool {
	return pm.transition(ctx, PhaseShuttingDown, nil)
}

// NotifyErrorOccurred is accepted from any non-terminal phase. A
// second error while already in Error is logged and dropped.
func (pm *PhaseManager) NotifyErrorOccurred(ctx context.Context, message, details string) bool {
	current := pm.Current()
	if current == PhaseError {
		pm.logger.Error("error while already in error phase",
			"error_message", message, "error_details", details)
		return false
	}
	if current.IsTerminal() {
		pm.logger.Warn("error after terminal phase ignored", "error_message", message)
		return false
	}
	return pm.commit(ctx, current, PhaseError, map[string]any{
		"error_message": message,
		"error_details": details,
	})
}

// NotifyFinalShutdownComplete seals the lifecycle. If the agent is
// already in Error, it stays there; otherwise it promotes to
// ShutdownComplete.
func (pm *PhaseManager) NotifyFinalShutdownComplete(ctx context.Context) bool {
	current := pm.Current()
	if current == PhaseError {
		pm.logger.Info("shutdown complete, preserving error phase")
		return false
	}
	if current == PhaseShutdownComplete {
		return false
	}
	return pm.commit(ctx, current, PhaseShutdownComplete, nil)
}
