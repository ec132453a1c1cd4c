package agent

import "context"

// ShutdownSequencer is the symmetric teardown. Step failures are
// logged but never prevent subsequent steps; the terminal phase is
// set by the worker's outer frame, not here.
type ShutdownSequencer struct{}

// Run releases the agent's external resources in order: LLM client,
// workspace, then the shutting-down lifecycle processors.
func (ShutdownSequencer) Run(ctx context.Context, tc *Context) {
	if tc.State.LLM != nil {
		if err := tc.State.LLM.Cleanup(ctx); err != nil {
			tc.Logger.Error("llm cleanup failed", "error", err)
		}
	}

	// Workspace contents are opaque to the core; cleanup is just
	// dropping the handle.
	tc.State.Workspace = ""
	delete(tc.State.CustomData, "workspace")

	for _, proc := range sortProcessors(tc.Config.LifecycleProcessors) {
		if proc.LifecycleEvent() != LifecycleShuttingDown {
			continue
		}
		if err := proc.ProcessLifecycle(ctx, tc, tc.State.Phase(), PhaseShuttingDown); err != nil {
			tc.Logger.Error("shutdown lifecycle processor failed",
				"processor", proc.Name(), "error", err)
		}
	}
}
