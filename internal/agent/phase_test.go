package agent

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func testContext(t *testing.T, cfg *Config) *Context {
	t.Helper()
	if cfg == nil {
		cfg = &Config{Name: "test-agent", LLM: &scriptedLLM{}}
	}
	deps := Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	return newContext(cfg, deps.sanitized())
}

func TestPhaseTransitionsHappyPath(t *testing.T) {
	tc := testContext(t, nil)
	ctx := context.Background()

	steps := []struct {
		name string
		fn   func() bool
		want Phase
	}{
		{"bootstrapping", func() bool { return tc.Phases.NotifyBootstrappingStarted(ctx) }, PhaseBootstrapping},
		{"idle", func() bool { return tc.Phases.NotifyInitializationComplete(ctx) }, PhaseIdle},
		{"processing", func() bool { return tc.Phases.NotifyProcessingUserInput(ctx) }, PhaseProcessingUserInput},
		{"awaiting llm", func() bool { return tc.Phases.NotifyAwaitingLLMResponse(ctx) }, PhaseAwaitingLLMResponse},
		{"analyzing", func() bool { return tc.Phases.NotifyAnalyzingLLMResponse(ctx) }, PhaseAnalyzingLLMResponse},
		{"executing", func() bool { return tc.Phases.NotifyExecutingTool(ctx) }, PhaseExecutingTool},
		{"result", func() bool { return tc.Phases.NotifyProcessingToolResult(ctx) }, PhaseProcessingToolResult},
		{"idle again", func() bool { return tc.Phases.NotifyIdle(ctx) }, PhaseIdle},
		{"shutting down", func() bool { return tc.Phases.NotifyShutdownInitiated(ctx) }, PhaseShuttingDown},
		{"complete", func() bool { return tc.Phases.NotifyFinalShutdownComplete(ctx) }, PhaseShutdownComplete},
	}
	for _, step := range steps {
		if !step.fn() {
			t.Fatalf("%s: transition rejected", step.name)
		}
		if got := tc.State.Phase(); got != step.want {
			t.Fatalf("%s: phase = %s, want %s", step.name, got, step.want)
		}
	}
}

func TestPhaseIllegalTransitionRejected(t *testing.T) {
	tc := testContext(t, nil)
	ctx := context.Background()

	// Uninitialized -> ExecutingTool is not a legal edge.
	if tc.Phases.NotifyExecutingTool(ctx) {
		t.Fatal("illegal transition accepted")
	}
	if got := tc.State.Phase(); got != PhaseUninitialized {
		t.Fatalf("phase mutated on rejected transition: %s", got)
	}
}

func TestPhaseSameTargetIsNoOp(t *testing.T) {
	tc := testContext(t, nil)
	ctx := context.Background()

	tc.Phases.NotifyBootstrappingStarted(ctx)
	if tc.Phases.NotifyBootstrappingStarted(ctx) {
		t.Fatal("same-phase transition should be a no-op")
	}
}

func TestPhaseErrorFromAnyNonTerminal(t *testing.T) {
	for _, start := range []Phase{
		PhaseUninitialized, PhaseBootstrapping, PhaseIdle,
		PhaseProcessingUserInput, PhaseAwaitingToolApproval, PhaseExecutingTool,
	} {
		tc := testContext(t, nil)
		tc.State.setPhase(start)
		if !tc.Phases.NotifyErrorOccurred(context.Background(), "boom", "details") {
			t.Fatalf("error transition rejected from %s", start)
		}
		if got := tc.State.Phase(); got != PhaseError {
			t.Fatalf("phase = %s after error from %s", got, start)
		}
	}
}

func TestPhaseErrorIgnoredWhenTerminal(t *testing.T) {
	tc := testContext(t, nil)
	tc.State.setPhase(PhaseShutdownComplete)
	if tc.Phases.NotifyErrorOccurred(context.Background(), "boom", "") {
		t.Fatal("error accepted after shutdown complete")
	}

	tc.State.setPhase(PhaseError)
	if tc.Phases.NotifyErrorOccurred(context.Background(), "boom again", "") {
		t.Fatal("second error should be dropped")
	}
}

func TestFinalShutdownKeepsErrorSticky(t *testing.T) {
	tc := testContext(t, nil)
	tc.State.setPhase(PhaseError)
	tc.Phases.NotifyFinalShutdownComplete(context.Background())
	if got := tc.State.Phase(); got != PhaseError {
		t.Fatalf("phase = %s, want error to stick through final shutdown", got)
	}
}

func TestStatusEventKinds(t *testing.T) {
	cases := map[Phase]string{
		PhaseIdle:                 "agent_status_idle_entered",
		PhaseError:                "agent_status_error_entered",
		PhaseShutdownComplete:     "agent_status_shutdown_complete_entered",
		PhaseToolDenied:           "agent_status_tool_denied_entered",
		PhaseAwaitingToolApproval: "agent_status_awaiting_tool_approval_started",
		PhaseBootstrapping:        "agent_status_bootstrapping_started",
	}
	for phase, want := range cases {
		if got := phase.StatusEventKind(); got != want {
			t.Errorf("%s: kind = %q, want %q", phase, got, want)
		}
	}
}

func TestPhaseHookRunsOnMatchingTransition(t *testing.T) {
	ran := 0
	hook := &testPhaseHook{from: PhaseUninitialized, to: PhaseBootstrapping, fn: func() { ran++ }}
	cfg := &Config{Name: "hooked", LLM: &scriptedLLM{}, PhaseHooks: []PhaseHook{hook}}
	tc := testContext(t, cfg)

	tc.Phases.NotifyBootstrappingStarted(context.Background())
	if ran != 1 {
		t.Fatalf("hook ran %d times, want 1", ran)
	}
}

type testPhaseHook struct {
	from, to Phase
	fn       func()
}

func (h *testPhaseHook) On() (Phase, Phase) { return h.from, h.to }

func (h *testPhaseHook) Run(ctx context.Context, tc *Context) error {
	h.fn()
	return nil
}
