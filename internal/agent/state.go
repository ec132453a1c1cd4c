package agent

import (
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomlabs/loom/internal/observability"
	"github.com/loomlabs/loom/pkg/models"
)

// RuntimeState is the mutable, agent-owned state. Only the agent's
// worker goroutine writes it; other goroutines may read the current
// phase through the phase manager's accessor and nothing else.
type RuntimeState struct {
	phase atomic.Int32

	// ProcessedSystemPrompt is the prompt after the processor chain.
	ProcessedSystemPrompt string

	// FinalLLMSettings is the layered LLM configuration.
	FinalLLMSettings LLMSettings

	// LLM is the live client instance.
	LLM LLMClient

	// Tools maps tool name to instance, built during bootstrap.
	Tools map[string]Tool

	// Queues is the multiplexed input queue manager.
	Queues *InputQueues

	// History is the ordered conversation history.
	History []models.Message

	// PendingApprovals maps invocation id to the invocation awaiting
	// a verdict. An entry exists iff the agent awaits approval for it.
	PendingApprovals map[string]models.ToolCall

	// ActiveTurn tracks a multi-tool-call turn in flight, nil
	// otherwise.
	ActiveTurn *MultiToolTurn

	// ActiveTurnID is the id of the turn currently being processed.
	ActiveTurnID string

	// Workspace is the opaque workspace handle.
	Workspace string

	// CustomData carries extension state seeded from the config.
	CustomData map[string]any
}

// Phase returns the current phase. Safe from any goroutine.
func (s *RuntimeState) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *RuntimeState) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// MultiToolTurn accumulates results for a response that contained
// several tool calls. Results may arrive in any order; reassembly
// restores invocation order.
type MultiToolTurn struct {
	TurnID      string
	Invocations []models.ToolCall
	Results     map[string]models.ToolResult
}

// Complete reports whether every invocation has a result.
func (t *MultiToolTurn) Complete() bool {
	return len(t.Results) >= len(t.Invocations)
}

// Context bundles the read-only config with the mutable state and
// the runtime collaborators. It is shared with handlers and
// processors by reference; only the worker's goroutine writes the
// state. The context owns the phase manager, which refers back to it
// non-owningly.
type Context struct {
	Config   *Config
	State    *RuntimeState
	Phases   *PhaseManager
	Notifier *Notifier
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Tracer   trace.Tracer
}

func newContext(cfg *Config, deps Deps) *Context {
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("loom")
	}
	tc := &Context{
		Config:  cfg,
		Logger:  deps.Logger.With("agent", cfg.Name),
		Metrics: deps.Metrics,
		Tracer:  tracer,
		State: &RuntimeState{
			Tools:            make(map[string]Tool),
			PendingApprovals: make(map[string]models.ToolCall),
			Workspace:        cfg.Workspace,
			CustomData:       make(map[string]any),
		},
	}
	for k, v := range cfg.InitialCustomData {
		tc.State.CustomData[k] = v
	}
	tc.Notifier = NewNotifier(cfg.Name, tc.Logger)
	tc.Phases = newPhaseManager(tc)
	return tc
}
