package agent

// Phase is the operational state of an agent, drawn from a closed
// enumeration. Transitions form a DAG rooted at PhaseUninitialized
// with sinks PhaseShutdownComplete and PhaseError; PhaseError is
// reachable from any non-terminal phase.
type Phase int

const (
	// Lifecycle phases.
	PhaseUninitialized Phase = iota
	PhaseBootstrapping
	PhaseIdle
	PhaseShuttingDown
	PhaseShutdownComplete
	PhaseError

	// Operational phases.
	PhaseProcessingUserInput
	PhaseAwaitingLLMResponse
	PhaseAnalyzingLLMResponse
	PhaseAwaitingToolApproval
	PhaseToolDenied
	PhaseExecutingTool
	PhaseProcessingToolResult
)

var phaseNames = map[Phase]string{
	PhaseUninitialized:        "uninitialized",
	PhaseBootstrapping:        "bootstrapping",
	PhaseIdle:                 "idle",
	PhaseShuttingDown:         "shutting_down",
	PhaseShutdownComplete:     "shutdown_complete",
	PhaseError:                "error",
	PhaseProcessingUserInput:  "processing_user_input",
	PhaseAwaitingLLMResponse:  "awaiting_llm_response",
	PhaseAnalyzingLLMResponse: "analyzing_llm_response",
	PhaseAwaitingToolApproval: "awaiting_tool_approval",
	PhaseToolDenied:           "tool_denied",
	PhaseExecutingTool:        "executing_tool",
	PhaseProcessingToolResult: "processing_tool_result",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether the phase is a sink of the transition DAG.
func (p Phase) IsTerminal() bool {
	return p == PhaseShutdownComplete || p == PhaseError
}

// IsInitializing reports whether the agent is still bootstrapping.
func (p Phase) IsInitializing() bool {
	return p == PhaseBootstrapping
}

// IsProcessing reports whether the phase is operational, i.e. the
// agent is actively working a turn.
func (p Phase) IsProcessing() bool {
	switch p {
	case PhaseProcessingUserInput, PhaseAwaitingLLMResponse,
		PhaseAnalyzingLLMResponse, PhaseAwaitingToolApproval,
		PhaseToolDenied, PhaseExecutingTool, PhaseProcessingToolResult:
		return true
	}
	return false
}

// StatusEventKind returns the external event kind emitted when the
// agent enters this phase. Entered-style suffixes mark resting
// phases; started-style suffixes mark active ones.
func (p Phase) StatusEventKind() string {
	switch p {
	case PhaseIdle:
		return "agent_status_idle_entered"
	case PhaseError:
		return "agent_status_error_entered"
	case PhaseShutdownComplete:
		return "agent_status_shutdown_complete_entered"
	case PhaseToolDenied:
		return "agent_status_tool_denied_entered"
	default:
		return "agent_status_" + p.String() + "_started"
	}
}

// legalSources maps each target phase to the set of phases a
// transition may start from. NotifyErrorOccurred and
// NotifyFinalShutdownComplete have bespoke rules in the phase manager
// and do not appear here.
var legalSources = map[Phase][]Phase{
	PhaseBootstrapping: {PhaseUninitialized},
	PhaseIdle: {
		PhaseBootstrapping,
		PhaseProcessingUserInput,
		PhaseAwaitingLLMResponse,
		PhaseAnalyzingLLMResponse,
		PhaseToolDenied,
		PhaseExecutingTool,
		PhaseProcessingToolResult,
	},
	PhaseProcessingUserInput: {
		PhaseIdle,
		PhaseProcessingToolResult,
		PhaseAwaitingToolApproval,
		PhaseToolDenied,
	},
	PhaseAwaitingLLMResponse:  {PhaseProcessingUserInput},
	PhaseAnalyzingLLMResponse: {PhaseAwaitingLLMResponse},
	PhaseAwaitingToolApproval: {
		PhaseAnalyzingLLMResponse,
		PhaseExecutingTool,
		PhaseProcessingToolResult,
	},
	PhaseToolDenied: {PhaseAwaitingToolApproval},
	PhaseExecutingTool: {
		PhaseAnalyzingLLMResponse,
		PhaseAwaitingToolApproval,
		PhaseToolDenied,
		PhaseProcessingToolResult,
	},
	PhaseProcessingToolResult: {
		PhaseExecutingTool,
		PhaseToolDenied,
		PhaseAwaitingToolApproval,
	},
	PhaseShuttingDown: {
		PhaseUninitialized,
		PhaseBootstrapping,
		PhaseIdle,
		PhaseProcessingUserInput,
		PhaseAwaitingLLMResponse,
		PhaseAnalyzingLLMResponse,
		PhaseAwaitingToolApproval,
		PhaseToolDenied,
		PhaseExecutingTool,
		PhaseProcessingToolResult,
		PhaseError,
	},
}

func isLegalSource(target, current Phase) bool {
	for _, src := range legalSources[target] {
		if src == current {
			return true
		}
	}
	return false
}
