package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/internal/agent/toolparse"
	"github.com/loomlabs/loom/pkg/models"
)

// ToolUsageProcessor extracts tool calls from LLM responses, picking
// the wire format from the config override and the provider default.
// A response with several calls opens a multi-tool turn so results can
// be reassembled in invocation order.
type ToolUsageProcessor struct {
	// ProcessorOrder positions this processor in the response chain.
	ProcessorOrder int
}

// NewToolUsageProcessor creates the processor at the given chain
// position.
func NewToolUsageProcessor(order int) *ToolUsageProcessor {
	return &ToolUsageProcessor{ProcessorOrder: order}
}

func (p *ToolUsageProcessor) Name() string { return "provider_aware_tool_usage" }

func (p *ToolUsageProcessor) Order() int { return p.ProcessorOrder }

// ProcessResponse parses the response and enqueues one
// PendingToolInvocation per extracted call. Returns handled=false when
// the response contains no recognizable tool calls, letting later
// processors (or the plain-text path) take over.
func (p *ToolUsageProcessor) ProcessResponse(ctx context.Context, response string, tc *Context, trigger LLMCompleteResponseReceived) (bool, error) {
	format := toolparse.SelectFormat(tc.Config.UseXMLToolFormat, tc.State.FinalLLMSettings.Provider)
	calls := toolparse.Parse(response, format, tc.State.FinalLLMSettings.Provider)
	if len(calls) == 0 {
		return false, nil
	}

	if len(calls) > 1 {
		turnID := uuid.NewString()
		for i := range calls {
			calls[i].TurnID = turnID
		}
		tc.State.ActiveTurn = &MultiToolTurn{
			TurnID:      turnID,
			Invocations: calls,
			Results:     make(map[string]models.ToolResult, len(calls)),
		}
		tc.State.ActiveTurnID = turnID
		tc.Logger.Debug("multi-tool turn opened", "turn_id", turnID, "calls", len(calls))
	}

	for _, call := range calls {
		if err := tc.State.Queues.EnqueueToolInvocationRequest(PendingToolInvocation{Invocation: call}); err != nil {
			return true, err
		}
	}
	return true, nil
}
