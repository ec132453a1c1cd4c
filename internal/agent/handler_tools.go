package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/loomlabs/loom/pkg/models"
)

// handlePendingToolInvocation branches on the approval gate. With
// auto-execute the invocation goes straight to execution; otherwise it
// is parked in the pending table until a verdict arrives. The phase
// transition to awaiting-approval happened in the dispatcher pre-hint.
func (d *Dispatcher) handlePendingToolInvocation(ctx context.Context, ev PendingToolInvocation) error {
	tc := d.tc
	inv := ev.Invocation
	if !inv.IsValid() {
		tc.Logger.Warn("invalid tool invocation dropped", "invocation_id", inv.ID)
		return nil
	}

	if tc.Config.AutoExecuteTools {
		return tc.State.Queues.EnqueueToolInvocationRequest(ExecuteToolInvocation{Invocation: inv})
	}

	tc.State.PendingApprovals[inv.ID] = inv
	tc.Notifier.ToolApprovalRequested(inv)
	tc.Logger.Info("tool approval requested", "tool", inv.Name, "invocation_id", inv.ID)
	return nil
}

// handleToolExecutionApproval resolves one pending invocation. A
// verdict for an unknown id is stale and ignored. Denial produces a
// synthetic denied result so the turn completes through the normal
// result path.
func (d *Dispatcher) handleToolExecutionApproval(ctx context.Context, ev ToolExecutionApproval) error {
	tc := d.tc
	inv, ok := tc.State.PendingApprovals[ev.InvocationID]
	if !ok {
		tc.Logger.Warn("approval for unknown invocation ignored", "invocation_id", ev.InvocationID)
		return nil
	}
	delete(tc.State.PendingApprovals, ev.InvocationID)

	if ev.Approved {
		tc.Notifier.ToolApproved(inv.ID, inv.Name)
		return tc.State.Queues.EnqueueToolInvocationRequest(ExecuteToolInvocation{Invocation: inv})
	}

	tc.Phases.NotifyToolDenied(ctx, map[string]any{
		"invocation_id": inv.ID,
		"tool_name":     inv.Name,
		"reason":        ev.Reason,
	})
	tc.Notifier.ToolDenied(inv.ID, inv.Name, ev.Reason)
	return tc.State.Queues.EnqueueToolResult(ToolResultEvent{Result: models.ToolResult{
		ToolName:     inv.Name,
		InvocationID: inv.ID,
		Error:        ev.Reason,
		Args:         inv.Arguments,
		TurnID:       inv.TurnID,
		Denied:       true,
	}})
}

// handleExecuteToolInvocation runs the preprocessor chain, executes
// the tool, and feeds the outcome back as a ToolResult. Execution
// failures are data, not handler errors: the result carries them back
// to the LLM.
func (d *Dispatcher) handleExecuteToolInvocation(ctx context.Context, ev ExecuteToolInvocation) error {
	tc := d.tc
	inv := ev.Invocation

	for _, proc := range sortProcessors(tc.Config.InvocationPreprocessors) {
		rewritten, err := proc.ProcessInvocation(ctx, inv, tc)
		if err != nil {
			tc.Logger.Error("invocation preprocessor failed",
				"processor", proc.Name(), "invocation_id", inv.ID, "error", err)
			return tc.State.Queues.EnqueueToolResult(ToolResultEvent{Result: models.ToolResult{
				ToolName:     inv.Name,
				InvocationID: inv.ID,
				Error:        fmt.Sprintf("preprocessor %s: %v", proc.Name(), err),
				Args:         inv.Arguments,
				TurnID:       inv.TurnID,
			}})
		}
		inv = rewritten
	}

	tc.Notifier.ToolExecutionStarted(inv.Name, inv.ID)
	tc.Logger.Info("[TOOL_CALL]", "tool", inv.Name, "invocation_id", inv.ID)

	result := models.ToolResult{
		ToolName:     inv.Name,
		InvocationID: inv.ID,
		Args:         inv.Arguments,
		TurnID:       inv.TurnID,
	}

	tool, ok := tc.State.Tools[inv.Name]
	if !ok {
		result.Error = fmt.Sprintf("unknown tool %q", inv.Name)
	} else {
		start := time.Now()
		out, err := d.executeTool(ctx, tool, inv)
		if tc.Metrics != nil {
			tc.Metrics.ToolExecutionDuration.WithLabelValues(inv.Name).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Result = out
		}
	}

	if tc.Metrics != nil {
		status := "success"
		if result.Error != "" {
			status = "error"
		}
		tc.Metrics.ToolExecutions.WithLabelValues(inv.Name, status).Inc()
	}
	return tc.State.Queues.EnqueueToolResult(ToolResultEvent{Result: result})
}

// executeTool runs one tool call under its configured timeout, with
// panic recovery so a misbehaving tool cannot take down the worker.
func (d *Dispatcher) executeTool(ctx context.Context, tool Tool, inv models.ToolCall) (out any, err error) {
	if opts, ok := d.tc.Config.ToolOptions[inv.Name]; ok && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ctx, span := d.tc.Tracer.Start(ctx, "tool.execute")
	span.SetAttributes(
		attribute.String("tool.name", inv.Name),
		attribute.String("tool.invocation_id", inv.ID),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", inv.Name, r)
			span.RecordError(err)
		}
	}()
	return tool.Execute(ctx, d.tc, inv.Arguments)
}

// handleToolResult runs the result processor chain, surfaces the
// outcome externally, and folds the result into the conversation:
// single results synthesize a user message immediately, multi-call
// turns aggregate until every invocation has reported, then reassemble
// in invocation order.
func (d *Dispatcher) handleToolResult(ctx context.Context, ev ToolResultEvent) error {
	tc := d.tc
	res := ev.Result

	for _, proc := range sortProcessors(tc.Config.ResultProcessors) {
		transformed, err := proc.ProcessResult(ctx, res, tc)
		if err != nil {
			tc.Logger.Error("result processor failed",
				"processor", proc.Name(), "invocation_id", res.InvocationID, "error", err)
			continue
		}
		res = transformed
	}

	if res.Succeeded() {
		tc.Notifier.ToolExecutionSucceeded(res.ToolName, res.InvocationID, res.Result)
	} else {
		tc.Notifier.ToolExecutionFailed(res.ToolName, res.InvocationID, res.Error)
	}

	turn := tc.State.ActiveTurn
	if turn == nil || res.TurnID == "" || res.TurnID != turn.TurnID {
		return d.synthesizeResults([]models.ToolResult{res})
	}

	turn.Results[res.InvocationID] = res
	if !turn.Complete() {
		tc.Logger.Debug("multi-tool turn waiting",
			"turn_id", turn.TurnID, "received", len(turn.Results), "expected", len(turn.Invocations))
		return nil
	}

	ordered := make([]models.ToolResult, 0, len(turn.Invocations))
	for _, inv := range turn.Invocations {
		slot, ok := turn.Results[inv.ID]
		if !ok {
			// Should be unreachable: Complete() implies every slot is
			// filled. Substitute an error result rather than losing
			// the turn.
			tc.Logger.Error("multi-tool turn missing result slot",
				"turn_id", turn.TurnID, "invocation_id", inv.ID)
			slot = models.ToolResult{
				ToolName:     inv.Name,
				InvocationID: inv.ID,
				Error:        "internal error: result missing at turn completion",
				TurnID:       turn.TurnID,
			}
		}
		ordered = append(ordered, slot)
	}
	tc.State.ActiveTurn = nil
	tc.State.ActiveTurnID = ""
	return d.synthesizeResults(ordered)
}

// synthesizeResults builds the user message that feeds tool outcomes
// back to the LLM and enqueues it. Context-file results become
// attachments with a placeholder in the text.
func (d *Dispatcher) synthesizeResults(results []models.ToolResult) error {
	blocks := make([]string, 0, len(results))
	var attachments []models.ContextFile
	for _, res := range results {
		blocks = append(blocks, renderToolResult(res))
		attachments = append(attachments, res.ContextFiles()...)
	}

	msg := models.Message{
		Role:        models.RoleUser,
		Content:     strings.Join(blocks, "\n\n"),
		Synthesized: true,
		Attachments: attachments,
	}
	return d.tc.State.Queues.EnqueueUserMessage(UserMessageReceived{Message: msg})
}

func renderToolResult(res models.ToolResult) string {
	header := fmt.Sprintf("Tool: %s (ID: %s)", res.ToolName, res.InvocationID)
	switch {
	case res.Denied:
		return fmt.Sprintf("%s\nStatus: Denied\nDetails: %s", header, res.Error)
	case res.Error != "":
		return fmt.Sprintf("%s\nStatus: Failed\nError:\n%s", header, res.Error)
	default:
		return fmt.Sprintf("%s\nStatus: Success\nResult:\n%s", header, renderResultValue(res))
	}
}

// renderResultValue flattens a tool's output for the synthesized
// message. Files are referenced by name; structured values are JSON.
func renderResultValue(res models.ToolResult) string {
	if files := res.ContextFiles(); files != nil {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, fmt.Sprintf("[attached %s: %s]", f.FileType, f.FileName))
		}
		return strings.Join(names, "\n")
	}
	switch v := res.Result.(type) {
	case nil:
		return "(no output)"
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
