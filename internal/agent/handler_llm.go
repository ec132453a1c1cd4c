package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/loomlabs/loom/pkg/models"
)

// handleLLMUserMessage opens the LLM stream and drains it. Each chunk
// is surfaced externally and accumulated; the assistant message lands
// in history when the stream ends. Stream failures do not fail the
// handler: they produce an error-flagged response so the turn can
// finish through the normal path.
func (d *Dispatcher) handleLLMUserMessage(ctx context.Context, ev LLMUserMessageReady) error {
	tc := d.tc
	tc.Phases.NotifyAwaitingLLMResponse(ctx)

	spanCtx, span := tc.Tracer.Start(ctx, "llm.stream")
	span.SetAttributes(
		attribute.String("llm.model", tc.State.FinalLLMSettings.Model),
		attribute.String("llm.provider", string(tc.State.FinalLLMSettings.Provider)),
	)
	defer span.End()

	start := time.Now()
	response, streamErr := d.drainStream(spanCtx, ev.Message)
	isError := streamErr != nil
	if tc.Metrics != nil {
		status := "success"
		if isError {
			status = "error"
		}
		tc.Metrics.LLMRequestDuration.WithLabelValues(
			tc.State.FinalLLMSettings.Model, status).Observe(time.Since(start).Seconds())
	}

	if isError {
		tc.Logger.Error("llm stream failed", "error", streamErr)
		span.RecordError(streamErr)
		if response == "" {
			response = streamErr.Error()
		}
	}

	tc.State.History = append(tc.State.History, models.Message{
		Role:    models.RoleAssistant,
		Content: response,
		IsError: isError,
	})
	return tc.State.Queues.EnqueueLLMCompleteResponse(LLMCompleteResponseReceived{
		Response: response,
		IsError:  isError,
	})
}

func (d *Dispatcher) drainStream(ctx context.Context, msg models.Message) (string, error) {
	tc := d.tc
	chunks, err := tc.State.LLM.StreamUserMessage(ctx, msg)
	if err != nil {
		return "", err
	}

	var accumulated []byte
	for chunk := range chunks {
		if chunk.Err != nil {
			tc.Notifier.AssistantStreamEnd()
			return string(accumulated), chunk.Err
		}
		if chunk.Content != "" {
			accumulated = append(accumulated, chunk.Content...)
			tc.Notifier.AssistantChunk(chunk.Content)
		}
		if chunk.Final {
			break
		}
	}
	tc.Notifier.AssistantStreamEnd()
	return string(accumulated), nil
}

// handleLLMCompleteResponse runs the response processor chain. The
// first processor that reports handled stops the chain; tool-usage
// processors enqueue PendingToolInvocation events as a side effect.
// Error-flagged responses skip extraction entirely. An unhandled
// response is final text, surfaced as assistant-complete; the worker's
// idle detection then closes the turn.
func (d *Dispatcher) handleLLMCompleteResponse(ctx context.Context, ev LLMCompleteResponseReceived) error {
	tc := d.tc
	if ev.IsError {
		tc.Notifier.AssistantComplete(ev.Response)
		return nil
	}

	for _, proc := range sortProcessors(tc.Config.LLMResponseProcessors) {
		handled, err := proc.ProcessResponse(ctx, ev.Response, tc, ev)
		if err != nil {
			return err
		}
		if handled {
			tc.Logger.Debug("response handled", "processor", proc.Name())
			return nil
		}
	}

	tc.Notifier.AssistantComplete(ev.Response)
	return nil
}
