package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loomlabs/loom/pkg/models"
)

// scriptedLLM returns one scripted response per call, as a stream of
// single-character chunks so chunk emission is observable.
type scriptedLLM struct {
	responses []string
	calls     atomic.Int32
	provider  models.Provider
	streamErr error

	mu        sync.Mutex
	prompts   []models.Message
	sysPrompt string
}

func (l *scriptedLLM) ConfigureSystemPrompt(prompt string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sysPrompt = prompt
}

func (l *scriptedLLM) StreamUserMessage(ctx context.Context, msg models.Message) (<-chan Chunk, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, msg)
	l.mu.Unlock()

	if l.streamErr != nil {
		return nil, l.streamErr
	}

	call := int(l.calls.Add(1)) - 1
	response := ""
	if call < len(l.responses) {
		response = l.responses[call]
	}

	out := make(chan Chunk, len(response)+1)
	for _, r := range response {
		out <- Chunk{Content: string(r)}
	}
	out <- Chunk{Final: true}
	close(out)
	return out, nil
}

func (l *scriptedLLM) SendUserMessage(ctx context.Context, msg models.Message) (CompleteResponse, error) {
	return CompleteResponse{}, errors.New("not used")
}

func (l *scriptedLLM) Provider() models.Provider { return l.provider }
func (l *scriptedLLM) ModelName() string         { return "scripted" }
func (l *scriptedLLM) Cleanup(ctx context.Context) error { return nil }

func (l *scriptedLLM) lastPrompt() (models.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.prompts) == 0 {
		return models.Message{}, false
	}
	return l.prompts[len(l.prompts)-1], true
}

// addTool returns the sum of its two numeric arguments.
type addTool struct{}

func (addTool) Name() string        { return "add" }
func (addTool) Description() string { return "Adds two numbers." }
func (addTool) ArgumentSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}}}`)
}
func (addTool) Execute(ctx context.Context, tc *Context, args map[string]any) (any, error) {
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)
	return fmt.Sprintf("%g", a+b), nil
}

// eventRecorder captures external events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.AgentEvent
}

func (r *eventRecorder) record(ev models.AgentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *eventRecorder) count(kind string) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) find(kind string) (models.AgentEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return models.AgentEvent{}, false
}

func newTestAgent(t *testing.T, cfg *Config) (*Agent, *eventRecorder) {
	t.Helper()
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 10 * time.Millisecond
	}
	deps := Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	a, err := New(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	rec := &eventRecorder{}
	a.SubscribeAll(rec.record)
	return a, rec
}

func startTestAgent(t *testing.T, a *Agent) {
	t.Helper()
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	})
	waitForPhase(t, a, PhaseIdle)
}

func waitForPhase(t *testing.T, a *Agent, want Phase) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if a.Phase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase = %s, want %s", a.Phase(), want)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAgentEchoTurn(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"hello back"}}
	a, rec := newTestAgent(t, &Config{Name: "echo", LLM: llm})
	startTestAgent(t, a)

	if err := a.PostUserMessage("hello"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "assistant complete", func() bool {
		_, ok := rec.find(models.EventKindAssistantComplete)
		return ok
	})
	waitForPhase(t, a, PhaseIdle)

	if got := rec.count(models.EventKindAssistantChunk); got != len("hello back") {
		t.Fatalf("chunk events = %d, want %d", got, len("hello back"))
	}
	complete, _ := rec.find(models.EventKindAssistantComplete)
	if complete.Payload["content"] != "hello back" {
		t.Fatalf("assistant complete content = %v", complete.Payload["content"])
	}

	// Chunks precede the stream end, which precedes the completion.
	kinds := rec.kinds()
	lastChunk, streamEnd, completeAt := -1, -1, -1
	for i, kind := range kinds {
		switch kind {
		case models.EventKindAssistantChunk:
			lastChunk = i
		case models.EventKindAssistantStreamEnd:
			if streamEnd == -1 {
				streamEnd = i
			}
		case models.EventKindAssistantComplete:
			completeAt = i
		}
	}
	if !(lastChunk < streamEnd && streamEnd < completeAt) {
		t.Fatalf("event order chunk=%d streamEnd=%d complete=%d", lastChunk, streamEnd, completeAt)
	}
}

func TestAgentXMLToolAutoExecute(t *testing.T) {
	xmlResponse := `<tool_calls><tool_call name="add" id="t1"><arguments><arg name="a">2</arg><arg name="b">3</arg></arguments></tool_call></tool_calls>`
	llm := &scriptedLLM{responses: []string{xmlResponse, "the sum is 5"}}
	useXML := true
	a, rec := newTestAgent(t, &Config{
		Name:                  "calc",
		LLM:                   llm,
		Tools:                 []Tool{addTool{}},
		AutoExecuteTools:      true,
		UseXMLToolFormat:      &useXML,
		LLMResponseProcessors: []ResponseProcessor{NewToolUsageProcessor(0)},
	})
	startTestAgent(t, a)

	if err := a.PostUserMessage("what is 2+3?"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "second llm call", func() bool { return llm.calls.Load() >= 2 })
	waitForPhase(t, a, PhaseIdle)

	if got := rec.count(models.EventKindToolExecutionStarted); got != 1 {
		t.Fatalf("tool-execution-started = %d, want 1", got)
	}
	succeeded, ok := rec.find(models.EventKindToolExecutionSucceeded)
	if !ok {
		t.Fatal("no tool-execution-succeeded event")
	}
	if succeeded.Payload["tool_name"] != "add" || succeeded.Payload["invocation_id"] != "t1" {
		t.Fatalf("succeeded payload = %v", succeeded.Payload)
	}

	prompt, ok := llm.lastPrompt()
	if !ok {
		t.Fatal("no prompts recorded")
	}
	want := "Tool: add (ID: t1)\nStatus: Success\nResult:\n5"
	if !strings.Contains(prompt.Content, want) {
		t.Fatalf("synthesized prompt = %q, want substring %q", prompt.Content, want)
	}
	if !prompt.Synthesized {
		t.Fatal("tool feedback message not marked synthesized")
	}
}

func TestAgentApprovalDenied(t *testing.T) {
	xmlResponse := `<tool_calls><tool_call name="rm_rf" id="d1"><arguments><arg name="path">/</arg></arguments></tool_call></tool_calls>`
	llm := &scriptedLLM{responses: []string{xmlResponse, "understood"}}
	useXML := true
	a, rec := newTestAgent(t, &Config{
		Name:                  "guarded",
		LLM:                   llm,
		AutoExecuteTools:      false,
		UseXMLToolFormat:      &useXML,
		LLMResponseProcessors: []ResponseProcessor{NewToolUsageProcessor(0)},
	})
	startTestAgent(t, a)

	if err := a.PostUserMessage("clean up"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "approval request", func() bool {
		_, ok := rec.find(models.EventKindToolApprovalRequested)
		return ok
	})
	waitForPhase(t, a, PhaseAwaitingToolApproval)

	// The agent must sit in awaiting-approval, not time out to idle.
	time.Sleep(50 * time.Millisecond)
	if a.Phase() != PhaseAwaitingToolApproval {
		t.Fatalf("phase drifted to %s while awaiting approval", a.Phase())
	}
	if _, ok := rec.find("agent_status_awaiting_tool_approval_started"); !ok {
		t.Fatal("no awaiting-approval status event")
	}

	if err := a.PostToolApproval("d1", false, "blocked by policy"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "denial event", func() bool {
		_, ok := rec.find(models.EventKindToolDenied)
		return ok
	})
	denied, _ := rec.find(models.EventKindToolDenied)
	if denied.Payload["reason"] != "blocked by policy" {
		t.Fatalf("denial reason = %v", denied.Payload["reason"])
	}

	waitFor(t, "second llm call", func() bool { return llm.calls.Load() >= 2 })
	prompt, _ := llm.lastPrompt()
	if !strings.Contains(prompt.Content, "Status: Denied\nDetails: blocked by policy") {
		t.Fatalf("synthesized prompt = %q, want denial details", prompt.Content)
	}
	waitForPhase(t, a, PhaseIdle)
}

func TestAgentApprovalGranted(t *testing.T) {
	xmlResponse := `<tool_calls><tool_call name="add" id="a1"><arguments><arg name="a">1</arg><arg name="b">1</arg></arguments></tool_call></tool_calls>`
	llm := &scriptedLLM{responses: []string{xmlResponse, "two"}}
	useXML := true
	a, rec := newTestAgent(t, &Config{
		Name:                  "approver",
		LLM:                   llm,
		Tools:                 []Tool{addTool{}},
		AutoExecuteTools:      false,
		UseXMLToolFormat:      &useXML,
		LLMResponseProcessors: []ResponseProcessor{NewToolUsageProcessor(0)},
	})
	startTestAgent(t, a)

	if err := a.PostUserMessage("add one and one"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "approval request", func() bool {
		return rec.count(models.EventKindToolApprovalRequested) == 1
	})

	if err := a.PostToolApproval("a1", true, ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "execution", func() bool {
		_, ok := rec.find(models.EventKindToolExecutionSucceeded)
		return ok
	})

	approved, _ := rec.find(models.EventKindToolApproved)
	if approved.Payload["invocation_id"] != "a1" {
		t.Fatalf("approved payload = %v", approved.Payload)
	}
	waitForPhase(t, a, PhaseIdle)
}

func TestAgentStaleApprovalIgnored(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"ok"}}
	a, rec := newTestAgent(t, &Config{Name: "stale", LLM: llm})
	startTestAgent(t, a)

	if err := a.PostToolApproval("never-pending", true, ""); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := rec.count(models.EventKindToolApproved); n != 0 {
		t.Fatalf("stale approval produced %d tool-approved events", n)
	}
	if a.Phase() != PhaseIdle {
		t.Fatalf("phase = %s after stale approval", a.Phase())
	}
}

type failingFactory struct{}

func (failingFactory) Defaults(model string) (LLMSettings, error) {
	return LLMSettings{}, fmt.Errorf("unknown model %q", model)
}

func (failingFactory) Create(settings LLMSettings) (LLMClient, error) {
	return nil, errors.New("unreachable")
}

func TestAgentBootstrapFailureEntersError(t *testing.T) {
	a, rec := newTestAgent(t, &Config{
		Name:         "doomed",
		LLMModelName: "no-such-model",
		LLMFactory:   failingFactory{},
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitForPhase(t, a, PhaseError)
	errorEvent, ok := rec.find("agent_status_error_entered")
	if !ok {
		t.Fatal("no error status event")
	}
	message, _ := errorEvent.Payload["error_message"].(string)
	if !strings.Contains(message, "llm_config_finalization") {
		t.Fatalf("error message = %q, want failing step named", message)
	}
	if !strings.Contains(message, "no-such-model") {
		t.Fatalf("error message = %q, want invalid model named", message)
	}

	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after bootstrap failure")
	}
}

func TestAgentStopFromIdle(t *testing.T) {
	llm := &scriptedLLM{}
	a, rec := newTestAgent(t, &Config{Name: "stopper", LLM: llm})
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForPhase(t, a, PhaseIdle)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if got := a.Phase(); got != PhaseShutdownComplete {
		t.Fatalf("phase = %s, want shutdown_complete", got)
	}
	if a.Alive() {
		t.Fatal("worker still alive after stop")
	}
	if _, ok := rec.find("agent_status_shutdown_complete_entered"); !ok {
		t.Fatal("no shutdown-complete status event")
	}
}

func TestAgentReadyIsIdempotent(t *testing.T) {
	llm := &scriptedLLM{}
	a, rec := newTestAgent(t, &Config{Name: "ready", LLM: llm})
	startTestAgent(t, a)

	// A stray duplicate ready event must not re-fire the idle status.
	before := rec.count("agent_status_idle_entered")
	if err := a.tc.State.Queues.EnqueueInternal(AgentReady{}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if after := rec.count("agent_status_idle_entered"); after != before {
		t.Fatalf("idle status events went %d -> %d on duplicate ready", before, after)
	}
}

func TestAgentScheduleRunsOnWorker(t *testing.T) {
	llm := &scriptedLLM{}
	a, _ := newTestAgent(t, &Config{Name: "sched", LLM: llm})
	startTestAgent(t, a)

	future, err := a.Schedule(func(ctx context.Context, tc *Context) (any, error) {
		return tc.Config.Name, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	value, err := future.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if value != "sched" {
		t.Fatalf("scheduled value = %v", value)
	}
}

func TestAgentStreamErrorFlagsResponse(t *testing.T) {
	llm := &scriptedLLM{streamErr: errors.New("connection reset")}
	a, rec := newTestAgent(t, &Config{Name: "flaky", LLM: llm})
	startTestAgent(t, a)

	if err := a.PostUserMessage("hi"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "assistant complete", func() bool {
		_, ok := rec.find(models.EventKindAssistantComplete)
		return ok
	})
	waitForPhase(t, a, PhaseIdle)

	history := a.History()
	var assistant *models.Message
	for i := range history {
		if history[i].Role == models.RoleAssistant {
			assistant = &history[i]
		}
	}
	if assistant == nil {
		t.Fatal("no assistant message recorded")
	}
	if !assistant.IsError {
		t.Fatal("assistant message not error-flagged after stream failure")
	}
}

func TestAgentSystemPromptToolManifest(t *testing.T) {
	llm := &scriptedLLM{}
	a, _ := newTestAgent(t, &Config{
		Name:         "prompted",
		LLM:          llm,
		Tools:        []Tool{addTool{}},
		SystemPrompt: "You can use:\n{{tools}}",
	})
	startTestAgent(t, a)

	llm.mu.Lock()
	prompt := llm.sysPrompt
	llm.mu.Unlock()
	if !strings.Contains(prompt, "- add: Adds two numbers.") {
		t.Fatalf("system prompt = %q, want tool manifest", prompt)
	}
}
