// Package agent implements the LLM-agent execution runtime: a
// goroutine-per-agent worker loop over prioritized input queues, a
// phase state machine with lifecycle hooks, a tool approval protocol,
// and provider-aware tool-call extraction.
package agent

import (
	"context"

	"github.com/loomlabs/loom/pkg/models"
)

// Agent is the public handle for one running agent. All methods are
// safe for concurrent use; they communicate with the worker goroutine
// exclusively through the input queues.
type Agent struct {
	tc       *Context
	worker   *Worker
	registry *ContextRegistry
}

// New validates the config and assembles the agent. The input queues
// are created eagerly so callers may post messages before Start; the
// worker's bootstrap sequence adopts them.
func New(cfg *Config, deps Deps) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps = deps.sanitized()
	cfg = cfg.Clone()

	tc := newContext(cfg, deps)
	tc.State.Queues = NewInputQueues(cfg.QueueBound, tc.Logger)

	a := &Agent{
		tc:       tc,
		worker:   NewWorker(tc, deps.Pool),
		registry: deps.ContextRegistry,
	}
	if a.registry != nil {
		a.registry.Register(a)
		a.worker.OnDone(func() { a.registry.Unregister(cfg.Name) })
	}
	return a, nil
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.tc.Config.Name }

// Phase returns the current phase. Safe from any goroutine.
func (a *Agent) Phase() Phase { return a.tc.State.Phase() }

// Start leases a worker goroutine and begins bootstrap.
func (a *Agent) Start(ctx context.Context) error {
	return a.worker.Start(ctx)
}

// Stop requests cooperative shutdown and waits for the worker to exit
// or ctx to expire.
func (a *Agent) Stop(ctx context.Context) error {
	return a.worker.Stop(ctx)
}

// Alive reports whether the worker loop is running.
func (a *Agent) Alive() bool { return a.worker.Alive() }

// Done returns a channel closed when the worker loop has exited.
func (a *Agent) Done() <-chan struct{} { return a.worker.Done() }

// PostUserMessage enqueues a user message, optionally with context
// file attachments. Blocks if the user-message queue is full.
func (a *Agent) PostUserMessage(content string, attachments ...models.ContextFile) error {
	return a.tc.State.Queues.EnqueueUserMessage(UserMessageReceived{Message: models.Message{
		Role:        models.RoleUser,
		Content:     content,
		Attachments: attachments,
	}})
}

// PostInterAgentMessage enqueues a message from another agent.
func (a *Agent) PostInterAgentMessage(senderID, senderName, content string) error {
	return a.tc.State.Queues.EnqueueInterAgentMessage(InterAgentMessageReceived{
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
	})
}

// PostToolApproval enqueues a verdict for a pending tool invocation.
func (a *Agent) PostToolApproval(invocationID string, approved bool, reason string) error {
	return a.tc.State.Queues.EnqueueApproval(ToolExecutionApproval{
		InvocationID: invocationID,
		Approved:     approved,
		Reason:       reason,
	})
}

// Subscribe registers a subscriber for one external event kind.
func (a *Agent) Subscribe(kind string, fn Subscriber) {
	a.tc.Notifier.Subscribe(kind, fn)
}

// SubscribeAll registers a subscriber for every external event.
func (a *Agent) SubscribeAll(fn Subscriber) {
	a.tc.Notifier.SubscribeAll(fn)
}

// Schedule posts fn onto the agent's worker goroutine and returns a
// future resolvable from any goroutine. Use it for work that must see
// consistent runtime state.
func (a *Agent) Schedule(fn func(ctx context.Context, tc *Context) (any, error)) (*Future, error) {
	return a.worker.Schedule(fn)
}

// OnDone registers a callback invoked after the worker loop exits.
func (a *Agent) OnDone(cb func()) {
	a.worker.OnDone(cb)
}

// RuntimeContext exposes the runtime context that tools and
// processors receive. Mutating runtime state through it from outside
// the worker goroutine is not safe; prefer Schedule.
func (a *Agent) RuntimeContext() *Context {
	return a.tc
}

// History returns a snapshot of the conversation history. Intended
// for inspection after the agent is idle or stopped; calling it while
// a turn is in flight may observe a partial turn.
func (a *Agent) History() []models.Message {
	future, err := a.worker.Schedule(func(ctx context.Context, tc *Context) (any, error) {
		return append([]models.Message(nil), tc.State.History...), nil
	})
	if err != nil {
		return nil
	}
	value, err := future.Wait(context.Background())
	if err != nil {
		return nil
	}
	history, _ := value.([]models.Message)
	return history
}
