package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/loomlabs/loom/internal/agent"
)

// defaultEventQueueBound caps the team event channel.
const defaultEventQueueBound = 64

// ErrTeamNotRunning is returned by operations on a team whose loop has
// not started or has exited.
var ErrTeamNotRunning = errors.New("team: not running")

// Team runs a coordinator and member agents over a shared task board.
// Its event loop mirrors the agent worker at one level of aggregation:
// dequeue a team event, fold it into the derived status, dispatch.
type Team struct {
	cfg      *Config
	deps     agent.Deps
	logger   *slog.Logger
	registry *agent.ContextRegistry
	status   *StatusManager

	board         *TaskBoard
	taskNotifier  *TaskNotifier
	sharedContext map[string]any
	agents        map[string]*agent.Agent
	subteams      map[string]*Team
	coordinator   *agent.Agent

	events  chan Event
	stopReq chan struct{}
	cancel  context.CancelFunc
	started atomic.Bool
	alive   atomic.Bool
	done    chan struct{}
}

// New validates the config and assembles the team. Agents are not
// created until Start.
func New(cfg *Config, deps agent.Deps) (*Team, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NotificationMode == "" {
		cfg.NotificationMode = NotifySystemEventDriven
	}
	bound := cfg.QueueBound
	if bound <= 0 {
		bound = defaultEventQueueBound
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("team", cfg.Name)

	registry := deps.ContextRegistry
	if registry == nil {
		registry = agent.NewContextRegistry()
	}

	return &Team{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		registry: registry,
		status:   NewStatusManager(cfg.Name, logger),
		agents:   make(map[string]*agent.Agent, len(cfg.Nodes)),
		subteams: make(map[string]*Team),
		events:   make(chan Event, bound),
		stopReq:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Status returns the team's derived status.
func (t *Team) Status() Status { return t.status.Status() }

// Board returns the shared task board. Nil before Start.
func (t *Team) Board() *TaskBoard { return t.board }

// Registry returns the agent registry the team's members live in.
func (t *Team) Registry() *agent.ContextRegistry { return t.registry }

// Agent returns a member agent by name. Nil before Start.
func (t *Team) Agent(name string) (*agent.Agent, bool) {
	a, ok := t.agents[name]
	return a, ok
}

// SubTeam returns a nested team node by name. Nil before Start.
func (t *Team) SubTeam(name string) (*Team, bool) {
	sub, ok := t.subteams[name]
	return sub, ok
}

// resolveMember maps a node name to the agent that receives messages
// for it. Sub-team nodes resolve to their coordinator; names not on
// this team fall back to the shared registry.
func (t *Team) resolveMember(name string) (*agent.Agent, bool) {
	if a, ok := t.agents[name]; ok && !a.Phase().IsTerminal() {
		return a, true
	}
	if sub, ok := t.subteams[name]; ok && sub.coordinator != nil {
		return sub.coordinator, true
	}
	return t.registry.Resolve(name)
}

// SubscribeStatus registers a subscriber for team status changes.
func (t *Team) SubscribeStatus(fn StatusSubscriber) {
	t.status.Subscribe(fn)
}

// Start bootstraps the team and begins the event loop on a pool
// goroutine. Calling Start twice is an error.
func (t *Team) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return fmt.Errorf("team %q: already started", t.cfg.Name)
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.alive.Store(true)

	pool := t.deps.Pool
	if pool == nil {
		return fmt.Errorf("team %q: deps require a worker pool", t.cfg.Name)
	}
	pool.Go(func() { t.run(runCtx) })
	return nil
}

// PostUserMessage delivers a user message to the coordinator through
// the team event loop.
func (t *Team) PostUserMessage(content string) error {
	if !t.alive.Load() {
		return ErrTeamNotRunning
	}
	t.post(Event{Kind: EventProcessUserMessage, Payload: map[string]any{"content": content}})
	return nil
}

// Stop requests cooperative shutdown and waits for the loop to exit
// or ctx to expire. The request rides a dedicated signal channel, so a
// flooded event queue cannot drop it.
func (t *Team) Stop(ctx context.Context) error {
	if !t.started.Load() {
		return ErrTeamNotRunning
	}
	select {
	case t.stopReq <- struct{}{}:
	default:
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		t.logger.Warn("team stop timed out")
		t.alive.Store(false)
		return ctx.Err()
	}
}

// Done returns a channel closed when the event loop has exited.
func (t *Team) Done() <-chan struct{} { return t.done }

// OnDoneCleanup invokes cb once the event loop has exited.
func (t *Team) OnDoneCleanup(cb func()) {
	go func() {
		<-t.done
		cb()
	}()
}

// post enqueues a team event without blocking the caller; a full
// queue drops the event with a log line rather than deadlocking a
// subscriber callback.
func (t *Team) post(ev Event) {
	select {
	case t.events <- ev:
	default:
		t.logger.Warn("team event queue full, dropping event", "kind", string(ev.Kind))
	}
}

func (t *Team) run(ctx context.Context) {
	defer t.finish()

	t.status.Apply(Event{Kind: EventBootstrapStarted})
	if err := t.bootstrap(ctx); err != nil {
		t.logger.Error("team bootstrap failed", "error", err)
		t.status.Apply(Event{Kind: EventError, Payload: map[string]any{"error": err.Error()}})
		t.stopAgents(context.WithoutCancel(ctx))
		return
	}
	t.status.Apply(Event{Kind: EventReady})

	for {
		select {
		case <-t.stopReq:
			t.status.Apply(Event{Kind: EventShutdownRequested})
			t.shutdown(ctx)
			return
		case ev := <-t.events:
			t.status.Apply(ev)
			if t.handle(ctx, ev) {
				return
			}
		case <-ctx.Done():
			t.logger.Info("team context cancelled")
			t.shutdown(context.WithoutCancel(ctx))
			return
		}
	}
}

// handle dispatches one team event. Returns true when the loop should
// exit.
func (t *Team) handle(ctx context.Context, ev Event) bool {
	switch ev.Kind {
	case EventProcessUserMessage:
		content, _ := ev.Payload["content"].(string)
		if err := t.coordinator.PostUserMessage(content); err != nil {
			t.logger.Error("coordinator message delivery failed", "error", err)
			t.status.Apply(Event{Kind: EventError, Payload: map[string]any{"error": err.Error()}})
		}
		return false
	case EventShutdownRequested:
		t.shutdown(ctx)
		return true
	case EventError:
		t.logger.Error("team error event", "payload", ev.Payload)
		return false
	default:
		return false
	}
}

func (t *Team) shutdown(ctx context.Context) {
	t.stopAgents(ctx)
	t.status.Apply(Event{Kind: EventStopped})
}

func (t *Team) stopAgents(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for name, sub := range t.subteams {
		if err := sub.Stop(stopCtx); err != nil {
			t.logger.Error("sub-team stop failed", "team", name, "error", err)
		}
	}
	for name, member := range t.agents {
		if err := member.Stop(stopCtx); err != nil {
			t.logger.Error("member stop failed", "agent", name, "error", err)
		}
	}
}

func (t *Team) finish() {
	t.cancel()
	t.alive.Store(false)
	close(t.done)
}
