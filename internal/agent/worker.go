package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loomlabs/loom/internal/workerpool"
)

// DefaultPollTimeout is the worker's dequeue poll interval. Short
// enough that idle detection and stop requests stay responsive.
const DefaultPollTimeout = 100 * time.Millisecond

// ErrWorkerNotRunning is returned when scheduling or stopping a worker
// that is not alive.
var ErrWorkerNotRunning = errors.New("agent: worker not running")

// Future is the handle returned by Schedule. It resolves once the
// scheduled function has run on the worker goroutine.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done returns a channel closed when the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(value any, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// scheduledTask rides the internal queue so cross-goroutine callers
// can run a function on the worker's goroutine. The worker intercepts
// it before dispatch.
type scheduledTask struct {
	fn     func(ctx context.Context, tc *Context) (any, error)
	future *Future
}

func (*scheduledTask) EventType() EventType { return EventTypeGeneric }

// Worker owns one agent's execution. It leases a goroutine from the
// shared bounded pool, runs the bootstrap sequence, then the poll and
// dispatch loop until stopped. All agent state mutation happens on
// this goroutine.
type Worker struct {
	tc           *Context
	dispatcher   *Dispatcher
	bootstrapper *Bootstrapper
	pool         *workerpool.Pool
	pollTimeout  time.Duration

	cancel  context.CancelFunc
	alive   atomic.Bool
	started atomic.Bool
	done    chan struct{}

	mu            sync.Mutex
	doneCallbacks []func()
}

// NewWorker builds the worker for one agent context.
func NewWorker(tc *Context, pool *workerpool.Pool) *Worker {
	timeout := tc.Config.PollTimeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Worker{
		tc:           tc,
		dispatcher:   NewDispatcher(tc),
		bootstrapper: NewBootstrapper(tc.Config),
		pool:         pool,
		pollTimeout:  timeout,
		done:         make(chan struct{}),
	}
}

// Start leases a pool goroutine and begins the run loop. Calling Start
// twice is an error.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("agent %q: worker already started", w.tc.Config.Name)
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.alive.Store(true)
	w.pool.Go(func() { w.run(runCtx) })
	return nil
}

// Alive reports whether the run loop is still executing (or was
// abandoned by a timed-out Stop).
func (w *Worker) Alive() bool { return w.alive.Load() }

// Done returns a channel closed when the run loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// OnDone registers a callback invoked after the run loop exits.
// Callbacks registered after exit run immediately.
func (w *Worker) OnDone(cb func()) {
	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		cb()
		return
	default:
	}
	w.doneCallbacks = append(w.doneCallbacks, cb)
	w.mu.Unlock()
}

// Schedule posts fn onto the worker goroutine and returns a future the
// caller can await from any goroutine.
func (w *Worker) Schedule(fn func(ctx context.Context, tc *Context) (any, error)) (*Future, error) {
	if !w.alive.Load() {
		return nil, ErrWorkerNotRunning
	}
	task := &scheduledTask{fn: fn, future: newFuture()}
	if err := w.tc.State.Queues.EnqueueInternal(task); err != nil {
		return nil, err
	}
	return task.future, nil
}

// Stop requests cooperative shutdown and waits for the loop to exit.
// The loop finishes the event currently mid-dispatch, runs the
// shutdown sequence, and exits at its next poll boundary. If ctx
// expires first, the goroutine is abandoned (logged) and the worker is
// marked not alive; resources are still released exactly once because
// the shutdown sequence runs inside the loop.
func (w *Worker) Stop(ctx context.Context) error {
	if !w.started.Load() {
		return ErrWorkerNotRunning
	}
	if queues := w.tc.State.Queues; queues != nil {
		if err := queues.EnqueueInternal(AgentStopped{}); err != nil && !errors.Is(err, ErrQueuesClosed) {
			return err
		}
	} else {
		// Bootstrap never created the queues; cancel the loop directly.
		w.cancel()
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.tc.Logger.Warn("stop timed out, abandoning worker goroutine")
		w.alive.Store(false)
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.finish()

	if ok := w.bootstrapper.Run(ctx, w.tc); !ok {
		// Phase is already Error; release what bootstrap acquired.
		ShutdownSequencer{}.Run(context.WithoutCancel(ctx), w.tc)
		return
	}

	queues := w.tc.State.Queues
	for {
		ev, from, err := queues.GetNextEvent(ctx, w.pollTimeout)
		if err != nil {
			switch {
			case errors.Is(err, ErrQueueTimeout):
				w.maybeIdle(ctx)
				continue
			case errors.Is(err, ErrQueuesClosed):
				w.shutdown(context.WithoutCancel(ctx))
				return
			default:
				// Context cancelled from outside the stop protocol.
				w.tc.Logger.Info("worker context cancelled", "error", err)
				w.shutdown(context.WithoutCancel(ctx))
				return
			}
		}

		switch e := ev.(type) {
		case *scheduledTask:
			w.runTask(ctx, e)
		case AgentStopped:
			w.shutdown(ctx)
			return
		case BootstrapAgent:
			w.tc.Logger.Debug("bootstrap request ignored, agent already bootstrapped")
		default:
			w.dispatcher.Dispatch(ctx, ev, from)
		}
		runtime.Gosched()
	}
}

func (w *Worker) runTask(ctx context.Context, task *scheduledTask) {
	defer func() {
		if r := recover(); r != nil {
			task.future.resolve(nil, fmt.Errorf("scheduled task panicked: %v", r))
		}
	}()
	value, err := task.fn(ctx, w.tc)
	task.future.resolve(value, err)
}

// maybeIdle closes a finished turn. Awaiting-approval is excluded: the
// agent sits in that phase until a verdict arrives, however long that
// takes.
func (w *Worker) maybeIdle(ctx context.Context) {
	w.observeQueueDepth()
	phase := w.tc.State.Phase()
	if !phase.IsProcessing() || phase == PhaseAwaitingToolApproval {
		return
	}
	if !w.tc.State.Queues.Empty() || len(w.tc.State.PendingApprovals) > 0 {
		return
	}
	w.tc.Phases.NotifyIdle(ctx)
}

func (w *Worker) observeQueueDepth() {
	if w.tc.Metrics == nil {
		return
	}
	for _, name := range roundRobinOrder {
		w.tc.Metrics.QueueDepth.WithLabelValues(string(name)).Set(float64(w.tc.State.Queues.Len(name)))
	}
	w.tc.Metrics.QueueDepth.WithLabelValues(string(QueueInternalSystem)).Set(float64(w.tc.State.Queues.Len(QueueInternalSystem)))
}

func (w *Worker) shutdown(ctx context.Context) {
	w.tc.Phases.NotifyShutdownInitiated(ctx)
	ShutdownSequencer{}.Run(ctx, w.tc)
	w.tc.Phases.NotifyFinalShutdownComplete(ctx)
	w.tc.State.Queues.Close()
}

func (w *Worker) finish() {
	w.cancel()
	w.alive.Store(false)

	w.mu.Lock()
	callbacks := w.doneCallbacks
	w.doneCallbacks = nil
	close(w.done)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}
