package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// QueueName identifies one of the logical sub-queues.
type QueueName string

const (
	QueueUserMessage           QueueName = "user_message"
	QueueInterAgentMessage     QueueName = "inter_agent_message"
	QueueToolResult            QueueName = "tool_result"
	QueueToolInvocationRequest QueueName = "tool_invocation_request"
	QueueApproval              QueueName = "approval"
	QueueInternalSystem        QueueName = "internal_system"
)

// roundRobinOrder is the dequeue rotation for the non-priority
// queues. QueueInternalSystem is always drained first and is not part
// of the rotation.
var roundRobinOrder = []QueueName{
	QueueUserMessage,
	QueueInterAgentMessage,
	QueueToolResult,
	QueueToolInvocationRequest,
	QueueApproval,
}

var (
	// ErrQueueTimeout is returned by GetNextEvent when no event
	// arrived within the poll timeout.
	ErrQueueTimeout = errors.New("agent: no input event within timeout")

	// ErrQueuesClosed is returned once the queue manager has been
	// closed.
	ErrQueuesClosed = errors.New("agent: input queues closed")
)

// DefaultQueueBound is the per-sub-queue capacity. Producers that
// exceed it block until the worker drains.
const DefaultQueueBound = 256

// InputQueues multiplexes the agent's inbound event streams. All
// Enqueue* methods are safe for concurrent use from any goroutine;
// GetNextEvent is called only by the worker.
//
// Dequeue policy: the internal_system queue is drained with priority
// so control events (AgentStopped, AgentError, AgentReady) cannot be
// starved; the remaining queues are served round-robin. Events within
// one sub-queue are FIFO.
type InputQueues struct {
	mu     sync.Mutex
	cond   *sync.Cond
	bound  int
	queues map[QueueName][]Event
	rrNext int
	closed bool
	logger *slog.Logger
}

// NewInputQueues creates the queue manager. A bound <= 0 selects
// DefaultQueueBound.
func NewInputQueues(bound int, logger *slog.Logger) *InputQueues {
	if bound <= 0 {
		bound = DefaultQueueBound
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &InputQueues{
		bound:  bound,
		queues: make(map[QueueName][]Event, 6),
		logger: logger,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// EnqueueUserMessage queues a user message event.
func (q *InputQueues) EnqueueUserMessage(ev UserMessageReceived) error {
	return q.enqueue(QueueUserMessage, ev)
}

// EnqueueInterAgentMessage queues a message from another agent.
func (q *InputQueues) EnqueueInterAgentMessage(ev InterAgentMessageReceived) error {
	return q.enqueue(QueueInterAgentMessage, ev)
}

// EnqueueToolResult queues a tool execution outcome.
func (q *InputQueues) EnqueueToolResult(ev ToolResultEvent) error {
	return q.enqueue(QueueToolResult, ev)
}

// EnqueueToolInvocationRequest queues a pending, approved, or
// execute-stage tool invocation event.
func (q *InputQueues) EnqueueToolInvocationRequest(ev Event) error {
	switch ev.EventType() {
	case EventTypePendingToolInvocation, EventTypeApprovedToolInvocation, EventTypeExecuteToolInvocation:
		return q.enqueue(QueueToolInvocationRequest, ev)
	}
	return errors.New("agent: event is not a tool invocation request")
}

// EnqueueApproval queues a tool execution approval verdict.
func (q *InputQueues) EnqueueApproval(ev ToolExecutionApproval) error {
	return q.enqueue(QueueApproval, ev)
}

// EnqueueInternal queues a control event with duplicate suppression:
// a control event whose type is already waiting is dropped, so two
// AgentStopped posts collapse into one. The scan and the append happen
// under one lock so concurrent posts cannot both land.
func (q *InputQueues) EnqueueInternal(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueLocked(QueueInternalSystem, ev, ev.EventType().IsControl())
}

// EnqueueLLMUserMessage queues the composed LLM user message. It
// rides the user_message sub-queue so prompt events keep FIFO order
// with the messages that produced them.
func (q *InputQueues) EnqueueLLMUserMessage(ev LLMUserMessageReady) error {
	return q.enqueue(QueueUserMessage, ev)
}

// EnqueueLLMCompleteResponse queues the accumulated LLM response.
func (q *InputQueues) EnqueueLLMCompleteResponse(ev LLMCompleteResponseReceived) error {
	return q.enqueue(QueueUserMessage, ev)
}

func (q *InputQueues) enqueue(name QueueName, ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueLocked(name, ev, false)
}

// enqueueLocked appends under the held lock. The duplicate scan runs
// on every wakeup, since the queue contents change while blocked on a
// full sub-queue.
func (q *InputQueues) enqueueLocked(name QueueName, ev Event, dedupe bool) error {
	for {
		if q.closed {
			return ErrQueuesClosed
		}
		if dedupe {
			for _, queued := range q.queues[name] {
				if queued.EventType() == ev.EventType() {
					q.logger.Debug("duplicate control event suppressed", "event_type", ev.EventType().String())
					return nil
				}
			}
		}
		if len(q.queues[name]) < q.bound {
			break
		}
		q.cond.Wait()
	}
	q.queues[name] = append(q.queues[name], ev)
	q.cond.Broadcast()
	return nil
}

// GetNextEvent blocks until an event is available, the timeout
// elapses, the context is cancelled, or the queues are closed. It
// returns the event together with the sub-queue it came from.
func (q *InputQueues) GetNextEvent(ctx context.Context, timeout time.Duration) (Event, QueueName, error) {
	deadline := time.Now().Add(timeout)
	stop := context.AfterFunc(ctx, func() {
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if ev, name, ok := q.nextLocked(); ok {
			q.cond.Broadcast()
			return ev, name, nil
		}
		if q.closed {
			return nil, "", ErrQueuesClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, "", ErrQueueTimeout
		}
		timer := time.AfterFunc(remaining, func() {
			q.cond.Broadcast()
		})
		q.cond.Wait()
		timer.Stop()
	}
}

func (q *InputQueues) nextLocked() (Event, QueueName, bool) {
	if ev, ok := q.popLocked(QueueInternalSystem); ok {
		return ev, QueueInternalSystem, true
	}
	for i := 0; i < len(roundRobinOrder); i++ {
		name := roundRobinOrder[(q.rrNext+i)%len(roundRobinOrder)]
		if ev, ok := q.popLocked(name); ok {
			q.rrNext = (q.rrNext + i + 1) % len(roundRobinOrder)
			return ev, name, true
		}
	}
	return nil, "", false
}

func (q *InputQueues) popLocked(name QueueName) (Event, bool) {
	events := q.queues[name]
	if len(events) == 0 {
		return nil, false
	}
	ev := events[0]
	q.queues[name] = events[1:]
	return ev, true
}

// Empty reports whether every sub-queue is drained.
func (q *InputQueues) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, events := range q.queues {
		if len(events) > 0 {
			return false
		}
	}
	return true
}

// Len returns the depth of one sub-queue.
func (q *InputQueues) Len(name QueueName) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[name])
}

// Close wakes all waiters and rejects further enqueues. Events
// already queued remain drainable.
func (q *InputQueues) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
