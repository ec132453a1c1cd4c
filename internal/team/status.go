package team

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loomlabs/loom/pkg/models"
)

// Status is the derived operational state of a team.
type Status string

const (
	StatusUninitialized    Status = "uninitialized"
	StatusBootstrapping    Status = "bootstrapping"
	StatusIdle             Status = "idle"
	StatusProcessing       Status = "processing"
	StatusShuttingDown     Status = "shutting_down"
	StatusShutdownComplete Status = "shutdown_complete"
	StatusError            Status = "error"
)

// EventKind names the team lifecycle events the status is derived
// from.
type EventKind string

const (
	EventBootstrapStarted   EventKind = "team_bootstrap_started"
	EventReady              EventKind = "team_ready"
	EventProcessUserMessage EventKind = "team_process_user_message"
	EventShutdownRequested  EventKind = "team_shutdown_requested"
	EventStopped            EventKind = "team_stopped"
	EventError              EventKind = "team_error"
)

// Event is one entry in the team's lifecycle stream.
type Event struct {
	Kind    EventKind
	Payload map[string]any
}

// statusFor is the pure derivation from event to status. Unknown
// events leave the status unchanged.
func statusFor(kind EventKind) (Status, bool) {
	switch kind {
	case EventBootstrapStarted:
		return StatusBootstrapping, true
	case EventReady:
		return StatusIdle, true
	case EventProcessUserMessage:
		return StatusProcessing, true
	case EventShutdownRequested:
		return StatusShuttingDown, true
	case EventStopped:
		return StatusShutdownComplete, true
	case EventError:
		return StatusError, true
	}
	return "", false
}

// StatusSubscriber receives team status change events.
type StatusSubscriber func(models.AgentEvent)

// StatusManager derives the team status from the event stream and
// fans changes out to subscribers. Applying the same event twice is a
// no-op for the second application.
type StatusManager struct {
	teamName string
	logger   *slog.Logger
	sequence atomic.Uint64

	mu          sync.RWMutex
	status      Status
	subscribers []StatusSubscriber
}

// NewStatusManager creates the manager at StatusUninitialized.
func NewStatusManager(teamName string, logger *slog.Logger) *StatusManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusManager{
		teamName: teamName,
		logger:   logger,
		status:   StatusUninitialized,
	}
}

// Status returns the current derived status.
func (m *StatusManager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe registers a subscriber for status changes.
func (m *StatusManager) Subscribe(fn StatusSubscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Apply folds one event into the status. Returns the new status and
// whether it changed.
func (m *StatusManager) Apply(ev Event) (Status, bool) {
	next, known := statusFor(ev.Kind)
	if !known {
		m.logger.Warn("unknown team event", "kind", string(ev.Kind))
		return m.Status(), false
	}

	m.mu.Lock()
	if m.status == next {
		m.mu.Unlock()
		return next, false
	}
	old := m.status
	m.status = next
	subscribers := append([]StatusSubscriber(nil), m.subscribers...)
	m.mu.Unlock()

	payload := map[string]any{
		"old_status": string(old),
		"new_status": string(next),
	}
	for k, v := range ev.Payload {
		payload[k] = v
	}
	event := models.AgentEvent{
		Kind:      "team_status_" + string(next),
		AgentName: m.teamName,
		Sequence:  m.sequence.Add(1),
		Time:      time.Now(),
		Payload:   payload,
	}
	for _, fn := range subscribers {
		m.dispatch(fn, event)
	}
	return next, true
}

func (m *StatusManager) dispatch(fn StatusSubscriber, event models.AgentEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("team status subscriber panicked",
				"kind", event.Kind, "panic", r)
		}
	}()
	fn(event)
}
