package team

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/loomlabs/loom/internal/agent"
)

// MemberResolver maps a team node name to the agent that receives
// messages for it. Sub-team nodes resolve to their coordinator.
type MemberResolver func(name string) (*agent.Agent, bool)

// TaskNotifier pushes task-assignment notifications to member agents
// in event-driven mode. It watches the board and delivers exactly one
// inter-agent message per assigned task; unassigned tasks stay on the
// board silently.
type TaskNotifier struct {
	teamName string
	resolve  MemberResolver
	logger   *slog.Logger

	mu       sync.Mutex
	notified map[string]struct{}
}

// NewTaskNotifier creates the notifier and attaches it to the board.
func NewTaskNotifier(teamName string, board *TaskBoard, resolve MemberResolver, logger *slog.Logger) *TaskNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &TaskNotifier{
		teamName: teamName,
		resolve:  resolve,
		logger:   logger,
		notified: make(map[string]struct{}),
	}
	board.Watch(n.onTaskPublished)
	return n
}

func (n *TaskNotifier) onTaskPublished(task Task) {
	if task.AssignedTo == "" {
		return
	}

	n.mu.Lock()
	if _, done := n.notified[task.ID]; done {
		n.mu.Unlock()
		return
	}
	n.notified[task.ID] = struct{}{}
	n.mu.Unlock()

	target, ok := n.resolve(task.AssignedTo)
	if !ok {
		n.logger.Warn("task assigned to unknown agent",
			"task_id", task.ID, "assigned_to", task.AssignedTo)
		return
	}

	content := fmt.Sprintf("You have been assigned a task.\nTask ID: %s\nTitle: %s", task.ID, task.Title)
	if task.Description != "" {
		content += "\nDescription: " + task.Description
	}
	if err := target.PostInterAgentMessage(n.teamName, n.teamName, content); err != nil {
		n.logger.Error("task notification delivery failed",
			"task_id", task.ID, "assigned_to", task.AssignedTo, "error", err)
	}
}
