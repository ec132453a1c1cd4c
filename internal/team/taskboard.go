package team

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus tracks one task's lifecycle on the board.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
)

// Task is one unit of delegated work.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Status      TaskStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BoardWatcher is notified once per newly published task.
type BoardWatcher func(Task)

// TaskBoard is the team's shared plan. The coordinator publishes
// tasks; members update status as they work. Watchers fire once per
// task, on publication.
type TaskBoard struct {
	mu       sync.RWMutex
	order    []string
	tasks    map[string]Task
	watchers []BoardWatcher
}

// NewTaskBoard creates an empty board.
func NewTaskBoard() *TaskBoard {
	return &TaskBoard{tasks: make(map[string]Task)}
}

// Watch registers a watcher for future task publications.
func (b *TaskBoard) Watch(fn BoardWatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, fn)
}

// Publish appends tasks to the plan, assigning ids and timestamps,
// and notifies watchers. Returns the stored tasks.
func (b *TaskBoard) Publish(tasks []Task) []Task {
	now := time.Now()
	stored := make([]Task, 0, len(tasks))

	b.mu.Lock()
	watchers := append([]BoardWatcher(nil), b.watchers...)
	for _, task := range tasks {
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		if task.Status == "" {
			task.Status = TaskPending
		}
		task.CreatedAt = now
		task.UpdatedAt = now
		b.order = append(b.order, task.ID)
		b.tasks[task.ID] = task
		stored = append(stored, task)
	}
	b.mu.Unlock()

	for _, task := range stored {
		for _, fn := range watchers {
			fn(task)
		}
	}
	return stored
}

// UpdateStatus moves one task to a new status, recording an optional
// result.
func (b *TaskBoard) UpdateStatus(taskID string, status TaskStatus, result string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[taskID]
	if !ok {
		return fmt.Errorf("team: unknown task %q", taskID)
	}
	task.Status = status
	if result != "" {
		task.Result = result
	}
	task.UpdatedAt = time.Now()
	b.tasks[taskID] = task
	return nil
}

// Tasks returns the plan in publication order.
func (b *TaskBoard) Tasks() []Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Task, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.tasks[id])
	}
	return out
}

// Get returns one task by id.
func (b *TaskBoard) Get(taskID string) (Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	task, ok := b.tasks[taskID]
	return task, ok
}
