package team

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomlabs/loom/internal/agent"
)

// PublishPlanTool lets the coordinator publish a task plan onto the
// shared board. In event-driven notification mode, publication alone
// triggers member notification.
type PublishPlanTool struct {
	board *TaskBoard
}

// NewPublishPlanTool binds the tool to a board.
func NewPublishPlanTool(board *TaskBoard) *PublishPlanTool {
	return &PublishPlanTool{board: board}
}

func (t *PublishPlanTool) Name() string { return "publish_task_plan" }

func (t *PublishPlanTool) Description() string {
	return "Publish a plan of tasks to the team task board. Each task may be assigned to a team member by name."
}

func (t *PublishPlanTool) ArgumentSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"tasks": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"title": {"type": "string"},
						"description": {"type": "string"},
						"assigned_to": {"type": "string"}
					},
					"required": ["title"]
				}
			}
		},
		"required": ["tasks"]
	}`)
}

func (t *PublishPlanTool) Execute(ctx context.Context, tc *agent.Context, args map[string]any) (any, error) {
	rawTasks, ok := args["tasks"].([]any)
	if !ok {
		return nil, fmt.Errorf("publish_task_plan: tasks must be a list")
	}
	tasks := make([]Task, 0, len(rawTasks))
	for _, raw := range rawTasks {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("publish_task_plan: each task must be an object")
		}
		title, _ := entry["title"].(string)
		if title == "" {
			return nil, fmt.Errorf("publish_task_plan: task without a title")
		}
		description, _ := entry["description"].(string)
		assignedTo, _ := entry["assigned_to"].(string)
		tasks = append(tasks, Task{Title: title, Description: description, AssignedTo: assignedTo})
	}

	stored := t.board.Publish(tasks)
	tc.Notifier.TodoListUpdated(map[string]any{"tasks": stored})

	ids := make([]string, 0, len(stored))
	for _, task := range stored {
		ids = append(ids, task.ID)
	}
	return fmt.Sprintf("published %d task(s): %v", len(stored), ids), nil
}

// UpdateTaskStatusTool lets any team member move a task through its
// lifecycle and attach a result.
type UpdateTaskStatusTool struct {
	board *TaskBoard
}

// NewUpdateTaskStatusTool binds the tool to a board.
func NewUpdateTaskStatusTool(board *TaskBoard) *UpdateTaskStatusTool {
	return &UpdateTaskStatusTool{board: board}
}

func (t *UpdateTaskStatusTool) Name() string { return "update_task_status" }

func (t *UpdateTaskStatusTool) Description() string {
	return "Update the status of a task on the team task board, optionally recording a result."
}

func (t *UpdateTaskStatusTool) ArgumentSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string"},
			"status": {"type": "string", "enum": ["pending", "in_progress", "done", "failed"]},
			"result": {"type": "string"}
		},
		"required": ["task_id", "status"]
	}`)
}

func (t *UpdateTaskStatusTool) Execute(ctx context.Context, tc *agent.Context, args map[string]any) (any, error) {
	taskID, _ := args["task_id"].(string)
	status, _ := args["status"].(string)
	result, _ := args["result"].(string)
	if err := t.board.UpdateStatus(taskID, TaskStatus(status), result); err != nil {
		return nil, err
	}
	tc.Notifier.TodoListUpdated(map[string]any{"task_id": taskID, "status": status})
	return fmt.Sprintf("task %s -> %s", taskID, status), nil
}

// SendMessageTool lets the coordinator message a team member directly.
// It is installed in manual notification mode, where the system does
// not push task assignments.
type SendMessageTool struct {
	resolve MemberResolver
	sender  string
}

// NewSendMessageTool binds the tool to a member resolver.
func NewSendMessageTool(resolve MemberResolver, sender string) *SendMessageTool {
	return &SendMessageTool{resolve: resolve, sender: sender}
}

func (t *SendMessageTool) Name() string { return "send_message_to_agent" }

func (t *SendMessageTool) Description() string {
	return "Send a message to another agent on the team by name."
}

func (t *SendMessageTool) ArgumentSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"recipient": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["recipient", "content"]
	}`)
}

func (t *SendMessageTool) Execute(ctx context.Context, tc *agent.Context, args map[string]any) (any, error) {
	recipient, _ := args["recipient"].(string)
	content, _ := args["content"].(string)
	if recipient == "" || content == "" {
		return nil, fmt.Errorf("send_message_to_agent: recipient and content are required")
	}
	target, ok := t.resolve(recipient)
	if !ok {
		return nil, fmt.Errorf("send_message_to_agent: no live agent named %q", recipient)
	}
	if err := target.PostInterAgentMessage(t.sender, t.sender, content); err != nil {
		return nil, err
	}
	return fmt.Sprintf("message delivered to %s", recipient), nil
}
