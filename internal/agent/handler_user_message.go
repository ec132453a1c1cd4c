package agent

import (
	"context"
	"fmt"

	"github.com/loomlabs/loom/pkg/models"
)

// handleUserMessage appends the message to history and forwards the
// composed LLM user message onto the queue. Composition is currently
// the identity; attachments ride along on the message itself.
func (d *Dispatcher) handleUserMessage(ctx context.Context, ev UserMessageReceived) error {
	msg := ev.Message
	if msg.Role == "" {
		msg.Role = models.RoleUser
	}
	d.tc.State.History = append(d.tc.State.History, msg)
	d.tc.Logger.Debug("user message accepted",
		"length", len(msg.Content), "attachments", len(msg.Attachments))
	return d.tc.State.Queues.EnqueueLLMUserMessage(LLMUserMessageReady{Message: msg})
}

// handleInterAgentMessage surfaces the message externally and re-enters
// it as a user message so the LLM sees it on the next turn. Sender
// identity is preserved on the message and made visible in the text.
func (d *Dispatcher) handleInterAgentMessage(ctx context.Context, ev InterAgentMessageReceived) error {
	d.tc.Logger.Info("inter-agent message received",
		"sender_id", ev.SenderID, "sender_name", ev.SenderName)
	d.tc.Notifier.InterAgentMessageReceived(ev.SenderID, ev.SenderName, ev.Content)

	msg := models.Message{
		Role:       models.RoleUser,
		Content:    fmt.Sprintf("Message from agent %s:\n%s", ev.SenderName, ev.Content),
		SenderID:   ev.SenderID,
		SenderName: ev.SenderName,
	}
	return d.tc.State.Queues.EnqueueUserMessage(UserMessageReceived{Message: msg})
}
