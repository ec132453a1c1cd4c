package team

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomlabs/loom/internal/agent"
	"github.com/loomlabs/loom/pkg/models"
)

// teamPlaceholder in an agent prompt is replaced with the manifest of
// the other team members.
const teamPlaceholder = "{{team}}"

// bootstrap runs the ordered team startup sequence: board creation,
// task-notifier wiring, manifest injection, per-node config
// finalization, and agent spawning (coordinator last, so members are
// resolvable by the time it can delegate).
func (t *Team) bootstrap(ctx context.Context) error {
	t.board = NewTaskBoard()
	t.sharedContext = map[string]any{
		"team_name":  t.cfg.Name,
		"task_board": t.board,
	}

	if t.cfg.NotificationMode != NotifyAgentManual {
		t.taskNotifier = NewTaskNotifier(t.cfg.Name, t.board, t.resolveMember, t.logger)
	}

	prompts := t.prepareAgentPrompts()

	for _, node := range t.cfg.memberSpawnOrder() {
		var err error
		if node.Team != nil {
			err = t.spawnSubTeam(ctx, node)
		} else {
			err = t.spawnNode(ctx, node, prompts)
		}
		if err != nil {
			return err
		}
	}
	coordinator := t.cfg.Coordinator()
	if err := t.spawnNode(ctx, coordinator, prompts); err != nil {
		return err
	}
	t.coordinator = t.agents[coordinator.Agent.Name]

	// Coordinator idling back means the current delegation round is
	// planned; reflect that in the team status.
	t.coordinator.Subscribe("agent_status_idle_entered", func(_ models.AgentEvent) {
		t.post(Event{Kind: EventReady})
	})
	return nil
}

// prepareAgentPrompts builds, for every node whose prompt contains the
// team placeholder, the manifest listing all other nodes.
func (t *Team) prepareAgentPrompts() map[string]string {
	prompts := make(map[string]string, len(t.cfg.Nodes))
	for _, node := range t.cfg.Nodes {
		if node.Agent == nil {
			// Sub-team prompts are prepared by the sub-team's own
			// bootstrap.
			continue
		}
		prompt := node.Agent.SystemPrompt
		if !strings.Contains(prompt, teamPlaceholder) {
			continue
		}
		manifest := t.manifestFor(node.Agent.Name)
		prompts[node.Agent.Name] = strings.ReplaceAll(prompt, teamPlaceholder, manifest)
	}
	return prompts
}

// manifestFor lists every node except the named one.
func (t *Team) manifestFor(exclude string) string {
	var sb strings.Builder
	for _, node := range t.cfg.Nodes {
		if node.Name() == exclude {
			continue
		}
		fmt.Fprintf(&sb, "- name: %s\n", node.Name())
		if node.Team != nil {
			sb.WriteString("  role: team\n")
			continue
		}
		if node.Agent.Role != "" {
			fmt.Fprintf(&sb, "  role: %s\n", node.Agent.Role)
		}
		if node.Agent.Description != "" {
			fmt.Fprintf(&sb, "  description: %s\n", node.Agent.Description)
		}
	}
	if sb.Len() == 0 {
		return "(no other team members)"
	}
	return strings.TrimRight(sb.String(), "\n")
}

// finalizeNodeConfig copies a node's agent config and layers the
// team-level adjustments onto the copy.
func (t *Team) finalizeNodeConfig(node *NodeConfig, prompts map[string]string) *agent.Config {
	cfg := node.Agent.Clone()

	if t.cfg.UseXMLToolFormat != nil {
		v := *t.cfg.UseXMLToolFormat
		cfg.UseXMLToolFormat = &v
	}
	if cfg.InitialCustomData == nil {
		cfg.InitialCustomData = make(map[string]any, 1)
	}
	cfg.InitialCustomData["team_context"] = t.sharedContext
	if prepared, ok := prompts[cfg.Name]; ok {
		cfg.SystemPrompt = prepared
	}

	cfg.Tools = append(cfg.Tools, NewUpdateTaskStatusTool(t.board))
	if node.Coordinator {
		cfg.Tools = append(cfg.Tools, NewPublishPlanTool(t.board))
		if t.cfg.NotificationMode == NotifyAgentManual {
			cfg.Tools = append(cfg.Tools, NewSendMessageTool(t.resolveMember, cfg.Name))
		}
	}
	return cfg
}

func (t *Team) spawnNode(ctx context.Context, node *NodeConfig, prompts map[string]string) error {
	cfg := t.finalizeNodeConfig(node, prompts)
	deps := t.deps
	deps.ContextRegistry = t.registry

	member, err := agent.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("team %q: build agent %q: %w", t.cfg.Name, cfg.Name, err)
	}
	if err := member.Start(ctx); err != nil {
		return fmt.Errorf("team %q: start agent %q: %w", t.cfg.Name, cfg.Name, err)
	}
	t.agents[cfg.Name] = member
	return nil
}

// spawnSubTeam bootstraps a nested team node and waits for it to reach
// idle, so tasks assigned to the node resolve to a live coordinator.
func (t *Team) spawnSubTeam(ctx context.Context, node *NodeConfig) error {
	subCfg := node.Team
	if subCfg.UseXMLToolFormat == nil && t.cfg.UseXMLToolFormat != nil {
		clone := *subCfg
		v := *t.cfg.UseXMLToolFormat
		clone.UseXMLToolFormat = &v
		subCfg = &clone
	}

	deps := t.deps
	deps.ContextRegistry = t.registry
	deps.Logger = t.logger

	sub, err := New(subCfg, deps)
	if err != nil {
		return fmt.Errorf("team %q: build sub-team %q: %w", t.cfg.Name, subCfg.Name, err)
	}

	statusChanged := make(chan struct{}, 1)
	sub.SubscribeStatus(func(_ models.AgentEvent) {
		select {
		case statusChanged <- struct{}{}:
		default:
		}
	})
	if err := sub.Start(ctx); err != nil {
		return fmt.Errorf("team %q: start sub-team %q: %w", t.cfg.Name, subCfg.Name, err)
	}
	for {
		switch sub.Status() {
		case StatusIdle:
			t.subteams[node.Name()] = sub
			return nil
		case StatusError, StatusShutdownComplete:
			return fmt.Errorf("team %q: sub-team %q failed to bootstrap", t.cfg.Name, subCfg.Name)
		}
		select {
		case <-statusChanged:
		case <-ctx.Done():
			return fmt.Errorf("team %q: sub-team %q bootstrap: %w", t.cfg.Name, subCfg.Name, ctx.Err())
		}
	}
}
