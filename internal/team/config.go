// Package team implements the multi-agent team runtime: a coordinator
// plus member agents sharing a task board, with manifest injection
// into coordinator prompts and event-driven task notification.
package team

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loomlabs/loom/internal/agent"
)

// NotificationMode selects how members learn about task assignments.
type NotificationMode string

const (
	// NotifySystemEventDriven watches the task board and pushes
	// assignment notifications to target agents automatically.
	NotifySystemEventDriven NotificationMode = "SYSTEM_EVENT_DRIVEN"

	// NotifyAgentManual leaves notification to the coordinator, which
	// uses an explicit messaging tool.
	NotifyAgentManual NotificationMode = "AGENT_MANUAL_NOTIFICATION"
)

// NodeConfig is one node inside a team: either a single agent or a
// nested sub-team. Exactly one of Agent and Team must be set.
type NodeConfig struct {
	// Agent is the node's agent configuration.
	Agent *agent.Config `yaml:"agent,omitempty"`

	// Team nests a whole sub-team as one node. Messages and task
	// assignments addressed to the node reach the sub-team's
	// coordinator.
	Team *Config `yaml:"team,omitempty"`

	// Coordinator marks the node that receives team-level user
	// messages and publishes the task plan. Only agent nodes may be
	// the coordinator.
	Coordinator bool `yaml:"coordinator,omitempty"`

	// DependsOn names nodes that must be spawned before this one.
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// Name returns the node's identity on the team: the agent name or the
// nested team name.
func (n *NodeConfig) Name() string {
	switch {
	case n.Agent != nil:
		return n.Agent.Name
	case n.Team != nil:
		return n.Team.Name
	default:
		return ""
	}
}

// Config describes one team.
type Config struct {
	// Name identifies the team.
	Name string `yaml:"name"`

	// Nodes are the team's members, each an agent or a nested
	// sub-team. Exactly one must be the coordinator.
	Nodes []NodeConfig `yaml:"nodes"`

	// NotificationMode defaults to NotifySystemEventDriven.
	NotificationMode NotificationMode `yaml:"notification_mode,omitempty"`

	// UseXMLToolFormat, when set, overrides the tool-call wire format
	// for every node.
	UseXMLToolFormat *bool `yaml:"use_xml_tool_format,omitempty"`

	// QueueBound caps the team event queue (0 = default).
	QueueBound int `yaml:"queue_bound,omitempty"`
}

// Validate checks structural requirements before bootstrap.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("team: nil config")
	}
	if c.Name == "" {
		return errors.New("team: config requires a name")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("team %q: config requires at least one node", c.Name)
	}
	coordinators := 0
	var coordinatorName string
	seen := make(map[string]struct{}, len(c.Nodes))
	for i := range c.Nodes {
		node := &c.Nodes[i]
		switch {
		case node.Agent != nil && node.Team != nil:
			return fmt.Errorf("team %q: node %q defines both an agent and a sub-team", c.Name, node.Name())
		case node.Agent != nil:
			if err := node.Agent.Validate(); err != nil {
				return fmt.Errorf("team %q: %w", c.Name, err)
			}
		case node.Team != nil:
			if node.Coordinator {
				return fmt.Errorf("team %q: sub-team %q cannot be the coordinator", c.Name, node.Team.Name)
			}
			if err := node.Team.Validate(); err != nil {
				return fmt.Errorf("team %q: %w", c.Name, err)
			}
		default:
			return fmt.Errorf("team %q: node without agent or sub-team config", c.Name)
		}
		if _, dup := seen[node.Name()]; dup {
			return fmt.Errorf("team %q: duplicate node %q", c.Name, node.Name())
		}
		seen[node.Name()] = struct{}{}
		if node.Coordinator {
			coordinators++
			coordinatorName = node.Name()
		}
	}
	if coordinators != 1 {
		return fmt.Errorf("team %q: exactly one coordinator required, found %d", c.Name, coordinators)
	}
	if err := c.validateDependencies(seen, coordinatorName); err != nil {
		return err
	}
	switch c.NotificationMode {
	case "", NotifySystemEventDriven, NotifyAgentManual:
	default:
		return fmt.Errorf("team %q: unknown notification mode %q", c.Name, c.NotificationMode)
	}
	return nil
}

// validateDependencies checks that depends_on entries reference real
// non-coordinator nodes and form no cycle. The coordinator always
// spawns last, so depending on it would deadlock the spawn order.
func (c *Config) validateDependencies(nodes map[string]struct{}, coordinatorName string) error {
	deps := make(map[string][]string, len(c.Nodes))
	for i := range c.Nodes {
		node := &c.Nodes[i]
		for _, dep := range node.DependsOn {
			if dep == node.Name() {
				return fmt.Errorf("team %q: node %q depends on itself", c.Name, dep)
			}
			if dep == coordinatorName {
				return fmt.Errorf("team %q: node %q depends on the coordinator", c.Name, node.Name())
			}
			if _, ok := nodes[dep]; !ok {
				return fmt.Errorf("team %q: node %q depends on unknown node %q", c.Name, node.Name(), dep)
			}
			deps[node.Name()] = append(deps[node.Name()], dep)
		}
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(deps))
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("team %q: dependency cycle through node %q", c.Name, name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for name := range deps {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// memberSpawnOrder returns the non-coordinator nodes ordered so every
// node appears after its dependencies. Call Validate first.
func (c *Config) memberSpawnOrder() []*NodeConfig {
	byName := make(map[string]*NodeConfig, len(c.Nodes))
	for i := range c.Nodes {
		byName[c.Nodes[i].Name()] = &c.Nodes[i]
	}

	ordered := make([]*NodeConfig, 0, len(c.Nodes))
	placed := make(map[string]bool, len(c.Nodes))
	var place func(node *NodeConfig)
	place = func(node *NodeConfig) {
		if node == nil || node.Coordinator || placed[node.Name()] {
			return
		}
		placed[node.Name()] = true
		for _, dep := range node.DependsOn {
			place(byName[dep])
		}
		ordered = append(ordered, node)
	}
	for i := range c.Nodes {
		place(&c.Nodes[i])
	}
	return ordered
}

// Coordinator returns the coordinator node. Call Validate first.
func (c *Config) Coordinator() *NodeConfig {
	for i := range c.Nodes {
		if c.Nodes[i].Coordinator {
			return &c.Nodes[i]
		}
	}
	return nil
}

// LoadConfig reads a team configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("team: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("team: parse config: %w", err)
	}
	if cfg.NotificationMode == "" {
		cfg.NotificationMode = NotifySystemEventDriven
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
