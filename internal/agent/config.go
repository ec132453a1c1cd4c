package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/loomlabs/loom/internal/observability"
	"github.com/loomlabs/loom/internal/workerpool"
)

// Config is the immutable configuration of one agent. Construct it
// once and hand it to New; the runtime never mutates it.
type Config struct {
	// Name uniquely identifies the agent within a process.
	Name string `json:"name" yaml:"name"`

	// Role is a short functional label injected into team manifests.
	Role string `json:"role" yaml:"role"`

	// Description explains the agent for coordinators and manifests.
	Description string `json:"description" yaml:"description"`

	// LLM is a pre-built client. When nil, LLMModelName plus
	// LLMFactory drive client creation during bootstrap.
	LLM LLMClient `json:"-" yaml:"-"`

	// LLMModelName selects a model when LLM is nil.
	LLMModelName string `json:"llm_model_name,omitempty" yaml:"llm_model_name,omitempty"`

	// LLMFactory resolves LLMModelName. Required when LLM is nil.
	LLMFactory LLMFactory `json:"-" yaml:"-"`

	// LLMCustom layers provider-specific settings over the model
	// defaults during config finalization.
	LLMCustom map[string]any `json:"llm_custom,omitempty" yaml:"llm_custom,omitempty"`

	// SystemPrompt may contain {{tools}}, {{tool_examples}} and
	// {{team}} placeholders resolved by prompt processors.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`

	// Tools are the tool instances available to this agent.
	Tools []Tool `json:"-" yaml:"-"`

	// Processor pipelines, each run in ascending Order.
	SystemPromptProcessors  []PromptProcessor        `json:"-" yaml:"-"`
	LLMResponseProcessors   []ResponseProcessor      `json:"-" yaml:"-"`
	InvocationPreprocessors []InvocationPreprocessor `json:"-" yaml:"-"`
	ResultProcessors        []ResultProcessor        `json:"-" yaml:"-"`
	LifecycleProcessors     []LifecycleProcessor     `json:"-" yaml:"-"`
	PhaseHooks              []PhaseHook              `json:"-" yaml:"-"`

	// AutoExecuteTools skips the approval gate when true.
	AutoExecuteTools bool `json:"auto_execute_tools" yaml:"auto_execute_tools"`

	// UseXMLToolFormat forces the tool-call wire format: true for
	// XML, false for JSON, nil for the provider default.
	UseXMLToolFormat *bool `json:"use_xml_tool_format,omitempty" yaml:"use_xml_tool_format,omitempty"`

	// Workspace is an opaque directory handle exposed to tools.
	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"`

	// InitialCustomData seeds the runtime state's custom data map.
	InitialCustomData map[string]any `json:"initial_custom_data,omitempty" yaml:"initial_custom_data,omitempty"`

	// ToolOptions holds per-tool execution overrides keyed by name.
	ToolOptions map[string]ToolOptions `json:"-" yaml:"-"`

	// QueueBound caps each input sub-queue (0 = DefaultQueueBound).
	QueueBound int `json:"queue_bound,omitempty" yaml:"queue_bound,omitempty"`

	// PollTimeout is the worker's dequeue poll interval
	// (0 = DefaultPollTimeout).
	PollTimeout time.Duration `json:"poll_timeout,omitempty" yaml:"poll_timeout,omitempty"`

	// SnapshotRestore, when set, runs as the optional final
	// bootstrap step to restore a working-context snapshot.
	SnapshotRestore func(tc *Context) error `json:"-" yaml:"-"`
}

// Validate checks the configuration before bootstrap.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("agent: nil config")
	}
	if c.Name == "" {
		return errors.New("agent: config requires a name")
	}
	if c.LLM == nil && c.LLMModelName == "" {
		return fmt.Errorf("agent %q: config requires an LLM instance or a model name", c.Name)
	}
	if c.LLM == nil && c.LLMFactory == nil {
		return fmt.Errorf("agent %q: model name %q requires an LLM factory", c.Name, c.LLMModelName)
	}
	seen := make(map[string]struct{}, len(c.Tools))
	for _, tool := range c.Tools {
		if tool.Name() == "" {
			return fmt.Errorf("agent %q: tool with empty name", c.Name)
		}
		if _, dup := seen[tool.Name()]; dup {
			return fmt.Errorf("agent %q: duplicate tool %q", c.Name, tool.Name())
		}
		seen[tool.Name()] = struct{}{}
	}
	return nil
}

// Clone returns a deep-enough copy for per-node finalization at the
// team level. Tool and processor instances are shared; maps and
// slices are copied.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Tools = append([]Tool(nil), c.Tools...)
	clone.SystemPromptProcessors = append([]PromptProcessor(nil), c.SystemPromptProcessors...)
	clone.LLMResponseProcessors = append([]ResponseProcessor(nil), c.LLMResponseProcessors...)
	clone.InvocationPreprocessors = append([]InvocationPreprocessor(nil), c.InvocationPreprocessors...)
	clone.ResultProcessors = append([]ResultProcessor(nil), c.ResultProcessors...)
	clone.LifecycleProcessors = append([]LifecycleProcessor(nil), c.LifecycleProcessors...)
	clone.PhaseHooks = append([]PhaseHook(nil), c.PhaseHooks...)
	if c.UseXMLToolFormat != nil {
		v := *c.UseXMLToolFormat
		clone.UseXMLToolFormat = &v
	}
	if c.InitialCustomData != nil {
		clone.InitialCustomData = make(map[string]any, len(c.InitialCustomData))
		for k, v := range c.InitialCustomData {
			clone.InitialCustomData[k] = v
		}
	}
	if c.LLMCustom != nil {
		clone.LLMCustom = make(map[string]any, len(c.LLMCustom))
		for k, v := range c.LLMCustom {
			clone.LLMCustom[k] = v
		}
	}
	if c.ToolOptions != nil {
		clone.ToolOptions = make(map[string]ToolOptions, len(c.ToolOptions))
		for k, v := range c.ToolOptions {
			clone.ToolOptions[k] = v
		}
	}
	return &clone
}

// Deps are the process-level dependencies injected into agent
// construction. Shared resources are explicit here rather than
// process globals so tests can isolate them.
type Deps struct {
	// Pool is the bounded goroutine pool agent workers lease from.
	Pool *workerpool.Pool

	// Logger receives runtime diagnostics. Defaults to slog.Default.
	Logger *slog.Logger

	// Metrics records runtime metrics. Optional.
	Metrics *observability.Metrics

	// Tracer produces spans around LLM streaming and tool execution.
	// Defaults to the global no-op tracer.
	Tracer trace.Tracer

	// ContextRegistry resolves agent ids for cross-agent messaging.
	// Optional; the agent registers itself when present.
	ContextRegistry *ContextRegistry
}

func (d Deps) sanitized() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Pool == nil {
		d.Pool = workerpool.New(workerpool.DefaultMaxWorkers)
	}
	return d
}

// sortProcessors orders a processor slice by Order, stable on ties.
func sortProcessors[P Processor](procs []P) []P {
	out := append([]P(nil), procs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order() < out[j].Order()
	})
	return out
}
