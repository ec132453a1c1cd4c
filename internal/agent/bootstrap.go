package agent

import (
	"context"
	"fmt"
	"strings"
)

// BootstrapStep is one unit of the startup sequence. Steps must be
// idempotent enough that a re-run yields identical state or a logged
// overwrite warning.
type BootstrapStep interface {
	Name() string
	Run(ctx context.Context, tc *Context) error
}

// Bootstrapper runs the ordered bootstrap sequence, halting on the
// first failing step. On success it enqueues AgentReady; on failure
// it transitions to the error phase and reports the failing step.
type Bootstrapper struct {
	steps []BootstrapStep
}

// NewBootstrapper builds the standard step sequence for a config.
// The snapshot-restore step is appended only when configured.
func NewBootstrapper(cfg *Config) *Bootstrapper {
	steps := []BootstrapStep{
		inputQueueInitStep{},
		workspaceContextStep{},
		toolInitStep{},
		systemPromptStep{},
		llmConfigStep{},
		llmInstanceStep{},
	}
	if cfg.SnapshotRestore != nil {
		steps = append(steps, snapshotRestoreStep{})
	}
	return &Bootstrapper{steps: steps}
}

// Run executes the sequence. It returns false if any step failed; the
// phase is already Error in that case.
func (b *Bootstrapper) Run(ctx context.Context, tc *Context) bool {
	tc.Phases.NotifyBootstrappingStarted(ctx)

	for i, step := range b.steps {
		tc.Logger.Debug("bootstrap step starting", "step", step.Name())
		if err := step.Run(ctx, tc); err != nil {
			message := fmt.Sprintf("bootstrap step %s failed: %v", step.Name(), err)
			details := err.Error()
			tc.Logger.Error("bootstrap halted", "step", step.Name(), "error", err)
			tc.Phases.NotifyErrorOccurred(ctx, message, details)
			// The first step owns queue creation; if it failed the
			// queues may not exist, so error reporting stays on the
			// direct phase-manager path above.
			if i > 0 && tc.State.Queues != nil {
				_ = tc.State.Queues.EnqueueInternal(AgentError{Message: message, Details: details})
			}
			return false
		}
	}

	if err := tc.State.Queues.EnqueueInternal(AgentReady{}); err != nil {
		tc.Phases.NotifyErrorOccurred(ctx, "bootstrap completion enqueue failed", err.Error())
		return false
	}
	return true
}

// inputQueueInitStep creates the multiplexed input queues.
type inputQueueInitStep struct{}

func (inputQueueInitStep) Name() string { return "input_queue_initialization" }

func (inputQueueInitStep) Run(ctx context.Context, tc *Context) error {
	if tc.State.Queues != nil {
		// The facade pre-creates the queues so callers can post
		// messages before bootstrap finishes; keep that instance.
		tc.Logger.Debug("input queues already initialized")
		return nil
	}
	tc.State.Queues = NewInputQueues(tc.Config.QueueBound, tc.Logger)
	return nil
}

// workspaceContextStep publishes the workspace handle into the
// custom data so tools and processors can reach it.
type workspaceContextStep struct{}

func (workspaceContextStep) Name() string { return "workspace_context_injection" }

func (workspaceContextStep) Run(ctx context.Context, tc *Context) error {
	tc.State.Workspace = tc.Config.Workspace
	if tc.Config.Workspace != "" {
		tc.State.CustomData["workspace"] = tc.Config.Workspace
	}
	return nil
}

// toolInitStep builds the name -> tool table.
type toolInitStep struct{}

func (toolInitStep) Name() string { return "tool_initialization" }

func (toolInitStep) Run(ctx context.Context, tc *Context) error {
	for _, tool := range tc.Config.Tools {
		name := tool.Name()
		if name == "" {
			return fmt.Errorf("tool with empty name")
		}
		if _, exists := tc.State.Tools[name]; exists {
			tc.Logger.Warn("tool already registered, overwriting", "tool", name)
		}
		tc.State.Tools[name] = tool
	}
	return nil
}

// systemPromptStep runs the ordered prompt processor chain. Any
// processor error fails the whole step.
type systemPromptStep struct{}

func (systemPromptStep) Name() string { return "system_prompt_processing" }

func (systemPromptStep) Run(ctx context.Context, tc *Context) error {
	prompt := tc.Config.SystemPrompt
	for _, proc := range sortProcessors(tc.Config.SystemPromptProcessors) {
		processed, err := proc.ProcessPrompt(ctx, prompt, tc)
		if err != nil {
			return fmt.Errorf("prompt processor %s: %w", proc.Name(), err)
		}
		prompt = processed
	}
	// Built-in fallback for the {{tools}} placeholder when no
	// configured processor resolved it.
	if strings.Contains(prompt, "{{tools}}") {
		prompt = strings.ReplaceAll(prompt, "{{tools}}", toolManifest(tc))
	}
	tc.State.ProcessedSystemPrompt = prompt
	return nil
}

func toolManifest(tc *Context) string {
	if len(tc.Config.Tools) == 0 {
		return "(no tools available)"
	}
	var sb strings.Builder
	for _, tool := range tc.Config.Tools {
		fmt.Fprintf(&sb, "- %s: %s\n", tool.Name(), tool.Description())
	}
	return strings.TrimRight(sb.String(), "\n")
}

// llmConfigStep layers the final LLM settings: model defaults, then
// custom overrides, then the processed system prompt.
type llmConfigStep struct{}

func (llmConfigStep) Name() string { return "llm_config_finalization" }

func (llmConfigStep) Run(ctx context.Context, tc *Context) error {
	var settings LLMSettings
	switch {
	case tc.Config.LLM != nil:
		settings = LLMSettings{
			Model:    tc.Config.LLM.ModelName(),
			Provider: tc.Config.LLM.Provider(),
		}
	case tc.Config.LLMFactory != nil:
		defaults, err := tc.Config.LLMFactory.Defaults(tc.Config.LLMModelName)
		if err != nil {
			return fmt.Errorf("model %q: %w", tc.Config.LLMModelName, err)
		}
		settings = defaults
	default:
		return fmt.Errorf("no LLM instance and no factory configured")
	}

	if len(tc.Config.LLMCustom) > 0 {
		if settings.Custom == nil {
			settings.Custom = make(map[string]any, len(tc.Config.LLMCustom))
		}
		for k, v := range tc.Config.LLMCustom {
			settings.Custom[k] = v
		}
	}
	settings.SystemMessage = tc.State.ProcessedSystemPrompt
	tc.State.FinalLLMSettings = settings
	return nil
}

// llmInstanceStep creates (or adopts) the LLM client and installs
// the processed system prompt on it.
type llmInstanceStep struct{}

func (llmInstanceStep) Name() string { return "llm_instance_creation" }

func (llmInstanceStep) Run(ctx context.Context, tc *Context) error {
	if tc.State.LLM != nil {
		tc.Logger.Warn("llm instance already created, overwriting")
	}
	if tc.Config.LLM != nil {
		tc.State.LLM = tc.Config.LLM
	} else {
		client, err := tc.Config.LLMFactory.Create(tc.State.FinalLLMSettings)
		if err != nil {
			return fmt.Errorf("create llm client: %w", err)
		}
		tc.State.LLM = client
	}
	tc.State.LLM.ConfigureSystemPrompt(tc.State.ProcessedSystemPrompt)
	return nil
}

// snapshotRestoreStep runs the configured working-context restore.
type snapshotRestoreStep struct{}

func (snapshotRestoreStep) Name() string { return "working_context_snapshot_restore" }

func (snapshotRestoreStep) Run(ctx context.Context, tc *Context) error {
	return tc.Config.SnapshotRestore(tc)
}
