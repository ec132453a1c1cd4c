package agent

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolFactory builds a tool instance from a validated configuration.
type ToolFactory func(config map[string]any) (Tool, error)

type toolEntry struct {
	factory ToolFactory
	schema  *jsonschema.Schema
}

// ToolRegistry maps tool names to factories with optional config
// schemas. Registration is programmatic; CreateTool validates the
// supplied config against the registered schema before instantiating.
type ToolRegistry struct {
	mu      sync.RWMutex
	entries map[string]toolEntry
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{entries: make(map[string]toolEntry)}
}

// Register adds a factory under name. configSchema may be empty for
// tools without configuration; otherwise it must be a valid JSON
// Schema document. Re-registering replaces the previous entry.
func (r *ToolRegistry) Register(name string, factory ToolFactory, configSchema string) error {
	if name == "" {
		return fmt.Errorf("agent: tool registration requires a name")
	}
	if factory == nil {
		return fmt.Errorf("agent: tool %q registration requires a factory", name)
	}
	var schema *jsonschema.Schema
	if configSchema != "" {
		compiled, err := jsonschema.CompileString(name+"-config.json", configSchema)
		if err != nil {
			return fmt.Errorf("agent: tool %q config schema: %w", name, err)
		}
		schema = compiled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = toolEntry{factory: factory, schema: schema}
	return nil
}

// CreateTool validates config against the registered schema and
// instantiates the tool.
func (r *ToolRegistry) CreateTool(name string, config map[string]any) (Tool, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: unknown tool %q", name)
	}
	if entry.schema != nil {
		var doc any = map[string]any{}
		if config != nil {
			doc = normalizeForSchema(config)
		}
		if err := entry.schema.Validate(doc); err != nil {
			return nil, fmt.Errorf("agent: tool %q config invalid: %w", name, err)
		}
	}
	return entry.factory(config)
}

// Names returns the registered tool names.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// normalizeForSchema rewrites Go-typed values into the shapes the
// schema validator expects (json-compatible maps and slices).
func normalizeForSchema(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeForSchema(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeForSchema(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}

// PhaseHookRegistry indexes phase hooks by (from, to) transition.
// Hooks run in registration order, before external notification.
type PhaseHookRegistry struct {
	mu    sync.RWMutex
	hooks map[[2]Phase][]PhaseHook
}

// NewPhaseHookRegistry creates an empty hook registry.
func NewPhaseHookRegistry() *PhaseHookRegistry {
	return &PhaseHookRegistry{hooks: make(map[[2]Phase][]PhaseHook)}
}

// Register adds a hook for its declared transition.
func (r *PhaseHookRegistry) Register(hook PhaseHook) {
	from, to := hook.On()
	key := [2]Phase{from, to}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[key] = append(r.hooks[key], hook)
}

// For returns hooks matching the transition, in registration order.
func (r *PhaseHookRegistry) For(from, to Phase) []PhaseHook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hooks[[2]Phase{from, to}]
}

// LifecycleProcessorRegistry indexes lifecycle processors by event.
type LifecycleProcessorRegistry struct {
	mu    sync.RWMutex
	procs map[LifecycleEvent][]LifecycleProcessor
}

// NewLifecycleProcessorRegistry creates an empty registry.
func NewLifecycleProcessorRegistry() *LifecycleProcessorRegistry {
	return &LifecycleProcessorRegistry{procs: make(map[LifecycleEvent][]LifecycleProcessor)}
}

// Register adds a processor under its lifecycle event.
func (r *LifecycleProcessorRegistry) Register(proc LifecycleProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[proc.LifecycleEvent()] = append(r.procs[proc.LifecycleEvent()], proc)
}

// For returns processors bound to the event.
func (r *LifecycleProcessorRegistry) For(event LifecycleEvent) []LifecycleProcessor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.procs[event]
}

// ResponseProcessorRegistry maps processor names to constructors so
// configurations can reference processors by name.
type ResponseProcessorRegistry struct {
	mu        sync.RWMutex
	factories map[string]func() ResponseProcessor
}

// NewResponseProcessorRegistry creates an empty registry.
func NewResponseProcessorRegistry() *ResponseProcessorRegistry {
	return &ResponseProcessorRegistry{factories: make(map[string]func() ResponseProcessor)}
}

// Register adds a named constructor.
func (r *ResponseProcessorRegistry) Register(name string, factory func() ResponseProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the named processor.
func (r *ResponseProcessorRegistry) Create(name string) (ResponseProcessor, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: unknown response processor %q", name)
	}
	return factory(), nil
}
