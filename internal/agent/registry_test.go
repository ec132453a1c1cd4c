package agent

import (
	"testing"
)

func TestToolRegistryCreateValidatesConfig(t *testing.T) {
	reg := NewToolRegistry()
	schema := `{"type":"object","properties":{"base":{"type":"number"}},"required":["base"]}`
	err := reg.Register("calc", func(config map[string]any) (Tool, error) {
		return addTool{}, nil
	}, schema)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := reg.CreateTool("calc", map[string]any{"base": 10}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if _, err := reg.CreateTool("calc", map[string]any{"base": "ten"}); err == nil {
		t.Fatal("invalid config accepted")
	}
	if _, err := reg.CreateTool("calc", nil); err == nil {
		t.Fatal("missing required config accepted")
	}
	if _, err := reg.CreateTool("nope", nil); err == nil {
		t.Fatal("unknown tool accepted")
	}
}

func TestToolRegistryRejectsBadRegistrations(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.Register("", func(map[string]any) (Tool, error) { return addTool{}, nil }, ""); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := reg.Register("x", nil, ""); err == nil {
		t.Fatal("nil factory accepted")
	}
	if err := reg.Register("y", func(map[string]any) (Tool, error) { return addTool{}, nil }, "{not json"); err == nil {
		t.Fatal("invalid schema accepted")
	}
}

func TestToolRegistryNoSchemaSkipsValidation(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.Register("free", func(config map[string]any) (Tool, error) {
		return addTool{}, nil
	}, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.CreateTool("free", map[string]any{"anything": true}); err != nil {
		t.Fatalf("schemaless tool rejected config: %v", err)
	}
}

func TestResponseProcessorRegistry(t *testing.T) {
	reg := NewResponseProcessorRegistry()
	reg.Register("tool_usage", func() ResponseProcessor { return NewToolUsageProcessor(0) })

	proc, err := reg.Create("tool_usage")
	if err != nil {
		t.Fatal(err)
	}
	if proc.Name() != "provider_aware_tool_usage" {
		t.Fatalf("processor = %q", proc.Name())
	}
	if _, err := reg.Create("missing"); err == nil {
		t.Fatal("unknown processor accepted")
	}
}
