package toolparse

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/pkg/models"
)

type openAIEnvelope struct {
	ToolCalls []openAIToolCall `json:"tool_calls"`
}

type openAIToolCall struct {
	ID       string         `json:"id"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name string `json:"name"`
	// Arguments is a JSON document encoded as a string, per the
	// OpenAI function-calling wire format.
	Arguments string `json:"arguments"`
}

// ParseOpenAI decodes the OpenAI function-calling shape:
// {"tool_calls":[{"id","function":{"name","arguments":"{...}"}}]}.
func ParseOpenAI(response string) []models.ToolCall {
	var calls []models.ToolCall
	for _, candidate := range jsonCandidates(response) {
		var envelope openAIEnvelope
		if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
			continue
		}
		for _, call := range envelope.ToolCalls {
			if call.Function.Name == "" {
				continue
			}
			id := call.ID
			if id == "" {
				id = uuid.NewString()
			}
			args := map[string]any{}
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					continue
				}
			}
			calls = append(calls, models.ToolCall{ID: id, Name: call.Function.Name, Arguments: args})
		}
		if len(calls) > 0 {
			return calls
		}
	}
	return nil
}

type geminiCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ParseGemini decodes the Gemini shape {"name","args":{...}}, possibly
// wrapped in a triple-backtick code block, and also a list of such
// objects.
func ParseGemini(response string) []models.ToolCall {
	var calls []models.ToolCall
	for _, candidate := range jsonCandidates(response) {
		var single geminiCall
		if err := json.Unmarshal([]byte(candidate), &single); err == nil && single.Name != "" {
			calls = append(calls, geminiToCall(single))
			continue
		}
		var list []geminiCall
		if err := json.Unmarshal([]byte(candidate), &list); err == nil {
			for _, item := range list {
				if item.Name != "" {
					calls = append(calls, geminiToCall(item))
				}
			}
		}
	}
	return calls
}

func geminiToCall(g geminiCall) models.ToolCall {
	args := g.Args
	if args == nil {
		args = map[string]any{}
	}
	return models.ToolCall{ID: uuid.NewString(), Name: g.Name, Arguments: args}
}

type genericCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Args      map[string]any `json:"args"`
}

// ParseGenericJSON is the best-effort fallback. It tolerates
// surrounding prose and code fences and accepts single objects, lists,
// and OpenAI-style envelopes.
func ParseGenericJSON(response string) []models.ToolCall {
	if calls := ParseOpenAI(response); calls != nil {
		return calls
	}

	var calls []models.ToolCall
	for _, candidate := range jsonCandidates(response) {
		var single genericCall
		if err := json.Unmarshal([]byte(candidate), &single); err == nil && single.Name != "" {
			calls = append(calls, genericToCall(single))
			continue
		}
		var list []genericCall
		if err := json.Unmarshal([]byte(candidate), &list); err == nil {
			for _, item := range list {
				if item.Name != "" {
					calls = append(calls, genericToCall(item))
				}
			}
		}
	}
	return calls
}

func genericToCall(g genericCall) models.ToolCall {
	id := g.ID
	if id == "" {
		id = uuid.NewString()
	}
	args := g.Arguments
	if args == nil {
		args = g.Args
	}
	if args == nil {
		args = map[string]any{}
	}
	return models.ToolCall{ID: id, Name: g.Name, Arguments: args}
}

// jsonCandidates yields the JSON documents worth attempting from a
// response: fenced code block contents first, then every balanced
// top-level object or array found in the raw text.
func jsonCandidates(response string) []string {
	var candidates []string
	for _, block := range fencedBlocks(response) {
		candidates = append(candidates, block)
	}
	candidates = append(candidates, balancedDocuments(response)...)
	return candidates
}

// fencedBlocks extracts the contents of ```-fenced code blocks,
// dropping an optional language tag on the opening fence.
func fencedBlocks(text string) []string {
	var blocks []string
	for {
		start := strings.Index(text, "```")
		if start < 0 {
			return blocks
		}
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && nl < 20 {
			// Language tag line, e.g. ```json
			rest = rest[nl+1:]
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			return blocks
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		text = rest[end+3:]
	}
}

// balancedDocuments scans for top-level {...} or [...] spans,
// respecting string literals and escapes.
func balancedDocuments(text string) []string {
	var docs []string
	for i := 0; i < len(text); i++ {
		open := text[i]
		if open != '{' && open != '[' {
			continue
		}
		close := byte('}')
		if open == '[' {
			close = ']'
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(text); j++ {
			c := text[j]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == open:
				depth++
			case c == close:
				depth--
				if depth == 0 {
					docs = append(docs, text[i:j+1])
					i = j
					j = len(text)
				}
			}
		}
	}
	return docs
}
