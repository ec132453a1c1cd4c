// Package toolparse extracts tool calls from raw LLM response text.
// Parsers are pure functions: malformed input yields no calls, never
// an error, so a garbled response degrades to plain text instead of
// failing the turn.
package toolparse

import (
	"encoding/json"
	"encoding/xml"
	"strings"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/pkg/models"
)

const (
	xmlOpenTag  = "<tool_calls"
	xmlCloseTag = "</tool_calls>"
)

type xmlToolCalls struct {
	XMLName xml.Name      `xml:"tool_calls"`
	Calls   []xmlToolCall `xml:"tool_call"`
}

type xmlToolCall struct {
	Name string  `xml:"name,attr"`
	ID   string  `xml:"id,attr"`
	Args xmlArgs `xml:"arguments"`
}

type xmlArgs struct {
	Args []xmlArg `xml:"arg"`
}

type xmlArg struct {
	Name string `xml:"name,attr"`
	// Value accumulates character data; entity references arrive
	// unescaped and CDATA sections verbatim.
	Value string `xml:",chardata"`
}

// ParseXML extracts tool calls from a <tool_calls> block embedded
// anywhere in the response. Calls without a name are skipped; calls
// without an id get a generated UUID. Surrounding prose is ignored.
func ParseXML(response string) []models.ToolCall {
	block, ok := extractXMLBlock(response)
	if !ok {
		return nil
	}

	var parsed xmlToolCalls
	if err := xml.Unmarshal([]byte(block), &parsed); err != nil {
		return nil
	}

	calls := make([]models.ToolCall, 0, len(parsed.Calls))
	for _, call := range parsed.Calls {
		if call.Name == "" {
			continue
		}
		id := call.ID
		if id == "" {
			id = uuid.NewString()
		}
		args := make(map[string]any, len(call.Args.Args))
		for _, arg := range call.Args.Args {
			if arg.Name == "" {
				continue
			}
			args[arg.Name] = coerceArgValue(arg.Value)
		}
		calls = append(calls, models.ToolCall{ID: id, Name: call.Name, Arguments: args})
	}
	if len(calls) == 0 {
		return nil
	}
	return calls
}

func extractXMLBlock(response string) (string, bool) {
	start := strings.Index(response, xmlOpenTag)
	if start < 0 {
		return "", false
	}
	end := strings.Index(response[start:], xmlCloseTag)
	if end < 0 {
		return "", false
	}
	return response[start : start+end+len(xmlCloseTag)], true
}

// coerceArgValue interprets an argument's text as JSON when possible
// so numbers, booleans, nulls, and structured values survive the XML
// transport; anything else stays a string.
func coerceArgValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err == nil {
		return value
	}
	return raw
}
