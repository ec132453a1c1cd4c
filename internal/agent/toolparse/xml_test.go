package toolparse

import (
	"testing"
)

func TestParseXMLSingleCall(t *testing.T) {
	response := `Let me add those.
<tool_calls><tool_call name="add" id="t1"><arguments><arg name="a">2</arg><arg name="b">3</arg></arguments></tool_call></tool_calls>`

	calls := ParseXML(response)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	call := calls[0]
	if call.Name != "add" || call.ID != "t1" {
		t.Fatalf("call = %+v", call)
	}
	if call.Arguments["a"] != float64(2) || call.Arguments["b"] != float64(3) {
		t.Fatalf("arguments = %v, want numeric coercion", call.Arguments)
	}
}

func TestParseXMLMultipleCalls(t *testing.T) {
	response := `<tool_calls>` +
		`<tool_call name="first" id="1"><arguments><arg name="x">one</arg></arguments></tool_call>` +
		`<tool_call name="second" id="2"><arguments><arg name="y">two</arg></arguments></tool_call>` +
		`</tool_calls>`

	calls := ParseXML(response)
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].Name != "first" || calls[1].Name != "second" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestParseXMLMissingIDGenerated(t *testing.T) {
	response := `<tool_calls><tool_call name="noid"><arguments></arguments></tool_call></tool_calls>`
	calls := ParseXML(response)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].ID == "" {
		t.Fatal("missing id not generated")
	}
}

func TestParseXMLMissingNameSkipped(t *testing.T) {
	response := `<tool_calls>` +
		`<tool_call id="orphan"><arguments></arguments></tool_call>` +
		`<tool_call name="kept" id="k1"><arguments></arguments></tool_call>` +
		`</tool_calls>`
	calls := ParseXML(response)
	if len(calls) != 1 || calls[0].Name != "kept" {
		t.Fatalf("calls = %+v, want only the named call", calls)
	}
}

func TestParseXMLEntitiesUnescaped(t *testing.T) {
	response := `<tool_calls><tool_call name="echo" id="e1"><arguments><arg name="text">a &lt; b &amp; c</arg></arguments></tool_call></tool_calls>`
	calls := ParseXML(response)
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if got := calls[0].Arguments["text"]; got != "a < b & c" {
		t.Fatalf("text = %q, want entities unescaped", got)
	}
}

func TestParseXMLCDATAPreserved(t *testing.T) {
	response := `<tool_calls><tool_call name="write" id="w1"><arguments><arg name="code"><![CDATA[if a < b { return "x" }]]></arg></arguments></tool_call></tool_calls>`
	calls := ParseXML(response)
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if got := calls[0].Arguments["code"]; got != `if a < b { return "x" }` {
		t.Fatalf("code = %q, want CDATA verbatim", got)
	}
}

func TestParseXMLMalformed(t *testing.T) {
	cases := []string{
		"",
		"no tool calls here",
		"<tool_calls><tool_call name=\"broken\">",
		"<tool_calls></wrong_close>",
		"<tool_call name=\"orphan\"/>",
	}
	for _, response := range cases {
		if calls := ParseXML(response); calls != nil {
			t.Errorf("ParseXML(%q) = %+v, want nil", response, calls)
		}
	}
}
