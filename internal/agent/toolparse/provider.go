package toolparse

import "github.com/loomlabs/loom/pkg/models"

// Format is the tool-call wire format a response is parsed with.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// SelectFormat resolves the parse format from an explicit override
// and the provider default. Anthropic models speak the XML dialect;
// everything else defaults to JSON.
func SelectFormat(useXML *bool, provider models.Provider) Format {
	if useXML != nil {
		if *useXML {
			return FormatXML
		}
		return FormatJSON
	}
	if provider == models.ProviderAnthropic {
		return FormatXML
	}
	return FormatJSON
}

// Parse extracts tool calls from a response using the resolved format
// and the provider's JSON dialect. It never fails: unparseable input
// yields no calls.
func Parse(response string, format Format, provider models.Provider) []models.ToolCall {
	if format == FormatXML {
		return ParseXML(response)
	}
	switch provider {
	case models.ProviderOpenAI:
		return ParseOpenAI(response)
	case models.ProviderGemini:
		return ParseGemini(response)
	case models.ProviderAnthropic:
		return ParseXML(response)
	default:
		return ParseGenericJSON(response)
	}
}
