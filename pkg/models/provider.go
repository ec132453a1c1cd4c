package models

// Provider identifies an LLM provider family. The provider selects
// the default tool-call wire format when the agent config does not
// override it.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderUnknown   Provider = ""
)
