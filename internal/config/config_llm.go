package config

// LLMConfig selects and configures the single llm-capability plugin.
// Provider is "anthropic" (also the default when empty) or "openai-compat"
// (alias "openai"); app.Build rejects any other value.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`

	Anthropic   AnthropicConfig   `yaml:"anthropic"`
	OpenAICompat OpenAICompatConfig `yaml:"openai_compat"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// OpenAICompatConfig also covers Ollama's OpenAI-compatible endpoint by
// pointing BaseURL at it.
type OpenAICompatConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}
