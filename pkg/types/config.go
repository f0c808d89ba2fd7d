package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "litrev/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchBackendName selects the paper-search API behind the search tool.
type SearchBackendName string

const (
	BackendArxiv           SearchBackendName = "arxiv"
	BackendSemanticScholar SearchBackendName = "semantic_scholar"
)

// SearchConfig holds settings for the search tool.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Backend selects the search API: arxiv or semantic_scholar (default arxiv).
	Backend SearchBackendName `json:"backend" yaml:"backend" mapstructure:"backend"`

	// BaseURL overrides the backend's search endpoint, for a mirror or a
	// caching proxy. Empty uses the public API.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// RequestInterval is the minimum spacing between search API calls
	// (default 3s, the arXiv API's published courtesy limit).
	RequestInterval time.Duration `json:"request_interval" yaml:"request_interval" mapstructure:"request_interval"`

	// MaxRetries bounds retries on HTTP 429/503 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`
}

// ModelConfig holds settings for the chat-completion host both roles call.
type ModelConfig struct {
	// Model is the model name or local alias (e.g. "llama3").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL is the OpenAI-compatible endpoint (default Ollama at
	// http://localhost:11434/v1).
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey is the authentication key. Local hosts ignore it.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Timeout bounds a single completion call (default 5m).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Temperature is passed through when non-nil.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`

	// MaxTokens caps completion length when positive.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`

	// MaxRetries is the number of client-side retries for failed calls (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ConversationConfig holds settings for the two-party review protocol.
type ConversationConfig struct {
	// MaxToolRounds caps how many tool-call rounds the searcher may take
	// before it must answer in text (default 1).
	MaxToolRounds int `json:"max_tool_rounds" yaml:"max_tool_rounds" mapstructure:"max_tool_rounds"`

	// ReflectOnToolUse makes the searcher call the model again after the
	// tool returns. When false the tool output is forwarded directly.
	ReflectOnToolUse bool `json:"reflect_on_tool_use" yaml:"reflect_on_tool_use" mapstructure:"reflect_on_tool_use"`
}

// ArchiveConfig holds settings for the review archive.
type ArchiveConfig struct {
	// Dir is the directory holding the archive database (default "reviews").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxResults is the default limit for list and search queries (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// LogConfig selects logger verbosity and encoding.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is console or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all settings for the assistant.
type Config struct {
	Search       SearchConfig       `json:"search" yaml:"search" mapstructure:"search"`
	Model        ModelConfig        `json:"model" yaml:"model" mapstructure:"model"`
	Conversation ConversationConfig `json:"conversation" yaml:"conversation" mapstructure:"conversation"`
	Archive      ArchiveConfig      `json:"archive" yaml:"archive" mapstructure:"archive"`
	Log          LogConfig          `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns the settings used when no config file or flag
// overrides them.
func DefaultConfig() Config {
	return Config{
		Search: SearchConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   60 * time.Second,
				UserAgent: "litrev/0.1",
			},
			Backend:         BackendArxiv,
			RequestInterval: 3 * time.Second,
			MaxRetries:      5,
		},
		Model: ModelConfig{
			Model:      "llama3",
			BaseURL:    "http://localhost:11434/v1",
			Timeout:    5 * time.Minute,
			MaxRetries: 2,
		},
		Conversation: ConversationConfig{
			MaxToolRounds:    1,
			ReflectOnToolUse: true,
		},
		Archive: ArchiveConfig{
			Dir:        "reviews",
			MaxResults: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
