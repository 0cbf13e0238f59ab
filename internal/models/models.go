package models

const (
	// DefaultModel is forwarded when the caller does not name a model.
	DefaultModel = "gpt-3.5-turbo"
	// DefaultTemperature is forwarded when the caller omits temperature.
	DefaultTemperature = 0.7
	// DefaultMaxTokens is forwarded when the caller omits max_tokens.
	DefaultMaxTokens = 1000
)

// Message represents a single conversational message.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is a validated single-message chat request with defaults applied.
type ChatRequest struct {
	Credential  string
	Message     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completion captures an upstream chat completion in a provider-neutral shape.
type Completion struct {
	ID      string
	Model   string
	Choices []Choice
	Usage   Usage
}

// Choice is one generated alternative returned by the upstream.
type Choice struct {
	Message      Message
	FinishReason string
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
