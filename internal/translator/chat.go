package translator

import (
	"errors"
	"strings"

	"chat-relay/internal/models"
)

const (
	credentialPrefix    = "sk-"
	credentialMinLength = 21
)

var (
	// ErrMissingParameters indicates the credential or the message was absent or empty.
	ErrMissingParameters = errors.New("missing required parameters")
	// ErrInvalidCredential indicates the credential does not look like an upstream API key.
	ErrInvalidCredential = errors.New("invalid api key format")
)

// ValidationError is a client-caused rejection of a chat request.
type ValidationError struct {
	Kind    error
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// ChatRequestBody models the POST /chat payload as delivered over the wire.
// Optional fields are pointers so an explicit zero is forwarded rather than replaced by a default.
type ChatRequestBody struct {
	APIKey      string   `json:"apiKey"`
	Message     string   `json:"message"`
	Model       *string  `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Validate checks the credential and message and applies defaults to the optional fields.
// Model, temperature and max_tokens are not range-checked; the upstream judges them.
func (b ChatRequestBody) Validate() (models.ChatRequest, error) {
	if b.APIKey == "" || b.Message == "" {
		return models.ChatRequest{}, &ValidationError{
			Kind:    ErrMissingParameters,
			Code:    CodeMissingParameters,
			Message: "both apiKey and message are required",
		}
	}

	if !strings.HasPrefix(b.APIKey, credentialPrefix) || len(b.APIKey) < credentialMinLength {
		return models.ChatRequest{}, &ValidationError{
			Kind:    ErrInvalidCredential,
			Code:    CodeInvalidAPIKey,
			Message: "apiKey must start with \"sk-\" and be longer than 20 characters",
		}
	}

	req := models.ChatRequest{
		Credential:  b.APIKey,
		Message:     b.Message,
		Model:       models.DefaultModel,
		Temperature: models.DefaultTemperature,
		MaxTokens:   models.DefaultMaxTokens,
	}
	if b.Model != nil {
		req.Model = *b.Model
	}
	if b.Temperature != nil {
		req.Temperature = *b.Temperature
	}
	if b.MaxTokens != nil {
		req.MaxTokens = *b.MaxTokens
	}
	return req, nil
}
