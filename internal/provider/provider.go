package provider

import (
	"context"
	"fmt"

	"chat-relay/internal/models"
)

// Provider forwards a validated chat request to an upstream completion API.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req models.ChatRequest) (*models.Completion, error)
}

// StatusError reports an upstream response with a non-2xx status. Body holds the raw response text.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}
