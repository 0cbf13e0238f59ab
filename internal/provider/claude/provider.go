package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chat-relay/internal/config"
	"chat-relay/internal/models"
	"chat-relay/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "chat-relay/0.1"
	apiVersion      = "2023-06-01"
	maxErrorBody    = 64 * 1024
)

// Provider forwards chat requests to the Anthropic Messages API.
type Provider struct {
	name     string
	headers  map[string]string
	client   *http.Client
	messages string
}

// New constructs a Claude provider instance.
func New(name string, cfg config.UpstreamConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Provider{
		name:     name,
		headers:  cfg.Headers,
		client:   client,
		messages: baseURL + "/v1/messages",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.Completion, error) {
	payload := buildMessagePayload(req)

	httpReq, err := p.newRequest(ctx, http.MethodPost, p.messages, req.Credential, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, statusError(httpResp)
	}

	var providerResp messageResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return nil, err
	}

	return providerResp.toCompletion(), nil
}

func (p *Provider) newRequest(ctx context.Context, method, url, credential string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("anthropic-version", apiVersion)
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	// Anthropic reads x-api-key; compatible gateways in front of it usually expect a bearer token.
	req.Header.Set("x-api-key", credential)
	req.Header.Set("Authorization", "Bearer "+credential)

	return req, nil
}

type messagePayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func buildMessagePayload(req models.ChatRequest) messagePayload {
	return messagePayload{
		Model: req.Model,
		Messages: []message{
			{
				Role:    "user",
				Content: []contentBlock{{Type: "text", Text: req.Message}},
			},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

type messageResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Usage      usageBlock     `json:"usage"`
	StopReason string         `json:"stop_reason"`
}

type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// toCompletion folds the text blocks into a single choice. Non-text blocks are skipped;
// a response with no text blocks yields no choices.
func (r messageResponse) toCompletion() *models.Completion {
	completion := &models.Completion{
		ID:    r.ID,
		Model: r.Model,
		Usage: models.Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		},
	}

	var (
		text    strings.Builder
		hasText bool
	)
	for _, block := range r.Content {
		if block.Type != "text" {
			continue
		}
		hasText = true
		text.WriteString(block.Text)
	}
	if !hasText {
		return completion
	}

	role := r.Role
	if role == "" {
		role = "assistant"
	}
	completion.Choices = []models.Choice{
		{
			Message:      models.Message{Role: role, Content: text.String()},
			FinishReason: r.StopReason,
		},
	}
	return completion
}

func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}
	return &provider.StatusError{
		Provider:   "Claude",
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
