package translator

import (
	"time"

	"chat-relay/internal/models"
)

// Error codes reported in failure envelopes.
const (
	CodeMissingParameters = "MISSING_PARAMETERS"
	CodeInvalidAPIKey     = "INVALID_API_KEY"
	CodeRequestFailed     = "REQUEST_FAILED"
	CodeWorkerError       = "WORKER_ERROR"
	CodeNotFound          = "NOT_FOUND"
)

// NoReplyPlaceholder stands in for the reply text when the upstream returns no choices.
const NoReplyPlaceholder = "No response received from the model."

// TimestampLayout renders envelope timestamps as UTC ISO-8601 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Envelope is the JSON body returned by POST /chat. Either Data or the Error/Message/Code triple is set.
type Envelope struct {
	Success   bool      `json:"success"`
	Data      *ChatData `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
	Code      string    `json:"code,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// ChatData is the success payload of an Envelope.
type ChatData struct {
	Message string    `json:"message"`
	Model   string    `json:"model"`
	Usage   UsageBody `json:"usage"`
	ID      string    `json:"id"`
}

// UsageBody mirrors the upstream token usage block.
type UsageBody struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// MapResponse reshapes an upstream completion into a success envelope.
// A completion without choices is tolerated and reported with NoReplyPlaceholder.
func MapResponse(completion *models.Completion, now time.Time) Envelope {
	data := &ChatData{Message: NoReplyPlaceholder}
	if completion != nil {
		if len(completion.Choices) > 0 {
			data.Message = completion.Choices[0].Message.Content
		}
		data.Model = completion.Model
		data.ID = completion.ID
		data.Usage = UsageBody{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		}
	}

	return Envelope{
		Success:   true,
		Data:      data,
		Timestamp: FormatTimestamp(now),
	}
}

// Failure builds an error envelope.
func Failure(title, message, code string, now time.Time) Envelope {
	return Envelope{
		Success:   false,
		Error:     title,
		Message:   message,
		Code:      code,
		Timestamp: FormatTimestamp(now),
	}
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
