package server

import (
	"strings"

	"chat-relay/internal/config"
	relaymw "chat-relay/internal/middleware"
	"chat-relay/internal/models"
	"chat-relay/internal/translator"
	"chat-relay/internal/version"
)

type docsDocument struct {
	Name        string                 `json:"name"`
	Version     string                 `json:"version"`
	Description string                 `json:"description"`
	CORS        corsDoc                `json:"cors"`
	Endpoints   map[string]endpointDoc `json:"endpoints"`
}

type corsDoc struct {
	AllowOrigin  string `json:"allowOrigin"`
	AllowMethods string `json:"allowMethods"`
	AllowHeaders string `json:"allowHeaders"`
	MaxAge       int    `json:"maxAge"`
}

type endpointDoc struct {
	Method      string              `json:"method"`
	Description string              `json:"description"`
	Parameters  map[string]paramDoc `json:"parameters,omitempty"`
	Example     any                 `json:"example,omitempty"`
	ErrorCodes  []string            `json:"errorCodes,omitempty"`
}

type paramDoc struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description"`
}

func newDocsDocument(cfg config.Config) docsDocument {
	info := version.Get()

	allowHeaders := cfg.CORS.AllowHeaders
	if len(allowHeaders) == 0 {
		allowHeaders = config.DefaultAllowHeaders
	}

	return docsDocument{
		Name:        info.Name,
		Version:     info.Version,
		Description: "Relays a single chat message to an upstream chat-completion API and returns a simplified response.",
		CORS: corsDoc{
			AllowOrigin:  "*",
			AllowMethods: strings.Join(relaymw.AllowedMethods, ", "),
			AllowHeaders: strings.Join(allowHeaders, ", ") + " (or the headers requested in a preflight)",
			MaxAge:       cfg.CORS.MaxAge,
		},
		Endpoints: map[string]endpointDoc{
			"/": {
				Method:      "GET",
				Description: "This document.",
			},
			"/chat": {
				Method:      "POST",
				Description: "Send one message and receive the model's reply. The apiKey is forwarded upstream as a bearer token and never stored.",
				Parameters: map[string]paramDoc{
					"apiKey": {
						Type:        "string",
						Required:    true,
						Description: "Upstream API key; must start with \"sk-\" and be longer than 20 characters.",
					},
					"message": {
						Type:        "string",
						Required:    true,
						Description: "The user message.",
					},
					"model": {
						Type:        "string",
						Default:     models.DefaultModel,
						Description: "Upstream model name.",
					},
					"temperature": {
						Type:        "number",
						Default:     models.DefaultTemperature,
						Description: "Sampling temperature, forwarded as-is.",
					},
					"max_tokens": {
						Type:        "integer",
						Default:     models.DefaultMaxTokens,
						Description: "Completion token limit, forwarded as-is.",
					},
				},
				Example: map[string]any{
					"apiKey":      "sk-your-api-key",
					"message":     "Hello, who are you?",
					"model":       models.DefaultModel,
					"temperature": models.DefaultTemperature,
					"max_tokens":  models.DefaultMaxTokens,
				},
				ErrorCodes: []string{
					translator.CodeMissingParameters,
					translator.CodeInvalidAPIKey,
					translator.CodeRequestFailed,
					translator.CodeWorkerError,
				},
			},
		},
	}
}
