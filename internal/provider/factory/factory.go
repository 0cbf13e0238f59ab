package factory

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"chat-relay/internal/config"
	"chat-relay/internal/provider"
	claudeProvider "chat-relay/internal/provider/claude"
	openaiProvider "chat-relay/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// New constructs the upstream provider selected by cfg.APIStyle.
func New(cfg config.UpstreamConfig) (provider.Provider, error) {
	client := newHTTPClient(cfg.Timeout)

	switch cfg.APIStyle {
	case config.APIStyleOpenAI, "":
		p, err := openaiProvider.New("openai", cfg, client)
		if err != nil {
			return nil, fmt.Errorf("initialise openai provider: %w", err)
		}
		return p, nil
	case config.APIStyleClaude:
		p, err := claudeProvider.New("claude", cfg, client)
		if err != nil {
			return nil, fmt.Errorf("initialise claude provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported upstream api_style %q", cfg.APIStyle)
	}
}

// newHTTPClient returns a client with a tuned transport. A zero timeout means no client-side limit.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
