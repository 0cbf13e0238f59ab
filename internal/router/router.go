package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chat-relay/internal/provider"
	"chat-relay/internal/translator"
)

// Kind identifies what a request resolves to.
type Kind int

const (
	NotFound Kind = iota
	Docs
	Chat
)

func (k Kind) String() string {
	switch k {
	case Docs:
		return "docs"
	case Chat:
		return "chat"
	default:
		return "not_found"
	}
}

// Route binds a method and path to a Kind.
type Route struct {
	Method string
	Path   string
	Kind   Kind
}

var routes = []Route{
	{Method: http.MethodGet, Path: "/", Kind: Docs},
	{Method: http.MethodPost, Path: "/chat", Kind: Chat},
}

// Routes returns the functional routes served by the relay.
func Routes() []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	return out
}

// Resolve maps a method and path to a Kind. Anything outside the route table is NotFound.
func Resolve(method, path string) Kind {
	for _, r := range routes {
		if r.Method == method && r.Path == path {
			return r.Kind
		}
	}
	return NotFound
}

// Router runs the validate, forward and map pipeline against a single upstream provider.
type Router struct {
	provider provider.Provider
	now      func() time.Time
}

// Option customises a Router.
type Option func(*Router)

// WithClock overrides the clock used for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// New constructs a router backed by the provided upstream.
func New(p provider.Provider, opts ...Option) (*Router, error) {
	if p == nil {
		return nil, errors.New("provider must not be nil")
	}
	r := &Router{
		provider: p,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Now returns the router's clock reading.
func (r *Router) Now() time.Time {
	return r.now()
}

// Chat validates body, forwards it upstream and maps the completion into a success envelope.
// The first failing stage ends the pipeline: validation failures are *translator.ValidationError,
// non-2xx upstream replies are *provider.StatusError, both reachable through errors.As.
func (r *Router) Chat(ctx context.Context, body translator.ChatRequestBody) (translator.Envelope, error) {
	req, err := body.Validate()
	if err != nil {
		return translator.Envelope{}, err
	}

	completion, err := r.provider.Chat(ctx, req)
	if err != nil {
		return translator.Envelope{}, fmt.Errorf("provider %s chat request: %w", r.provider.Name(), err)
	}

	return translator.MapResponse(completion, r.now()), nil
}
