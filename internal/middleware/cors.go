package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"chat-relay/internal/config"
)

// AllowedMethods is advertised on every response.
var AllowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodHead,
}

// CORSPolicy is the allow-all cross-origin policy. It is built once at startup and never mutated.
type CORSPolicy struct {
	allowMethods string
	allowHeaders string
	maxAge       string
}

// NewCORSPolicy renders the header values for cfg.
func NewCORSPolicy(cfg config.CORSConfig) CORSPolicy {
	allowHeaders := cfg.AllowHeaders
	if len(allowHeaders) == 0 {
		allowHeaders = config.DefaultAllowHeaders
	}
	return CORSPolicy{
		allowMethods: strings.Join(AllowedMethods, ", "),
		allowHeaders: strings.Join(allowHeaders, ", "),
		maxAge:       strconv.Itoa(cfg.MaxAge),
	}
}

// Headers returns the CORS headers for a request. Every origin, including none, gets the same
// wildcard grant, so origin never narrows the result. When the caller declared the headers it
// intends to send, they are reflected verbatim instead of the fixed allow-list.
func (p CORSPolicy) Headers(origin, requestedHeaders string) http.Header {
	h := make(http.Header, 5)
	h.Set(echo.HeaderAccessControlAllowOrigin, "*")
	h.Set(echo.HeaderAccessControlAllowMethods, p.allowMethods)
	if requestedHeaders != "" {
		h.Set(echo.HeaderAccessControlAllowHeaders, requestedHeaders)
		h.Set(echo.HeaderVary, echo.HeaderAccessControlRequestHeaders)
	} else {
		h.Set(echo.HeaderAccessControlAllowHeaders, p.allowHeaders)
	}
	h.Set(echo.HeaderAccessControlMaxAge, p.maxAge)
	return h
}

// Middleware decorates every response with the policy and answers preflight requests on any path
// with 204 and no body. Register it with echo's Pre so it runs before routing.
func (p CORSPolicy) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)
			if req.Method != http.MethodOptions {
				copyHeaders(c.Response().Header(), p.Headers(origin, ""))
				return next(c)
			}

			copyHeaders(c.Response().Header(), p.Headers(origin, req.Header.Get(echo.HeaderAccessControlRequestHeaders)))
			slog.Debug("cors: handling preflight request", "origin", origin, "path", req.URL.Path)
			return c.NoContent(http.StatusNoContent)
		}
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		dst[key] = append([]string(nil), values...)
	}
}
