package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chat-relay/internal/config"
	relaymw "chat-relay/internal/middleware"
	"chat-relay/internal/router"
	"chat-relay/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeoutSlack   = 15 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	cfg     config.Config
	router  *router.Router
	app     *echo.Echo
	docs    docsDocument
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, rt *router.Router) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cors := relaymw.NewCORSPolicy(cfg.CORS)

	srv := &Server{
		cfg:     cfg,
		router:  rt,
		docs:    newDocsDocument(cfg),
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = srv.envelopeErrorHandler

	e.Pre(cors.Middleware())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			slog.Error("panic while handling request", "uri", c.Request().RequestURI, "err", err, "stack", string(stack))
			return workerFault{cause: err}
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv.app = e
	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg)
	slog.Info("starting server", "addr", s.address, "upstream", s.cfg.Upstream.BaseURL, "api_style", s.cfg.Upstream.APIStyle)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout(s.cfg.Upstream.Timeout),
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

// writeTimeout leaves room for the slowest upstream reply. With no upstream limit the write is unbounded too.
func writeTimeout(upstream time.Duration) time.Duration {
	if upstream <= 0 {
		return 0
	}
	return upstream + writeTimeoutSlack
}

// registerRoutes hands every request to dispatch, so router.Resolve alone decides what a path serves.
func (s *Server) registerRoutes() {
	for _, route := range router.Routes() {
		slog.Debug("serving route", "method", route.Method, "path", route.Path, "kind", route.Kind.String())
	}
	s.app.Any("/", s.dispatch)
	s.app.Any("/*", s.dispatch)
}

func (s *Server) dispatch(c echo.Context) error {
	req := c.Request()
	switch router.Resolve(req.Method, req.URL.Path) {
	case router.Docs:
		return s.handleDocs(c)
	case router.Chat:
		return s.handleChat(c)
	default:
		return echo.ErrNotFound
	}
}

func (s *Server) handleDocs(c echo.Context) error {
	return writeJSON(c, http.StatusOK, s.docs)
}

func (s *Server) handleChat(c echo.Context) error {
	var body translator.ChatRequestBody
	if err := decodeRequestBody(c, &body); err != nil {
		return err
	}

	env, err := s.router.Chat(c.Request().Context(), body)
	if err != nil {
		return toHTTPError(err)
	}
	return writeJSON(c, http.StatusOK, env)
}

func printStartupBanner(cfg config.Config) {
	host := "127.0.0.1"
	port := cfg.Server.Port
	fmt.Println()
	fmt.Println("chat-relay ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Printf("Forwarding to %s (%s style)\n", cfg.Upstream.BaseURL, cfg.Upstream.APIStyle)
	fmt.Println("Endpoints:")
	for _, route := range router.Routes() {
		fmt.Printf("  %-4s %s\n", route.Method, route.Path)
	}
	fmt.Printf("Example:\n  curl http://%s:%d/chat -H 'Content-Type: application/json' -d '{\"apiKey\":\"sk-...\",\"message\":\"Hello\"}'\n\n", host, port)
}
