package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chat-relay/internal/provider"
	"chat-relay/internal/translator"
)

const (
	contentTypeJSON    = "application/json; charset=utf-8"
	workerErrorMessage = "the relay failed while handling the request"
)

type requestError struct {
	Status  int
	Title   string
	Message string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

// workerFault wraps a recovered panic.
type workerFault struct {
	cause error
}

func (e workerFault) Error() string {
	return fmt.Sprintf("unhandled fault: %v", e.cause)
}

func (e workerFault) Unwrap() error {
	return e.cause
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestFailed("request body is required")
		}
		return requestFailed(fmt.Sprintf("invalid JSON payload: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestFailed("request body must contain a single JSON object")
	}
	return nil
}

func requestFailed(message string) requestError {
	return requestError{
		Status:  http.StatusInternalServerError,
		Title:   "Request failed",
		Message: message,
		Code:    translator.CodeRequestFailed,
	}
}

func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var validationErr *translator.ValidationError
	if errors.As(err, &validationErr) {
		title := "Invalid request"
		switch {
		case errors.Is(err, translator.ErrMissingParameters):
			title = "Missing required parameters"
		case errors.Is(err, translator.ErrInvalidCredential):
			title = "Invalid API key format"
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Title:   title,
			Message: validationErr.Message,
			Code:    validationErr.Code,
		}
	}

	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		slog.Warn("upstream rejected request", "provider", statusErr.Provider, "status", statusErr.StatusCode)
		return requestFailed(statusErr.Error())
	}

	slog.Error("upstream request failed", "err", err)
	return requestFailed(err.Error())
}

// envelopeErrorHandler is echo's centralized error handler. Every failure leaves as a JSON envelope.
func (s *Server) envelopeErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	now := s.router.Now()

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeJSON(c, reqErr.Status, translator.Failure(reqErr.Title, reqErr.Message, reqErr.Code, now))
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && (he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed) {
		message := fmt.Sprintf("no endpoint for %s %s", c.Request().Method, c.Request().URL.Path)
		_ = writeJSON(c, http.StatusNotFound, translator.Failure("Not found", message, translator.CodeNotFound, now))
		return
	}

	var fault workerFault
	if !errors.As(err, &fault) {
		slog.Error("unhandled error", "uri", c.Request().RequestURI, "err", err)
	}
	_ = writeJSON(c, http.StatusInternalServerError, translator.Failure("Internal server error", workerErrorMessage, translator.CodeWorkerError, now))
}

func writeJSON(c echo.Context, status int, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return c.Blob(status, contentTypeJSON, data)
}
