package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/config"
	"chat-relay/internal/models"
	"chat-relay/internal/provider/factory"
	"chat-relay/internal/router"
	"chat-relay/internal/translator"
)

var validKey = "sk-" + strings.Repeat("x", 25)

const completionBody = `{
	"id": "chatcmpl-123",
	"object": "chat.completion",
	"model": "gpt-3.5-turbo-0613",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
}`

type upstream struct {
	*httptest.Server
	calls atomic.Int32
}

func newUpstream(t *testing.T, status int, body string) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(u.Close)
	return u
}

func newTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Upstream.BaseURL = upstreamURL
	cfg.Upstream.Timeout = 5 * time.Second

	p, err := factory.New(cfg.Upstream)
	require.NoError(t, err)
	rt, err := router.New(p)
	require.NoError(t, err)
	srv, err := New(cfg, rt)
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.app.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) translator.Envelope {
	t.Helper()
	var env translator.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func assertJSONWithCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestNewRequiresRouter(t *testing.T) {
	_, err := New(config.Default(), nil)
	assert.Error(t, err)
}

func TestChatSuccess(t *testing.T) {
	up := newUpstream(t, http.StatusOK, completionBody)
	srv := newTestServer(t, up.URL)

	rec := serve(srv, http.MethodPost, "/chat", `{"apiKey":"`+validKey+`","message":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assertJSONWithCORS(t, rec)

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	require.NotNil(t, env.Data)
	assert.Equal(t, "hi", env.Data.Message)
	assert.Equal(t, "gpt-3.5-turbo-0613", env.Data.Model)
	assert.Equal(t, "chatcmpl-123", env.Data.ID)
	assert.Equal(t, 8, env.Data.Usage.TotalTokens)
	assert.NotEmpty(t, env.Timestamp)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestChatTrailingSlashIsNotFound(t *testing.T) {
	up := newUpstream(t, http.StatusOK, completionBody)
	srv := newTestServer(t, up.URL)

	rec := serve(srv, http.MethodPost, "/chat/", `{"apiKey":"`+validKey+`","message":"hello"}`)

	assert.Equal(t, router.NotFound, router.Resolve(http.MethodPost, "/chat/"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, translator.CodeNotFound, decodeEnvelope(t, rec).Code)
	assert.Equal(t, int32(0), up.calls.Load())
}

func TestChatValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "missing message", body: `{"apiKey":"` + validKey + `"}`, code: translator.CodeMissingParameters},
		{name: "missing apiKey", body: `{"message":"hello"}`, code: translator.CodeMissingParameters},
		{name: "empty object", body: `{}`, code: translator.CodeMissingParameters},
		{name: "empty message", body: `{"apiKey":"` + validKey + `","message":""}`, code: translator.CodeMissingParameters},
		{name: "wrong prefix", body: `{"apiKey":"pk-` + strings.Repeat("x", 25) + `","message":"hello"}`, code: translator.CodeInvalidAPIKey},
		{name: "too short", body: `{"apiKey":"sk-abc","message":"hello"}`, code: translator.CodeInvalidAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, http.StatusOK, completionBody)
			srv := newTestServer(t, up.URL)

			rec := serve(srv, http.MethodPost, "/chat", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assertJSONWithCORS(t, rec)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Code)
			assert.NotEmpty(t, env.Error)
			assert.NotEmpty(t, env.Message)
			assert.Zero(t, up.calls.Load())
		})
	}
}

func TestChatUpstreamUnauthorized(t *testing.T) {
	up := newUpstream(t, http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided"}}`)
	srv := newTestServer(t, up.URL)

	rec := serve(srv, http.MethodPost, "/chat", `{"apiKey":"`+validKey+`","message":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assertJSONWithCORS(t, rec)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, translator.CodeRequestFailed, env.Code)
	assert.Contains(t, env.Message, "401")
	assert.Contains(t, env.Message, "Incorrect API key provided")
}

func TestChatUpstreamUnreachable(t *testing.T) {
	up := newUpstream(t, http.StatusOK, completionBody)
	srv := newTestServer(t, up.URL)
	up.Close()

	rec := serve(srv, http.MethodPost, "/chat", `{"apiKey":"`+validKey+`","message":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, translator.CodeRequestFailed, decodeEnvelope(t, rec).Code)
}

func TestChatMalformedBody(t *testing.T) {
	up := newUpstream(t, http.StatusOK, completionBody)
	srv := newTestServer(t, up.URL)

	for _, body := range []string{`{"apiKey":`, `{"a":1}{"b":2}`, `{"apiKey":123,"message":"x"}`} {
		rec := serve(srv, http.MethodPost, "/chat", body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, body)
		assert.Equal(t, translator.CodeRequestFailed, decodeEnvelope(t, rec).Code, body)
	}

	rec := serve(srv, http.MethodPost, "/chat", `{"apiKey":"`+validKey+`","message":5}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, translator.CodeRequestFailed, env.Code)
	assert.Contains(t, env.Message, "message")

	rec = serve(srv, http.MethodPost, "/chat", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "request body is required", decodeEnvelope(t, rec).Message)
	assert.Zero(t, up.calls.Load())
}

func TestChatWithoutChoicesUsesPlaceholder(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"id":"chatcmpl-empty","model":"gpt-4o","choices":[]}`)
	srv := newTestServer(t, up.URL)

	rec := serve(srv, http.MethodPost, "/chat", `{"apiKey":"`+validKey+`","message":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, translator.NoReplyPlaceholder, env.Data.Message)
}

func TestChatRepeatedRequestsReachUpstreamEachTime(t *testing.T) {
	up := newUpstream(t, http.StatusOK, completionBody)
	srv := newTestServer(t, up.URL)
	body := `{"apiKey":"` + validKey + `","message":"hello"}`

	for i := 0; i < 2; i++ {
		rec := serve(srv, http.MethodPost, "/chat", body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeEnvelope(t, rec).Success)
	}
	assert.EqualValues(t, 2, up.calls.Load())
}

func TestDocs(t *testing.T) {
	srv := newTestServer(t, "https://api.openai.com/v1")

	for _, target := range []string{"/", "/?format=json&x=1"} {
		rec := serve(srv, http.MethodGet, target, "")

		require.Equal(t, http.StatusOK, rec.Code, target)
		assertJSONWithCORS(t, rec)
		assert.Contains(t, rec.Body.String(), `"/chat"`)
		assert.Contains(t, rec.Body.String(), `"endpoints"`)
	}

	var doc docsDocument
	require.NoError(t, json.Unmarshal(serve(srv, http.MethodGet, "/", "").Body.Bytes(), &doc))
	assert.Equal(t, "chat-relay", doc.Name)
	assert.Equal(t, "*", doc.CORS.AllowOrigin)
	assert.Equal(t, 86400, doc.CORS.MaxAge)
	chat := doc.Endpoints["/chat"]
	assert.Equal(t, "POST", chat.Method)
	assert.True(t, chat.Parameters["apiKey"].Required)
	assert.Equal(t, models.DefaultModel, chat.Parameters["model"].Default)
}

func TestPreflight(t *testing.T) {
	srv := newTestServer(t, "https://api.openai.com/v1")

	for _, target := range []string{"/", "/chat", "/anything"} {
		req := httptest.NewRequest(http.MethodOptions, target, nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Headers", "content-type, x-trace")
		rec := httptest.NewRecorder()
		srv.app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code, target)
		assert.Empty(t, rec.Body.Bytes(), target)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "content-type, x-trace", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS, HEAD", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	}
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, "https://api.openai.com/v1")

	tests := []struct {
		method string
		target string
	}{
		{method: http.MethodGet, target: "/missing"},
		{method: http.MethodGet, target: "/chat"},
		{method: http.MethodPost, target: "/"},
		{method: http.MethodPut, target: "/chat"},
		{method: http.MethodPost, target: "/v1/chat/completions"},
		{method: http.MethodPost, target: "/chat/"},
		{method: http.MethodGet, target: "/chat/extra"},
		{method: http.MethodHead, target: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := serve(srv, tt.method, tt.target, "")

			assert.Equal(t, http.StatusNotFound, rec.Code)
			assertJSONWithCORS(t, rec)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, translator.CodeNotFound, env.Code)
		})
	}
}

type panickingProvider struct{}

func (panickingProvider) Name() string { return "panic" }

func (panickingProvider) Chat(context.Context, models.ChatRequest) (*models.Completion, error) {
	panic("boom")
}

func TestPanicBecomesWorkerError(t *testing.T) {
	rt, err := router.New(panickingProvider{})
	require.NoError(t, err)
	srv, err := New(config.Default(), rt)
	require.NoError(t, err)

	rec := serve(srv, http.MethodPost, "/chat", `{"apiKey":"`+validKey+`","message":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assertJSONWithCORS(t, rec)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, translator.CodeWorkerError, env.Code)
	assert.Equal(t, workerErrorMessage, env.Message)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestWriteTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), writeTimeout(0))
	assert.Equal(t, 75*time.Second, writeTimeout(60*time.Second))
}
