// File: internal/llmclient/client_test.go
package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/config"
)

func testClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := NewClient(config.LLMConfig{
		APIKey:     "test-key",
		Model:      "test-model",
		Endpoint:   endpoint,
		APITimeout: 5 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

const okResponse = `{
	"candidates": [{"content": {"parts": [{"text": "generated text"}]}, "finishReason": "STOP"}],
	"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15}
}`

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.LLMConfig{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestGenerateSendsPayloadAndParsesResponse(t *testing.T) {
	var gotPayload apiRequestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	out, err := c.Generate(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "be terse",
		UserPrompt:   "make a service",
		Options:      schemas.GenerationOptions{Temperature: 0.1, ForceJSONFormat: true, MaxTokens: 512},
	})
	require.NoError(t, err)
	assert.Equal(t, "generated text", out)

	require.Len(t, gotPayload.Contents, 1)
	assert.Equal(t, "make a service", gotPayload.Contents[0].Parts[0].Text)
	require.NotNil(t, gotPayload.SystemInstruction)
	assert.Equal(t, "be terse", gotPayload.SystemInstruction.Parts[0].Text)
	assert.Equal(t, 0.1, gotPayload.GenerationConfig.Temperature)
	assert.Equal(t, "application/json", gotPayload.GenerationConfig.ResponseMimeType)
	assert.Equal(t, 512, gotPayload.GenerationConfig.MaxOutputTokens)
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	out, err := c.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "generated text", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestGenerateRejectsBlockedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": []}, "finishReason": "SAFETY"}]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestNewFromConfigWithoutKeyIsOffline(t *testing.T) {
	client, err := NewFromConfig(config.LLMConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```javascript\nconst x = 1;\n```", "const x = 1;"},
		{"```\nraw\n```", "raw"},
		{"  ```json\n[]\n```  ", "[]"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StripFences(tc.in))
	}
}
