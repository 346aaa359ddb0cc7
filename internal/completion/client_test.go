package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenflood/internal/config"
	"tokenflood/internal/core"
)

const okBody = `{
  "id": "cmpl-1",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "5 6 7 8"}}],
  "usage": {
    "prompt_tokens": 530,
    "completion_tokens": 32,
    "prompt_tokens_details": {"cached_tokens": 128}
  }
}`

func newTestClient(t *testing.T, srv *httptest.Server, ep config.Endpoint, key string) *Client {
	t.Helper()
	ep.BaseURL = srv.URL + "/v1"
	if ep.Model == "" {
		ep.Model = "test-model"
	}
	c, err := New(ep, key, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestClient_Complete(t *testing.T) {
	var got chatRequest
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotHeader = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, config.Endpoint{ExtraHeaders: map[string]string{"X-Team": "perf"}}, "sk-test")

	res, err := c.Complete(context.Background(), core.CompletionRequest{
		Messages:  core.UserMessages("hello"),
		MaxTokens: 32,
	})
	require.NoError(t, err)

	assert.Equal(t, 530, res.InputTokens)
	assert.Equal(t, 128, res.PrefixTokens)
	assert.Equal(t, 32, res.OutputTokens)
	assert.Equal(t, "5 6 7 8", res.Text)
	assert.GreaterOrEqual(t, res.LatencyMs, 0)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 32, got.MaxTokens)
	assert.Equal(t, []core.Message{{Role: "user", Content: "hello"}}, got.Messages)
	assert.Equal(t, "Bearer sk-test", gotHeader.Get("Authorization"))
	assert.Equal(t, "perf", gotHeader.Get("X-Team"))
}

func TestClient_CompleteWithoutCachedTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"x"}}],"usage":{"prompt_tokens":10,"completion_tokens":1}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv, config.Endpoint{}, "").Complete(context.Background(), core.CompletionRequest{MaxTokens: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, res.PrefixTokens)
	assert.Equal(t, 10, res.InputTokens)
}

func TestClient_StatusFailures(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		want    core.FailureKind
		message string
	}{
		{http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`, core.FailureAuth, "invalid api key"},
		{http.StatusForbidden, `forbidden`, core.FailureAuth, "forbidden"},
		{http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, core.FailureRateLimit, "slow down"},
		{http.StatusBadGateway, `upstream`, core.FailureConnectivity, "502 Bad Gateway"},
		{http.StatusBadRequest, `{"error":{"message":"max_tokens too large"}}`, core.FailureProtocol, "max_tokens too large"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv, config.Endpoint{}, "").Complete(context.Background(), core.CompletionRequest{MaxTokens: 1})
			require.Error(t, err)

			var f *core.Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, tt.want, f.Kind)
			assert.Equal(t, tt.status, f.StatusCode)
			assert.Contains(t, f.Message, tt.message)
		})
	}
}

func TestClient_LongErrorBodyKeepsValidUTF8(t *testing.T) {
	body := "x" + strings.Repeat("é", maxErrorBodySize)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, config.Endpoint{}, "").Complete(context.Background(), core.CompletionRequest{MaxTokens: 1})

	var f *core.Failure
	require.ErrorAs(t, err, &f)
	assert.True(t, utf8.ValidString(f.Message))
	assert.True(t, strings.HasSuffix(f.Message, ": x"+strings.Repeat("é", (maxErrorBodySize-1)/2)))
}

func TestClient_ProtocolFailures(t *testing.T) {
	for name, body := range map[string]string{
		"not json": `<html>oops</html>`,
		"no usage": `{"choices":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv, config.Endpoint{}, "").Complete(context.Background(), core.CompletionRequest{MaxTokens: 1})
			assert.Equal(t, core.FailureProtocol, core.ClassifyFailure(err))
		})
	}
}

func TestClient_ConnectivityFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv, config.Endpoint{}, "")
	srv.Close()

	_, err := c.Complete(context.Background(), core.CompletionRequest{MaxTokens: 1})
	assert.Equal(t, core.FailureConnectivity, core.ClassifyFailure(err))
}

func TestClient_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv, config.Endpoint{}, "").Complete(ctx, core.CompletionRequest{MaxTokens: 1})
	assert.Equal(t, core.FailureCancelled, core.ClassifyFailure(err))
}

func TestClient_AzureDeployment(t *testing.T) {
	var path, version, key, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		version = r.URL.Query().Get("api-version")
		key = r.Header.Get("api-key")
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, config.Endpoint{Deployment: "gpt4o", APIVersion: "2024-06-01"}, "azure-key")
	_, err := c.Complete(context.Background(), core.CompletionRequest{MaxTokens: 1})
	require.NoError(t, err)

	assert.Equal(t, "/v1/openai/deployments/gpt4o/chat/completions", path)
	assert.Equal(t, "2024-06-01", version)
	assert.Equal(t, "azure-key", key)
	assert.Empty(t, auth)
}

func TestNewTransport(t *testing.T) {
	tr := NewTransport(500)
	assert.Equal(t, 500, tr.MaxConnsPerHost)
	assert.Equal(t, 500, tr.MaxIdleConnsPerHost)
}

func TestClient_Accessors(t *testing.T) {
	c, err := New(config.Endpoint{Model: "m", BaseURL: "http://127.0.0.1:8000/v1/"}, "k")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000/v1/chat/completions", c.URL())
	assert.Equal(t, "Bearer k", c.Header().Get("Authorization"))
	assert.NotNil(t, c.HTTPClient())
}
