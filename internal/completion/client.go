// Package completion is an OpenAI-compatible chat completion client.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"tokenflood/internal/config"
	"tokenflood/internal/core"
)

const (
	// maxResponseBodySize limits the response body read for parsing.
	maxResponseBodySize = 10 * 1024 * 1024
	// maxErrorBodySize limits how much of an error body ends up in a record.
	maxErrorBodySize = 512
	// DefaultMaxConns bounds pooled connections to the endpoint.
	DefaultMaxConns = 2000
)

// Response fields read from the completion body.
const (
	pathPromptTokens = "usage.prompt_tokens"
	pathOutputTokens = "usage.completion_tokens"
	pathCachedTokens = "usage.prompt_tokens_details.cached_tokens"
	pathContent      = "choices.0.message.content"
	pathErrorMessage = "error.message"
)

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []core.Message `json:"messages"`
	MaxTokens int            `json:"max_tokens"`
	Stream    bool           `json:"stream"`
}

// Client sends completion requests over one shared HTTP session.
// Safe for concurrent use.
type Client struct {
	http   *http.Client
	url    string
	model  string
	header http.Header
	clock  core.Clock
	logger *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithClock(c core.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewTransport clones the default transport with a large connection pool.
func NewTransport(maxConns int) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = maxConns
	t.MaxConnsPerHost = maxConns
	t.MaxIdleConnsPerHost = maxConns
	return t
}

// New builds a client for the endpoint. apiKey may be empty.
func New(ep config.Endpoint, apiKey string, opts ...Option) (*Client, error) {
	target, err := chatURL(ep)
	if err != nil {
		return nil, err
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	if apiKey != "" {
		if ep.Deployment != "" {
			header.Set("api-key", apiKey)
		} else {
			header.Set("Authorization", "Bearer "+apiKey)
		}
	}
	for k, v := range ep.ExtraHeaders {
		header.Set(k, v)
	}

	c := &Client{
		http:   &http.Client{Transport: NewTransport(DefaultMaxConns)},
		url:    target,
		model:  ep.Model,
		header: header,
		clock:  core.RealClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func chatURL(ep config.Endpoint) (string, error) {
	base := strings.TrimRight(ep.BaseURL, "/")
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("parsing base_url: %w", err)
	}
	if ep.Deployment == "" {
		return base + "/chat/completions", nil
	}
	q := url.Values{"api-version": {ep.APIVersion}}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s",
		base, url.PathEscape(ep.Deployment), q.Encode()), nil
}

// URL is the chat completions URL requests are sent to.
func (c *Client) URL() string { return c.url }

// Header returns a copy of the headers sent with every request.
func (c *Client) Header() http.Header { return c.header.Clone() }

// HTTPClient is the shared session, reused by the OPTIONS probe.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Complete sends one request. It never retries. Errors are *core.Failure.
func (c *Client) Complete(ctx context.Context, req core.CompletionRequest) (core.CompletionResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return core.CompletionResult{}, core.NewFailure(core.FailureProtocol, "encoding request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return core.CompletionResult{}, core.NewFailure(core.FailureProtocol, "building request", err)
	}
	httpReq.Header = c.header.Clone()

	start := c.clock.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return core.CompletionResult{}, transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	latency := c.clock.Since(start)
	if err != nil {
		return core.CompletionResult{}, transportFailure(ctx, err)
	}

	c.logger.Debug("completion response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency),
		zap.Int("bytes", len(respBody)),
	)

	if resp.StatusCode >= 300 {
		return core.CompletionResult{}, statusFailure(resp.StatusCode, respBody)
	}
	return parseResult(respBody, latency)
}

func parseResult(body []byte, latency time.Duration) (core.CompletionResult, error) {
	if !gjson.ValidBytes(body) {
		return core.CompletionResult{}, core.NewFailure(core.FailureProtocol, "invalid JSON in response body", nil)
	}
	fields := gjson.GetManyBytes(body, pathPromptTokens, pathOutputTokens, pathCachedTokens, pathContent)
	if !fields[0].Exists() || !fields[1].Exists() {
		return core.CompletionResult{}, core.NewFailure(core.FailureProtocol, "response has no usage", nil)
	}
	return core.CompletionResult{
		LatencyMs:    int(latency.Milliseconds()),
		InputTokens:  int(fields[0].Int()),
		OutputTokens: int(fields[1].Int()),
		PrefixTokens: int(fields[2].Int()),
		Text:         fields[3].String(),
	}, nil
}

func transportFailure(ctx context.Context, err error) *core.Failure {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return core.NewFailure(core.FailureCancelled, "request cancelled", err)
	}
	return core.NewFailure(core.FailureConnectivity, "", err)
}

func statusFailure(status int, body []byte) *core.Failure {
	msg := gjson.GetBytes(body, pathErrorMessage).String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorBodySize {
			msg = strings.ToValidUTF8(msg[:maxErrorBodySize], "")
		}
	}
	msg = fmt.Sprintf("%d %s: %s", status, http.StatusText(status), msg)

	var kind core.FailureKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = core.FailureAuth
	case status == http.StatusTooManyRequests:
		kind = core.FailureRateLimit
	case status >= 500:
		kind = core.FailureConnectivity
	default:
		kind = core.FailureProtocol
	}
	f := core.NewFailure(kind, msg, nil)
	f.StatusCode = status
	return f
}
