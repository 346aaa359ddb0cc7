// Package testserver is a fake OpenAI-compatible chat completion server for
// trying out load runs without a real model behind them.
package testserver

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// charsPerToken matches the prompt synthesizer's estimate for free text.
const charsPerToken = 3.5

// DefaultMaxTokens is used when a request does not set max_tokens.
const DefaultMaxTokens = 16

// Config shapes the simulated endpoint.
type Config struct {
	// Latency is the fixed part of every response time.
	Latency time.Duration
	// PerOutputToken is added once per generated token.
	PerOutputToken time.Duration
	// FailRate is the percentage of requests answered with FailStatus.
	FailRate   int
	FailStatus int
	// APIKey, when set, is required as a bearer token or api-key header.
	APIKey string
	Seed   int64
}

// Server answers chat completion requests with synthetic usage figures.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	requests atomic.Int64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewServer(cfg Config) *Server {
	if cfg.FailStatus == 0 {
		cfg.FailStatus = http.StatusInternalServerError
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
		rng: rand.New(rand.NewSource(seed)),
	}
	s.registerHandlers()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Requests is how many completion requests were received.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/v1/chat/completions", s.handleChat)
	s.mux.HandleFunc("/openai/deployments/", s.handleChat)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleChat serves OPTIONS for latency probes and POST for completions.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Allow", "OPTIONS, POST")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}

	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid api key", "authentication_error")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body", "invalid_request_error")
		return
	}
	if !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "body is not valid JSON", "invalid_request_error")
		return
	}
	s.requests.Add(1)

	req := gjson.ParseBytes(body)
	prompt := strings.Join(stringsOf(req.Get("messages.#.content")), "\n")
	maxTokens := int(req.Get("max_tokens").Int())
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	delay := s.cfg.Latency + time.Duration(maxTokens)*s.cfg.PerOutputToken
	select {
	case <-r.Context().Done():
		return
	case <-time.After(delay):
	}

	if s.fail() {
		writeError(w, s.cfg.FailStatus, "simulated failure", "server_error")
		return
	}

	promptTokens, cached := EstimateTokens(prompt)
	response := map[string]any{
		"id":      "chatcmpl-" + strconv.FormatInt(s.requests.Load(), 10),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Get("model").String(),
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": Sequence(5, maxTokens)},
			"finish_reason": "length",
		}},
		"usage": map[string]any{
			"prompt_tokens":         promptTokens,
			"completion_tokens":     maxTokens,
			"total_tokens":          promptTokens + maxTokens,
			"prompt_tokens_details": map[string]int{"cached_tokens": cached},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.APIKey == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.cfg.APIKey ||
		r.Header.Get("api-key") == s.cfg.APIKey
}

func (s *Server) fail() bool {
	if s.cfg.FailRate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(100) < s.cfg.FailRate
}

func writeError(w http.ResponseWriter, status int, message, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message, "type": kind},
	})
}

func stringsOf(r gjson.Result) []string {
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}

// EstimateTokens counts each whitespace separated word of the first line as
// one token and the rest at charsPerToken. The leading run of repeated
// words is reported as cached prefix tokens.
func EstimateTokens(prompt string) (total, cached int) {
	filler, rest, _ := strings.Cut(prompt, "\n")
	words := strings.Fields(filler)
	total = len(words) + int(math.Ceil(float64(len(rest))/charsPerToken))
	for i := 1; i < len(words) && words[i] == words[0]; i++ {
		cached = i + 1
	}
	return total, cached
}

// Sequence is n consecutive numbers starting at from, space separated.
func Sequence(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strconv.Itoa(from + i)
	}
	return strings.Join(parts, " ")
}
