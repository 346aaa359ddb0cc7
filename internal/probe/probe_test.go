package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenflood/internal/core"
)

func TestNewTCP_Address(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://127.0.0.1:8000/v1", "127.0.0.1:8000"},
		{"https://api.openai.com/v1", "api.openai.com:443"},
		{"http://localhost/v1", "localhost:80"},
	}
	for _, tt := range tests {
		p, err := NewTCP(tt.url, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Target())
	}

	_, err := NewTCP("/relative", nil)
	assert.Error(t, err)
}

func TestTCP_Probe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p, err := NewTCP("http://"+ln.Addr().String(), nil)
	require.NoError(t, err)

	ms, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms, 0)
}

func TestTCP_ProbeRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	p, err := NewTCP("http://"+addr, nil)
	require.NoError(t, err)

	_, err = p.Probe(context.Background())
	assert.Equal(t, core.FailureConnectivity, core.ClassifyFailure(err))
}

func TestOptions_Probe(t *testing.T) {
	var method string
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		header = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("Authorization", "Bearer k")
	h.Set("X-Stainless-Lang", "go")
	h.Set("Content-Length", "42")

	p := NewOptions(srv.Client(), srv.URL+"/v1/chat/completions", h, nil)
	ms, err := p.Probe(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, ms, 0)
	assert.Equal(t, http.MethodOptions, method)
	assert.Equal(t, "Bearer k", header.Get("Authorization"))
	assert.Empty(t, header.Get("X-Stainless-Lang"))
	assert.Equal(t, srv.URL+"/v1/chat/completions", p.Target())
}

func TestStripTrackingHeaders(t *testing.T) {
	h := http.Header{
		"X-Stainless-Os":     {"linux"},
		"x-stainless-retry":  {"0"},
		"Content-Length":     {"10"},
		"Authorization":      {"Bearer k"},
		"X-Custom-Stainless": {"kept"},
	}

	out := StripTrackingHeaders(h)

	assert.Equal(t, http.Header{
		"Authorization":      {"Bearer k"},
		"X-Custom-Stainless": {"kept"},
	}, out)
	assert.Len(t, h, 5)
}
