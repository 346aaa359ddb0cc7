// Package probe measures network latency to the completion endpoint.
package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"tokenflood/internal/core"
)

// TCP times a connect and close to host:port.
type TCP struct {
	addr   string
	dialer net.Dialer
	clock  core.Clock
}

// NewTCP derives host:port from rawURL, defaulting the port by scheme.
func NewTCP(rawURL string, clock core.Clock) (*TCP, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing probe url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("probe url %q has no host", rawURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	return &TCP{addr: net.JoinHostPort(u.Hostname(), port), clock: clock}, nil
}

func (p *TCP) Target() string { return p.addr }

func (p *TCP) Probe(ctx context.Context) (int, error) {
	start := p.clock.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return 0, core.NewFailure(core.ClassifyFailure(err), "tcp probe", err)
	}
	elapsed := p.clock.Since(start)
	_ = conn.Close()
	return int(elapsed.Milliseconds()), nil
}

// Options times an OPTIONS request over the shared completion session.
type Options struct {
	client *http.Client
	url    string
	header http.Header
	clock  core.Clock
}

// NewOptions reuses the completion client's session and headers, minus the
// client tracking headers.
func NewOptions(client *http.Client, url string, header http.Header, clock core.Clock) *Options {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Options{
		client: client,
		url:    url,
		header: StripTrackingHeaders(header),
		clock:  clock,
	}
}

func (p *Options) Target() string { return p.url }

func (p *Options) Probe(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, p.url, nil)
	if err != nil {
		return 0, core.NewFailure(core.FailureProtocol, "building probe request", err)
	}
	req.Header = p.header.Clone()

	start := p.clock.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, core.NewFailure(core.ClassifyFailure(err), "options probe", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return int(p.clock.Since(start).Milliseconds()), nil
}

// StripTrackingHeaders returns a copy of h without x-stainless* and
// content-length headers.
func StripTrackingHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, "x-stainless") || lower == "content-length" {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}
