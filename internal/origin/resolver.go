// Package origin determines the caller's current public network address.
// Resolution is best-effort: every consumer must tolerate an unavailable
// origin and degrade to the trust policy's fail-closed path.
package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned when no lookup source produced a usable
// address. It is recovered inside the coordinator (the attempt proceeds
// with an unknown origin) and never surfaces to the client.
var ErrUnavailable = errors.New("origin: address unavailable")

// Resolver supplies the caller's current network address.
type Resolver interface {
	// Resolve returns the caller's public address, or ErrUnavailable.
	Resolve(ctx context.Context) (string, error)
}

// Static is a resolver for an address the transport layer already observed
// (the extracted client IP of the HTTP request). An empty or unparseable
// address resolves as unavailable.
type Static string

// Resolve returns the wrapped address.
func (s Static) Resolve(ctx context.Context) (string, error) {
	ip := net.ParseIP(string(s))
	if ip == nil {
		return "", ErrUnavailable
	}
	return ip.String(), nil
}

// maxBody caps the lookup response size; these endpoints return a bare
// address, anything bigger is not one.
const maxBody = 64

// HTTPResolver queries public what-is-my-address endpoints in order, with a
// short per-attempt timeout, falling through to the next source on any
// failure. Used by deployments where the service runs next to the user
// (desktop agent) and no reverse proxy observes the client address.
type HTTPResolver struct {
	urls    []string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPResolver creates a resolver over the given lookup endpoints.
// attemptTimeout bounds each individual request, 2 s per attempt by
// default; the caller's context bounds the whole resolution.
func NewHTTPResolver(urls []string, attemptTimeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		urls:    urls,
		timeout: attemptTimeout,
		client:  &http.Client{},
	}
}

// Resolve tries each lookup source in sequence and returns the first
// parseable address. All sources failing yields ErrUnavailable.
func (r *HTTPResolver) Resolve(ctx context.Context) (string, error) {
	for _, url := range r.urls {
		addr, err := r.lookup(ctx, url)
		if err == nil {
			return addr, nil
		}
		if ctx.Err() != nil {
			// The overall deadline expired; no point trying further sources.
			break
		}
		slog.Debug("origin lookup failed, trying next source",
			slog.String("url", url),
			slog.Any("error", err),
		)
	}
	return "", ErrUnavailable
}

// lookup performs a single bounded request against one source.
func (r *HTTPResolver) lookup(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("querying %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("reading %s response: %w", url, err)
	}

	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil {
		return "", fmt.Errorf("%s returned an unparseable address", url)
	}
	return ip.String(), nil
}
