// Package fetch provides the HTTP capability the crawl engine consumes.
// Transport details like user agents and proxies live here, not in the
// engine.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// maxBodyBytes caps how much of a response body is read. Sitemaps and
// article pages both fit comfortably under this.
const maxBodyBytes = 10 << 20

// Fetcher retrieves the body of a URL.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Error is a failed fetch: a transport error or a non-2xx response.
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPFetcher is the plain HTTP implementation, with user-agent rotation
// and optional proxy rotation.
type HTTPFetcher struct {
	client *http.Client
	agents *AgentPool
}

// NewHTTPFetcher builds a fetcher with the given request timeout. proxies
// may be empty.
func NewHTTPFetcher(timeout time.Duration, proxies []string) (*HTTPFetcher, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if len(proxies) > 0 {
		switcher, err := newProxySwitcher(proxies)
		if err != nil {
			return nil, err
		}
		transport.Proxy = switcher.proxyFor
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout, Transport: transport},
		agents: NewAgentPool(),
	}, nil
}

func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.agents.Random())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	return body, nil
}

type proxySwitcher struct {
	urls  []*url.URL
	index uint32
}

func newProxySwitcher(proxies []string) (*proxySwitcher, error) {
	urls := make([]*url.URL, len(proxies))
	for i, p := range proxies {
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("bad proxy url %q: %w", p, err)
		}
		urls[i] = u
	}
	return &proxySwitcher{urls: urls}, nil
}

// proxyFor rotates through the configured proxies round-robin.
func (s *proxySwitcher) proxyFor(_ *http.Request) (*url.URL, error) {
	i := atomic.AddUint32(&s.index, 1) - 1
	return s.urls[i%uint32(len(s.urls))], nil
}
