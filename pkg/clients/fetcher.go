package clients

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ajitpratap0/conduit/pkg/errors"
)

// Response is the metadata and streaming body of a fetched resource.
// Body must be closed by the consumer.
type Response struct {
	URL           string
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// ContentEncoding returns the declared Content-Encoding, if any
func (r *Response) ContentEncoding() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Encoding")
}

// Fetcher fetches a resource by URL
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, rawURL string) (*Response, error)

// Fetch calls f
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	return f(ctx, rawURL)
}

// SchemeFetcher routes a URL to the fetcher registered for its scheme.
type SchemeFetcher struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// NewSchemeFetcher creates a router with http and https mapped to httpFetcher
func NewSchemeFetcher(httpFetcher Fetcher) *SchemeFetcher {
	s := &SchemeFetcher{fetchers: make(map[string]Fetcher)}
	if httpFetcher != nil {
		s.fetchers["http"] = httpFetcher
		s.fetchers["https"] = httpFetcher
	}
	return s
}

// Register maps scheme to f, replacing any previous mapping
func (s *SchemeFetcher) Register(scheme string, f Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[strings.ToLower(scheme)] = f
}

// Schemes returns the registered schemes
func (s *SchemeFetcher) Schemes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.fetchers))
	for scheme := range s.fetchers {
		out = append(out, scheme)
	}
	return out
}

// Fetch dispatches to the scheme's fetcher
func (s *SchemeFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidInput, "invalid resource URL")
	}

	s.mu.RLock()
	f, ok := s.fetchers[strings.ToLower(u.Scheme)]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInvalidInput, "unsupported URL scheme %q", u.Scheme)
	}
	return f.Fetch(ctx, rawURL)
}

// splitBucketURL splits scheme://bucket/path/to/key into bucket and key
func splitBucketURL(rawURL, scheme string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrorTypeInvalidInput, "invalid resource URL")
	}
	if !strings.EqualFold(u.Scheme, scheme) {
		return "", "", errors.Newf(errors.ErrorTypeInvalidInput, "expected %s:// URL, got %q", scheme, u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", errors.Newf(errors.ErrorTypeInvalidInput, "%s URL must name a bucket and a key", scheme)
	}
	return u.Host, key, nil
}
