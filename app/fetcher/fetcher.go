package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	ConnectTimeout = 4 * time.Second
	ReadTimeout    = 4 * time.Second
)

type Result struct {
	Content      []byte
	LastModified string
	ETag         string
	Duration     time.Duration
}

// Fetcher performs conditional GETs of feed URLs. It holds no per-feed state
// and is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

func New(userAgent string) *Fetcher {
	return newFetcher(userAgent, ConnectTimeout, ReadTimeout)
}

func newFetcher(userAgent string, connectTimeout, readTimeout time.Duration) *Fetcher {
	dialer := &net.Dialer{Timeout: connectTimeout}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &idleTimeoutConn{Conn: conn, timeout: readTimeout}, nil
		},
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		// Pooled connections would trip the read deadline while idle
		DisableKeepAlives: true,
	}

	return &Fetcher{
		client:    &http.Client{Transport: transport},
		userAgent: userAgent,
	}
}

// Fetch retrieves url, sending the prior validators when known. It returns
// ErrNotModified when the server reports no change and *HTTPError for other
// non-success statuses. Anything else is a network failure.
func (f *Fetcher) Fetch(ctx context.Context, url, lastModified, etag string) (*Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept-Language", "en")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", f.userAgent)
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	respLastModified := resp.Header.Get("Last-Modified")
	respETag := resp.Header.Get("ETag")

	// Some servers ignore conditional headers but still echo the validator
	if lastModified != "" && lastModified == respLastModified {
		return nil, ErrNotModified
	}
	if etag != "" && etag == respETag {
		return nil, ErrNotModified
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Result{
		Content:      data,
		LastModified: respLastModified,
		ETag:         respETag,
		Duration:     time.Since(start),
	}, nil
}

// idleTimeoutConn fails a read that waits longer than timeout for data, so a
// server that stalls mid-body cannot hold a fetch forever.
type idleTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleTimeoutConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}
