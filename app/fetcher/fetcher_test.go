package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSendsHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", "Tue, 04 Jul 2023 10:00:00 GMT")
		w.Write([]byte("<rss/>"))
	}))
	defer server.Close()

	result, err := New("test-agent/1.0").Fetch(context.Background(), server.URL, "Mon, 03 Jul 2023 10:00:00 GMT", `"v1"`)
	require.NoError(t, err)

	got := <-headers

	assert.Equal(t, "en", got.Get("Accept-Language"))
	assert.Equal(t, "no-cache", got.Get("Pragma"))
	assert.Equal(t, "no-cache", got.Get("Cache-Control"))
	assert.Equal(t, "test-agent/1.0", got.Get("User-Agent"))
	assert.Equal(t, "Mon, 03 Jul 2023 10:00:00 GMT", got.Get("If-Modified-Since"))
	assert.Equal(t, `"v1"`, got.Get("If-None-Match"))

	assert.Equal(t, []byte("<rss/>"), result.Content)
	assert.Equal(t, `"v2"`, result.ETag)
	assert.Equal(t, "Tue, 04 Jul 2023 10:00:00 GMT", result.LastModified)
}

func TestFetchOmitsEmptyValidators(t *testing.T) {
	headers := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	defer server.Close()

	_, err := New("ua").Fetch(context.Background(), server.URL, "", "")
	require.NoError(t, err)

	got := <-headers

	_, ok := got["If-Modified-Since"]
	assert.False(t, ok)
	_, ok = got["If-None-Match"]
	assert.False(t, ok)
}

func TestFetchNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	_, err := New("ua").Fetch(context.Background(), server.URL, "", `"abc"`)
	assert.ErrorIs(t, err, ErrNotModified)
}

func TestFetchEchoedETagIsNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<rss/>"))
	}))
	defer server.Close()

	_, err := New("ua").Fetch(context.Background(), server.URL, "", `"abc"`)
	assert.ErrorIs(t, err, ErrNotModified)
}

func TestFetchEchoedLastModifiedIsNotModified(t *testing.T) {
	const lm = "Mon, 03 Jul 2023 10:00:00 GMT"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", lm)
		w.Write([]byte("<rss/>"))
	}))
	defer server.Close()

	_, err := New("ua").Fetch(context.Background(), server.URL, lm, "")
	assert.ErrorIs(t, err, ErrNotModified)
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New("ua").Fetch(context.Background(), server.URL, "", "")

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.False(t, errors.Is(err, ErrNotModified))
}

func TestFetchTrustsAnyCertificate(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	result, err := New("ua").Fetch(context.Background(), server.URL, "", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), result.Content)
}

func TestFetchNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New("ua").Fetch(context.Background(), url, "", "")
	require.Error(t, err)

	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
	assert.False(t, errors.Is(err, ErrNotModified))
}

func TestFetchSlowBodyTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<rss>"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-time.After(10 * time.Second):
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := newFetcher("ua", time.Second, 200*time.Millisecond).Fetch(context.Background(), server.URL, "", "")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
	assert.False(t, errors.Is(err, ErrNotModified))
}

func TestFetchSlowBodyWithinTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rss>"))
		w.(http.Flusher).Flush()
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("</rss>"))
	}))
	defer server.Close()

	result, err := newFetcher("ua", time.Second, time.Second).Fetch(context.Background(), server.URL, "", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("<rss></rss>"), result.Content)
}
