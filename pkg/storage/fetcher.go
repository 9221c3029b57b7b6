// Package storage materializes remote images on local disk. It fetches http(s)://
// and s3:// URLs and keeps the results in a download cache.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// UserAgent is sent with every HTTP request.
const UserAgent = "rpi-os-flash"

// ErrUnsupportedScheme is returned for URLs no fetcher can handle.
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// Fetcher streams the bytes behind a URL into w and returns how many were copied.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// StatusError is returned when an HTTP server answers with a non-200 status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// HTTPFetcher fetches http:// and https:// URLs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client. A nil client gets a default with the given timeout
// applied per request; zero means no timeout.
func NewHTTPFetcher(client *http.Client, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", UserAgent)

	slog.Info("http_download_start", "url", rawURL)

	resp, err := f.client.Do(req)
	if err != nil {
		slog.Error("http_request_failed", "url", rawURL, "error", err)
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("http_bad_status", "url", rawURL, "status", resp.StatusCode)
		return 0, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		slog.Error("http_download_failed", "url", rawURL, "bytes", n, "error", err)
		return n, err
	}

	slog.Info("http_download_complete", "url", rawURL, "size_mb", n/1024/1024)
	return n, nil
}

// Router dispatches on the URL scheme. A nil S3 fetcher rejects s3:// URLs.
type Router struct {
	HTTP Fetcher
	S3   Fetcher
}

func (r *Router) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	var f Fetcher
	switch u.Scheme {
	case "http", "https":
		f = r.HTTP
	case "s3":
		f = r.S3
	}
	if f == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return f.Fetch(ctx, rawURL, w)
}
