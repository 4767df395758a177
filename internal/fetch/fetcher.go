// Package fetch downloads remote image resources with bounded concurrency
// and classifies every failure so the engine can record it per resource.
package fetch

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

// ErrorKind categorizes a fetch failure.
type ErrorKind string

const (
	// KindTimeout indicates the request exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindConnection indicates a transport-level failure (DNS, refused, reset).
	KindConnection ErrorKind = "connection"
	// KindHTTPStatus indicates a non-success HTTP response.
	KindHTTPStatus ErrorKind = "http_status"
	// KindTooLarge indicates the body exceeded the per-resource byte cap.
	KindTooLarge ErrorKind = "too_large"
	// KindDisallowedScheme indicates a non-http(s) URL, rejected before any dial.
	KindDisallowedScheme ErrorKind = "disallowed_scheme"
)

// Error is a classified fetch failure. Attempts counts every request made
// for the resource in this pass, including the first.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Detail     string
	Attempts   int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

// Retryable reports whether another attempt could plausibly succeed.
// Client errors other than 429 are final; timeouts, transport failures,
// 429 and 5xx are worth retrying.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection:
		return true
	case KindHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

// Result is a successful fetch outcome. The fetcher never touches disk;
// persisting the body is the caller's responsibility.
type Result struct {
	Body        []byte
	ContentType string
	Attempts    int
}

//go:generate mockgen -source=fetcher.go -destination=fetcher_mock.go -package=fetch

// Fetcher is the port for downloading a single remote resource.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Result, error)
}

// Config holds HTTPFetcher settings.
type Config struct {
	// Timeout applies per attempt, not across retries.
	Timeout time.Duration
	// MaxBytes caps the response body size per resource.
	MaxBytes int64
	// Retries is the number of additional attempts after the first.
	Retries int
	// RetryDelay is the base backoff; the wait grows linearly per attempt.
	RetryDelay time.Duration
	// Logger is optional.
	Logger *slog.Logger
}

// HTTPFetcher downloads resources over HTTP(S) with in-fetch retry for
// transient failures.
type HTTPFetcher struct {
	client     *http.Client
	timeout    time.Duration
	maxBytes   int64
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// Browser-like headers; some image hosts reject requests without them.
const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36" +
		" (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader         = "image/webp,image/apng,image/*,*/*;q=0.8"
	acceptLanguageHeader = "zh-CN,zh;q=0.9,en;q=0.8"
)

// NewHTTPFetcher creates a fetcher with the given settings.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client:     &http.Client{},
		timeout:    cfg.Timeout,
		maxBytes:   cfg.MaxBytes,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With("component", "fetcher"),
	}
}

// Fetch downloads one resource, retrying transient failures with linear
// backoff. The returned error is always a *fetch.Error.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if err := checkScheme(rawURL); err != nil {
		err.Attempts = 0
		return nil, err
	}

	var lastErr *Error
	attempts := 0
	for attempt := 0; attempt <= f.retries; attempt++ {
		attempts++
		res, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			res.Attempts = attempts
			return res, nil
		}

		lastErr = err
		if !err.Retryable() {
			break
		}
		if attempt < f.retries {
			if waitErr := sleepContext(ctx, f.retryDelay*time.Duration(attempt+1)); waitErr != nil {
				break
			}
		}
	}

	lastErr.Attempts = attempts
	f.logger.Debug("fetch failed", "url", rawURL, "kind", lastErr.Kind, "attempts", attempts)
	return nil, lastErr
}

// fetchOnce performs a single attempt within the configured timeout.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) (*Result, *Error) {
	reqCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindConnection, Detail: err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)
	req.Header.Set("Referer", rawURL)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindHTTPStatus, StatusCode: resp.StatusCode}
	}

	body, readErr := f.readCapped(resp.Body)
	if readErr != nil {
		return nil, readErr
	}

	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// readCapped reads the body enforcing the per-resource byte cap while
// streaming, so oversized responses are abandoned early.
func (f *HTTPFetcher) readCapped(r io.Reader) ([]byte, *Error) {
	if f.maxBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, classifyTransportError(err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &Error{
			Kind:   KindTooLarge,
			Detail: fmt.Sprintf("body exceeds %d bytes", f.maxBytes),
		}
	}
	return body, nil
}

// checkScheme rejects anything but http/https before any network call.
func checkScheme(rawURL string) *Error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &Error{Kind: KindDisallowedScheme, Detail: "unparseable URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &Error{
			Kind:   KindDisallowedScheme,
			Detail: fmt.Sprintf("scheme %q not allowed", u.Scheme),
		}
	}
	return nil
}

// classifyTransportError maps a transport failure to timeout or connection.
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Detail: "download timeout"}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Detail: "download timeout"}
	}
	return &Error{Kind: KindConnection, Detail: err.Error()}
}

// sleepContext waits for d unless the context finishes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
