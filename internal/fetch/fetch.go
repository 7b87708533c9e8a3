// Package fetch provides the HTTP client used to download wiki pages.
//
// The client retries transient failures with exponential backoff, revalidates
// cached pages with conditional requests, decodes compressed bodies, and sends
// per-host bearer tokens. HTTP/3 over QUIC can be enabled per client.
package fetch

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/latebit/wikihop/internal/cache"
	"github.com/latebit/wikihop/internal/tokens"
	"github.com/quic-go/quic-go/http3"
)

// DefaultUserAgent identifies the crawler to wiki servers.
const DefaultUserAgent = "wikihop/1.0 (+https://github.com/latebit/wikihop)"

// Error describes a fetch that failed with an unexpected HTTP status or a
// transport error.
type Error struct {
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrBodyTooLarge is returned when a page exceeds Options.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// Options configures client behavior.
type Options struct {
	Cache          *cache.Cache
	Tokens         *tokens.Store
	UserAgent      string
	Insecure       bool
	HTTP3          bool
	RequestTimeout time.Duration // per attempt, 0 leaves it to the caller's context
	MaxRetries     int           // attempts per fetch (default: 3)
	Backoff        time.Duration // base backoff between attempts (default: 100ms)
	MaxBodyBytes   int64         // default: 8 MiB
	Logger         *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 100 * time.Millisecond
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 8 << 20
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Result holds a page body and metadata about how it was served.
type Result struct {
	URL       string
	Status    int
	Body      string
	FromCache bool
}

// Client downloads pages over HTTP/1.1, HTTP/2 or HTTP/3. It is safe for
// concurrent use.
type Client struct {
	opts  Options
	http  *http.Client
	close func() error
}

// NewClient creates a new client with the given options.
func NewClient(opts Options) *Client {
	opts.applyDefaults()
	tlsConf := &tls.Config{InsecureSkipVerify: opts.Insecure}

	c := &Client{opts: opts, close: func() error { return nil }}
	if opts.HTTP3 {
		tr := &http3.Transport{TLSClientConfig: tlsConf}
		c.http = &http.Client{Transport: tr, Timeout: opts.RequestTimeout}
		c.close = tr.Close
		return c
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tlsConf
	tr.MaxIdleConnsPerHost = 64
	c.http = &http.Client{Transport: tr, Timeout: opts.RequestTimeout}
	c.close = func() error {
		tr.CloseIdleConnections()
		return nil
	}
	return c
}

// Close releases pooled connections.
func (c *Client) Close() error {
	return c.close()
}

// Fetch returns the body of the page at rawURL. It satisfies the fetcher
// interface expected by the search package.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	res, err := c.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

// Get retrieves a page, revalidating any cached copy.
func (c *Client) Get(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, &Error{URL: rawURL, Err: fmt.Errorf("invalid URL: %w", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{}, &Error{URL: rawURL, Err: fmt.Errorf("unsupported scheme: %q", u.Scheme)}
	}
	return c.doWithRetry(ctx, func() (Result, error) {
		return c.cachedRequest(ctx, rawURL)
	})
}

// cachedRequest performs one GET, conditional when a cached copy exists.
func (c *Client) cachedRequest(ctx context.Context, rawURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, &Error{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html, text/markdown;q=0.9, */*;q=0.1")
	req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	if token := c.opts.Tokens.ForURL(rawURL); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	var cached *cache.Entry
	if c.opts.Cache != nil {
		cached, _ = c.opts.Cache.Get(rawURL)
		if cached != nil {
			if etag := cached.Page.ETag; etag != "" {
				req.Header.Set("If-None-Match", etag)
			}
			if mod := cached.Page.LastModified; mod != "" {
				req.Header.Set("If-Modified-Since", mod)
			}
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		return Result{URL: rawURL, Status: http.StatusOK, Body: cached.Page.Body, FromCache: true}, nil
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return Result{}, &Error{URL: rawURL, Status: resp.StatusCode}
	}

	body, err := c.readBody(resp)
	if err != nil {
		return Result{}, &Error{URL: rawURL, Status: resp.StatusCode, Err: err}
	}

	if c.opts.Cache != nil {
		page := cache.Page{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Body:         body,
		}
		if err := c.opts.Cache.Put(page); err != nil {
			c.opts.Logger.Warn("cache write failed", "url", rawURL, "error", err)
		}
	}

	return Result{URL: rawURL, Status: resp.StatusCode, Body: body}, nil
}

// readBody decodes the response according to its Content-Encoding and
// enforces the body size limit.
func (c *Client) readBody(resp *http.Response) (string, error) {
	var r io.Reader = resp.Body
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return "", fmt.Errorf("unsupported content encoding %q", enc)
	}

	data, err := io.ReadAll(io.LimitReader(r, c.opts.MaxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.opts.MaxBodyBytes {
		return "", ErrBodyTooLarge
	}
	return string(data), nil
}

// doWithRetry retries transient failures with exponential backoff + jitter.
// Waiting between attempts stops as soon as ctx is done.
func (c *Client) doWithRetry(ctx context.Context, fn func() (Result, error)) (Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == c.opts.MaxRetries-1 || !isTransientError(err) {
			break
		}

		backoff := c.opts.Backoff * time.Duration(1<<uint(attempt))
		jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))
		c.opts.Logger.Debug("retrying fetch", "attempt", attempt+1, "backoff", backoff+jitter, "error", err)

		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, lastErr
		case <-timer.C:
		}
	}
	return Result{}, lastErr
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Status != 0 {
		return fe.Status == http.StatusTooManyRequests || fe.Status >= 500
	}
	if isTimeoutError(err) || isTemporaryError(err) {
		return true
	}
	errStr := err.Error()
	switch {
	case strings.HasSuffix(errStr, "EOF"):
		return true
	case strings.Contains(errStr, "no recent network activity"):
		return true
	case strings.Contains(errStr, "connection refused"):
		return true
	case strings.Contains(errStr, "connection reset"):
		return true
	}
	return false
}

func isTimeoutError(err error) bool {
	type timeoutError interface {
		Timeout() bool
	}
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}

func isTemporaryError(err error) bool {
	type temporaryError interface {
		Temporary() bool
	}
	var te temporaryError
	return errors.As(err, &te) && te.Temporary()
}
