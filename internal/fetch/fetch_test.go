package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/latebit/wikihop/internal/cache"
	"github.com/latebit/wikihop/internal/logging"
	"github.com/latebit/wikihop/internal/tokens"
)

func newTestClient(opts Options) *Client {
	if opts.Backoff == 0 {
		opts.Backoff = time.Millisecond
	}
	opts.Logger = logging.Discard()
	return NewClient(opts)
}

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wiki/Raven" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "<title>Raven</title>")
	}))
	defer srv.Close()

	c := newTestClient(Options{})
	defer c.Close()

	body, err := c.Fetch(context.Background(), srv.URL+"/wiki/Raven")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if body != "<title>Raven</title>" {
		t.Errorf("body = %q", body)
	}
}

func TestFetchSendsHeaders(t *testing.T) {
	var gotUA, gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		gotAuth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	store, err := tokens.Load(filepath.Join(t.TempDir(), "tokens.toml"))
	if err != nil {
		t.Fatalf("load tokens: %v", err)
	}
	host := strings.TrimPrefix(srv.URL, "http://")
	if err := store.Set(host, "secret"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	c := newTestClient(Options{Tokens: store, UserAgent: "wikihop-test"})
	defer c.Close()

	if _, err := c.Fetch(context.Background(), srv.URL+"/wiki/Raven"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := gotUA.Load(); got != "wikihop-test" {
		t.Errorf("User-Agent = %v, want wikihop-test", got)
	}
	if got := gotAuth.Load(); got != "Bearer secret" {
		t.Errorf("Authorization = %v, want Bearer secret", got)
	}
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "recovered")
	}))
	defer srv.Close()

	c := newTestClient(Options{MaxRetries: 3})
	defer c.Close()

	body, err := c.Fetch(context.Background(), srv.URL+"/wiki/Flaky")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if body != "recovered" {
		t.Errorf("body = %q", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(Options{MaxRetries: 5})
	defer c.Close()

	_, err := c.Fetch(context.Background(), srv.URL+"/wiki/Missing")
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", fe.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(Options{MaxRetries: 2})
	defer c.Close()

	if _, err := c.Fetch(context.Background(), srv.URL+"/wiki/Busy"); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestFetchBackoffHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(Options{MaxRetries: 10, Backoff: time.Hour})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.Fetch(ctx, srv.URL+"/wiki/Down"); err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("fetch took %v after context expired", elapsed)
	}
}

func TestFetchConditionalGetUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, "<title>Cached</title>")
	}))
	defer srv.Close()

	c := newTestClient(Options{Cache: cache.New(t.TempDir())})
	defer c.Close()

	first, err := c.Get(context.Background(), srv.URL+"/wiki/Cached")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first.FromCache {
		t.Error("first response should not come from cache")
	}

	second, err := c.Get(context.Background(), srv.URL+"/wiki/Cached")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if !second.FromCache {
		t.Error("second response should come from cache")
	}
	if second.Body != "<title>Cached</title>" {
		t.Errorf("cached body = %q", second.Body)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestFetchNotModifiedWithoutCacheIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := newTestClient(Options{})
	defer c.Close()

	if _, err := c.Fetch(context.Background(), srv.URL+"/wiki/X"); err == nil {
		t.Fatal("expected error for 304 without cached copy")
	}
}

func TestFetchDecodesContentEncoding(t *testing.T) {
	const page = "<title>Compressed</title>"

	compress := map[string]func(io.Writer) io.WriteCloser{
		"br":   func(w io.Writer) io.WriteCloser { return brotli.NewWriter(w) },
		"gzip": func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
	}

	for enc, newWriter := range compress {
		t.Run(enc, func(t *testing.T) {
			var buf bytes.Buffer
			zw := newWriter(&buf)
			if _, err := io.WriteString(zw, page); err != nil {
				t.Fatalf("compress: %v", err)
			}
			if err := zw.Close(); err != nil {
				t.Fatalf("close writer: %v", err)
			}

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.Header.Get("Accept-Encoding"), enc) {
					t.Errorf("Accept-Encoding %q does not offer %s", r.Header.Get("Accept-Encoding"), enc)
				}
				w.Header().Set("Content-Encoding", enc)
				_, _ = w.Write(buf.Bytes())
			}))
			defer srv.Close()

			c := newTestClient(Options{})
			defer c.Close()

			body, err := c.Fetch(context.Background(), srv.URL+"/wiki/Compressed")
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if body != page {
				t.Errorf("body = %q, want %q", body, page)
			}
		})
	}
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 1024))
	}))
	defer srv.Close()

	c := newTestClient(Options{MaxBodyBytes: 100})
	defer c.Close()

	_, err := c.Fetch(context.Background(), srv.URL+"/wiki/Huge")
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestFetchRejectsUnsupportedScheme(t *testing.T) {
	c := newTestClient(Options{})
	defer c.Close()

	for _, raw := range []string{"ftp://wiki.test/wiki/A", "gopher://wiki.test/A", "::bad"} {
		if _, err := c.Fetch(context.Background(), raw); err == nil {
			t.Errorf("Fetch(%q): expected error", raw)
		}
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"eof", io.ErrUnexpectedEOF, true},
		{"refused", errors.New("dial tcp: connection refused"), true},
		{"reset", errors.New("read: connection reset by peer"), true},
		{"500", &Error{URL: "u", Status: 500}, true},
		{"503", &Error{URL: "u", Status: 503}, true},
		{"429", &Error{URL: "u", Status: 429}, true},
		{"404", &Error{URL: "u", Status: 404}, false},
		{"wrapped transport", &Error{URL: "u", Err: errors.New("connection refused")}, true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
