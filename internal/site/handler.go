// Package site serves a page directory over HTTP as a small wiki, so that
// searches can run against a local link graph.
package site

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/latebit/wikihop/internal/pagestore"
)

// Handler serves pages from a page store.
type Handler struct {
	Store  *pagestore.Store
	Token  string // if set, requests must carry "Authorization: Bearer <Token>"
	Logger *slog.Logger
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger()
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status,
			"proto", r.Proto, "took", time.Since(start))
	}()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		rec.Header().Set("Allow", "GET, HEAD")
		h.writeError(rec, http.StatusMethodNotAllowed, "unsupported method: "+r.Method)
		return
	}

	if r.URL.Path == "/health" {
		rec.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = rec.Write([]byte("Server is healthy\n"))
		return
	}

	if h.Token != "" && !h.authorized(r) {
		rec.Header().Set("WWW-Authenticate", `Bearer realm="wikihop"`)
		h.writeError(rec, http.StatusUnauthorized, "a valid bearer token is required")
		return
	}

	page, err := h.Store.Get(r.URL.Path)
	if errors.Is(err, os.ErrNotExist) {
		h.writeError(rec, http.StatusNotFound, r.URL.Path+" not found")
		return
	}
	if err != nil {
		logger.Error("read page", "path", r.URL.Path, "error", err)
		h.writeError(rec, http.StatusInternalServerError, "internal error")
		return
	}

	body := page.Content
	if strings.HasPrefix(page.ContentType, "text/markdown") {
		body = []byte(stripFrontmatter(string(body)))
	}

	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	hdr := rec.Header()
	hdr.Set("ETag", etag)
	hdr.Set("Last-Modified", page.Modified.Format(http.TimeFormat))

	if notModified(r, etag, page.Modified) {
		rec.WriteHeader(http.StatusNotModified)
		return
	}

	hdr.Set("Content-Type", page.ContentType)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = rec.Write(body)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.Token)) == 1
}

// notModified evaluates the conditional request headers. If-None-Match wins
// over If-Modified-Since when both are present.
func notModified(r *http.Request, etag string, modified time.Time) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		for _, candidate := range strings.Split(inm, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == etag || candidate == "*" {
				return true
			}
		}
		return false
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		t, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		return !modified.After(t)
	}
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	title := http.StatusText(status)
	_, _ = w.Write([]byte("<html><head><title>" + title + "</title></head><body><h1>" +
		title + "</h1><p>" + html.EscapeString(message) + "</p></body></html>\n"))
}

// stripFrontmatter removes a leading "---" delimited metadata block from
// markdown pages.
func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---\n") {
		return content
	}
	end := strings.Index(content[4:], "\n---\n")
	if end == -1 {
		return content
	}
	return content[4+end+5:]
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
