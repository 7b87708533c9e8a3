// Package cache provides a local file-based cache of fetched pages.
//
// Each page is stored as a body file plus a TOML metadata file holding the
// validators (ETag, Last-Modified) used to revalidate it.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Cache stores fetched pages on the local filesystem.
type Cache struct {
	Dir string
}

// Page is a fetched page together with its HTTP validators.
type Page struct {
	URL          string
	ETag         string
	LastModified string
	Body         string
}

// Entry is a cached page with metadata about when it was stored.
type Entry struct {
	Page     Page
	CachedAt time.Time
}

// meta is the TOML-serializable cache metadata.
type meta struct {
	URL          string    `toml:"url"`
	ETag         string    `toml:"etag"`
	LastModified string    `toml:"last_modified"`
	CachedAt     time.Time `toml:"cached_at"`
}

// New creates a cache rooted at the given directory.
func New(dir string) *Cache {
	return &Cache{Dir: dir}
}

// DefaultDir returns the cache directory from WIKIHOP_CACHE_DIR, falling
// back to the user cache directory.
func DefaultDir() string {
	if dir := os.Getenv("WIKIHOP_CACHE_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wikihop")
	}
	return filepath.Join(base, "wikihop")
}

// Put writes a page to the cache.
func (c *Cache) Put(p Page) error {
	filePath := c.filePath(p.URL)
	metaPath := filePath + ".meta"

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(filePath, []byte(p.Body), 0o644); err != nil {
		return err
	}

	m := meta{
		URL:          p.URL,
		ETag:         p.ETag,
		LastModified: p.LastModified,
		CachedAt:     time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return err
	}
	return os.WriteFile(metaPath, buf.Bytes(), 0o644)
}

// Get reads a cached page. Returns nil if not cached.
func (c *Cache) Get(rawURL string) (*Entry, error) {
	filePath := c.filePath(rawURL)
	metaPath := filePath + ".meta"

	body, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var m meta
	if _, err := toml.DecodeFile(metaPath, &m); err != nil {
		return nil, nil
	}
	if m.URL != rawURL {
		return nil, nil
	}

	return &Entry{
		Page: Page{
			URL:          m.URL,
			ETag:         m.ETag,
			LastModified: m.LastModified,
			Body:         string(body),
		},
		CachedAt: m.CachedAt,
	}, nil
}

// filePath returns the cache file path for a page URL. Pages are grouped by
// host; file names are hashes of the full URL, so titles containing slashes
// or long escaped names never shape the directory tree.
func (c *Cache) filePath(rawURL string) string {
	host := "_"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	safeHost := strings.ReplaceAll(host, "..", "_")
	safeHost = strings.ReplaceAll(safeHost, string(filepath.Separator), "_")
	safeHost = strings.ReplaceAll(safeHost, ":", "_")

	sum := sha256.Sum256([]byte(rawURL))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.Dir, safeHost, name[:2], name)
}
