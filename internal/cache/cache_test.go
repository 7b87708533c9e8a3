package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const ravenURL = "https://ru.wikipedia.org/wiki/%D0%92%D0%BE%D1%80%D0%BE%D0%BD"

func TestRevalidationRoundTrip(t *testing.T) {
	c := New(t.TempDir())

	first := Page{
		URL:          ravenURL,
		ETag:         `W/"rev-101"`,
		LastModified: "Fri, 14 Feb 2025 10:30:00 GMT",
		Body:         "<title>Ворон — Википедия</title>",
	}
	if err := c.Put(first); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := c.Get(ravenURL)
	if err != nil || got == nil {
		t.Fatalf("get = %v, %v; want an entry", got, err)
	}
	if got.Page != first {
		t.Errorf("page = %+v, want %+v", got.Page, first)
	}
	if got.CachedAt.IsZero() {
		t.Error("CachedAt not recorded")
	}

	// A new revision replaces body and validators, never merges them.
	second := Page{URL: ravenURL, ETag: `W/"rev-102"`, Body: "<title>Ворон</title>"}
	if err := c.Put(second); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err = c.Get(ravenURL)
	if err != nil || got == nil {
		t.Fatalf("get = %v, %v; want an entry", got, err)
	}
	if got.Page != second {
		t.Errorf("page after new revision = %+v, want %+v", got.Page, second)
	}
}

func TestURLsAreDistinctKeys(t *testing.T) {
	c := New(t.TempDir())

	urls := []string{
		"https://wiki.test/wiki/AC",
		"https://wiki.test/wiki/AC/DC",
		"https://wiki.test/wiki/ac",
		"http://wiki.test/wiki/AC",
		"https://wiki.test:8443/wiki/AC",
		"https://wiki.test/wiki/" + strings.Repeat("%D0%92", 120),
	}
	for _, u := range urls {
		if err := c.Put(Page{URL: u, Body: "body of " + u}); err != nil {
			t.Fatalf("put %s: %v", u, err)
		}
	}
	for _, u := range urls {
		entry, err := c.Get(u)
		if err != nil {
			t.Fatalf("get %s: %v", u, err)
		}
		if entry == nil || entry.Page.Body != "body of "+u {
			t.Errorf("get %s: got %+v", u, entry)
		}
	}
	if entry, _ := c.Get("https://wiki.test/wiki/Never_fetched"); entry != nil {
		t.Errorf("uncached page returned %+v", entry)
	}
}

func TestDamagedEntriesAreMisses(t *testing.T) {
	tests := []struct {
		name   string
		damage func(t *testing.T, metaPath string)
	}{
		{"garbled meta", func(t *testing.T, p string) {
			if err := os.WriteFile(p, []byte("url = [[["), 0o644); err != nil {
				t.Fatal(err)
			}
		}},
		{"missing meta", func(t *testing.T, p string) {
			if err := os.Remove(p); err != nil {
				t.Fatal(err)
			}
		}},
		{"meta of another page", func(t *testing.T, p string) {
			if err := os.WriteFile(p, []byte(`url = "https://wiki.test/wiki/Other"`+"\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(t.TempDir())
			page := Page{URL: "https://wiki.test/wiki/Desk", Body: "# Desk\n"}
			if err := c.Put(page); err != nil {
				t.Fatalf("put: %v", err)
			}
			tt.damage(t, c.filePath(page.URL)+".meta")

			entry, err := c.Get(page.URL)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if entry != nil {
				t.Errorf("damaged entry served: %+v", entry)
			}
		})
	}
}

func TestEntriesStayInsideDir(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "cache"))

	for _, u := range []string{"http://../../etc/passwd", "https://a..b:1/wiki/X", "/wiki/Relative"} {
		p := c.filePath(u)
		rel, err := filepath.Rel(c.Dir, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			t.Errorf("filePath(%q) = %q escapes %q", u, p, c.Dir)
		}
		if err := c.Put(Page{URL: u, Body: "x"}); err != nil {
			t.Errorf("put %q: %v", u, err)
		}
	}
}

func TestDefaultDirFromEnv(t *testing.T) {
	t.Setenv("WIKIHOP_CACHE_DIR", "/var/cache/wikihop-test")
	if got := DefaultDir(); got != "/var/cache/wikihop-test" {
		t.Errorf("DefaultDir() = %q, want %q", got, "/var/cache/wikihop-test")
	}
}
