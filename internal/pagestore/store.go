// Package pagestore serves a directory of wiki pages by URL path.
//
// A page at URL path /wiki/Raven is looked up as one of
//
//	root/wiki/Raven
//	root/wiki/Raven.html
//	root/wiki/Raven.md
//
// in that order. A path ending in "/" maps to index.html or index.md inside
// the directory. Dot-files are never served.
package pagestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Page holds a page's content and metadata.
type Page struct {
	Path        string // URL path the page was requested as
	Content     []byte
	Modified    time.Time
	ContentType string
}

// Store provides read access to a page directory.
type Store struct {
	root string
}

// New creates a store rooted at the given directory.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the content directory path.
func (s *Store) Root() string {
	return s.root
}

// Get retrieves the page for a URL path. Returns an error wrapping
// os.ErrNotExist if no page matches.
func (s *Store) Get(reqPath string) (*Page, error) {
	for _, candidate := range candidates(reqPath) {
		filePath, err := s.resolve(candidate)
		if err != nil {
			continue
		}
		info, err := os.Stat(filePath)
		if err != nil || info.IsDir() {
			continue
		}

		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, err
		}
		return &Page{
			Path:        reqPath,
			Content:     data,
			Modified:    info.ModTime().UTC().Truncate(time.Second),
			ContentType: contentType(filePath),
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", reqPath, os.ErrNotExist)
}

// Paths returns the URL path of every page in the store, sorted.
func (s *Store) Paths() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if p != s.root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = "/" + filepath.ToSlash(rel)
		switch ext := filepath.Ext(rel); ext {
		case ".html", ".md":
			rel = strings.TrimSuffix(rel, ext)
		}
		if base := filepath.Base(rel); base == "index" {
			rel = strings.TrimSuffix(rel, "index")
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// candidates lists the file paths tried for a URL path, in order.
func candidates(reqPath string) []string {
	if reqPath == "" || strings.HasSuffix(reqPath, "/") {
		return []string{reqPath + "index.html", reqPath + "index.md"}
	}
	return []string{reqPath, reqPath + ".html", reqPath + ".md"}
}

func contentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "text/html; charset=utf-8"
	}
}

// resolve validates and resolves a request path to an absolute filesystem path
// within the content directory. Returns os.ErrNotExist for invalid paths.
func (s *Store) resolve(reqPath string) (string, error) {
	cleaned := filepath.Clean("/" + reqPath)
	cleaned = strings.TrimLeft(cleaned, "/")
	for _, seg := range strings.Split(cleaned, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", os.ErrNotExist
		}
	}
	joined := filepath.Join(s.root, cleaned)

	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root symlinks: %w", err)
	}
	absRoot = resolved

	absPath, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", os.ErrNotExist
		}
		return "", err
	}

	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", os.ErrNotExist
	}
	return absPath, nil
}
