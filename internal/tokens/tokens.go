// Package tokens stores bearer tokens for private wikis, keyed by host.
//
// Tokens live in a TOML file (default ~/.wikihop/tokens.toml) mapping the
// host part of a page URL to a raw token. The fetch client sends the token
// of a page's host as an Authorization header.
//
// TOML format:
//
//	["wiki.internal"]
//	token = "abc123..."
//
//	["docs.example.com:8443"]
//	token = "def456..."
package tokens

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

type entry struct {
	Token string `toml:"token"`
}

// Store manages bearer tokens keyed by host. It is safe for concurrent use.
type Store struct {
	path   string
	mu     sync.RWMutex
	tokens map[string]entry
}

// DefaultPath returns the default tokens file path (~/.wikihop/tokens.toml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".wikihop", "tokens.toml")
}

// Load reads a tokens file from disk. Returns an empty store if the file
// does not exist yet. Returns an error if path is empty.
func Load(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("tokens file path is empty (could not determine home directory)")
	}
	s := &Store{path: path, tokens: make(map[string]entry)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read tokens file %q: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if _, err := toml.Decode(string(data), &s.tokens); err != nil {
		return nil, fmt.Errorf("parse tokens file %q: %w", path, err)
	}
	return s, nil
}

// Get returns the raw token for the given host, or empty string if not found.
func (s *Store) Get(host string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tokens[host]
	if !ok {
		return ""
	}
	return e.Token
}

// ForURL returns the token stored for the host of rawURL, or empty string.
func (s *Store) ForURL(rawURL string) string {
	if s == nil {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return s.Get(u.Host)
}

// Set stores a token for the given host and writes to disk.
func (s *Store) Set(host, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[host] = entry{Token: token}
	return s.save()
}

// Remove deletes the token for the given host and writes to disk.
func (s *Store) Remove(host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, host)
	return s.save()
}

// Hosts returns a sorted list of all hosts with a stored token.
func (s *Store) Hosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts := make([]string, 0, len(s.tokens))
	for h := range s.tokens {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create tokens directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open tokens file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(s.tokens); err != nil {
		_ = f.Close()
		return fmt.Errorf("write tokens file: %w", err)
	}
	return f.Close()
}
