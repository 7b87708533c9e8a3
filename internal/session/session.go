// Package session wires a configuration to the fetch client, link extractor
// and search engine shared by the wikihop commands.
package session

import (
	"context"
	"log/slog"

	"github.com/latebit/wikihop/internal/cache"
	"github.com/latebit/wikihop/internal/config"
	"github.com/latebit/wikihop/internal/fetch"
	"github.com/latebit/wikihop/internal/links"
	"github.com/latebit/wikihop/internal/search"
	"github.com/latebit/wikihop/internal/tokens"
)

// Session holds the collaborators of one process. It is safe for concurrent
// searches.
type Session struct {
	Config    *config.Config
	Client    *fetch.Client
	Extractor links.Extractor
	Logger    *slog.Logger
}

// New builds a session from cfg. A tokens file that cannot be read is
// logged and ignored.
func New(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	extractor, err := links.New(cfg.Format, links.Scope{
		Origin:     cfg.Origin,
		PathPrefix: cfg.PathPrefix,
		Exclude:    cfg.Exclude,
	})
	if err != nil {
		return nil, err
	}

	opts := fetch.Options{
		UserAgent:  cfg.UserAgent,
		Insecure:   cfg.Insecure,
		HTTP3:      cfg.HTTP3,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	}
	if !cfg.NoCache {
		dir := cfg.CacheDir
		if dir == "" {
			dir = cache.DefaultDir()
		}
		opts.Cache = cache.New(dir)
	}

	tokensPath := cfg.TokensFile
	if tokensPath == "" {
		tokensPath = tokens.DefaultPath()
	}
	if ts, err := tokens.Load(tokensPath); err != nil {
		logger.Warn("tokens unavailable", "path", tokensPath, "error", err)
	} else {
		opts.Tokens = ts
	}

	return &Session{
		Config:    cfg,
		Client:    fetch.NewClient(opts),
		Extractor: extractor,
		Logger:    logger,
	}, nil
}

// Close releases the fetch client's connections.
func (s *Session) Close() error {
	return s.Client.Close()
}

// Options returns search options derived from the configuration.
func (s *Session) Options(onRound func(search.Stats)) search.Options {
	return search.Options{
		Width:        s.Config.Width,
		FetchTimeout: s.Config.FetchTimeout.Duration,
		MaxRounds:    s.Config.MaxRounds,
		Exclude:      s.Config.Exclude,
		OnRound:      onRound,
		Logger:       s.Logger,
	}
}

// Search runs one search from source to goal.
func (s *Session) Search(ctx context.Context, source, goal string, opts search.Options) (*search.Result, error) {
	return search.Search(ctx, source, goal, search.FetcherFunc(s.fetchPage), s.Extractor, opts)
}

// fetchPage feeds the engine and records which pages came from the cache.
func (s *Session) fetchPage(ctx context.Context, pageURL string) (string, error) {
	res, err := s.Client.Get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	if res.FromCache {
		s.Logger.Debug("page served from cache", "url", pageURL)
	}
	return res.Body, nil
}

// Title fetches a page and returns its title.
func (s *Session) Title(ctx context.Context, pageURL string) (string, error) {
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return s.Extractor.Title(body), nil
}

// Links fetches a page and returns its in-scope links.
func (s *Session) Links(ctx context.Context, pageURL string) ([]string, error) {
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return s.Extractor.Links(pageURL, body), nil
}

func (s *Session) fetch(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Config.FetchTimeout.Duration)
	defer cancel()
	return s.Client.Fetch(ctx, pageURL)
}
