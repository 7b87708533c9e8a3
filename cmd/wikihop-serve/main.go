package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/latebit/wikihop/internal/config"
	"github.com/latebit/wikihop/internal/devtls"
	"github.com/latebit/wikihop/internal/logging"
	"github.com/latebit/wikihop/internal/pagestore"
	"github.com/latebit/wikihop/internal/ratelimit"
	"github.com/latebit/wikihop/internal/site"
	"github.com/quic-go/quic-go/http3"
)

func main() {
	root := flag.String("root", "", "page directory to serve (overrides WIKIHOP_SERVE_ROOT)")
	port := flag.Int("port", 0, "port to listen on (overrides WIKIHOP_SERVE_PORT)")
	useHTTP3 := flag.Bool("http3", false, "also serve HTTP/3 over QUIC; implies TLS (overrides WIKIHOP_SERVE_HTTP3)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate PEM file (overrides WIKIHOP_SERVE_TLS_CERT)")
	tlsKey := flag.String("tls-key", "", "path to TLS private key PEM file (overrides WIKIHOP_SERVE_TLS_KEY)")
	token := flag.String("token", os.Getenv("WIKIHOP_SERVE_TOKEN"), "require this bearer token on page requests (env: WIKIHOP_SERVE_TOKEN)")
	rateLimit := flag.Float64("rate", -1, "requests per second per client IP, 0 for no limit (overrides WIKIHOP_SERVE_RATE_LIMIT)")
	rateBurst := flag.Int("burst", 0, "rate limit burst size (overrides WIKIHOP_SERVE_RATE_BURST)")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.NewServeConfig()
	if err != nil {
		log.Printf("[WARN] config: %v", err)
	}

	// Flag overrides take precedence over env vars
	if *root != "" {
		cfg.ContentDir = *root
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *useHTTP3 {
		cfg.HTTP3 = true
	}
	if *tlsCert != "" {
		cfg.TLSCert = *tlsCert
	}
	if *tlsKey != "" {
		cfg.TLSKey = *tlsKey
	}
	if *rateLimit >= 0 {
		cfg.RateLimit = *rateLimit
	}
	if *rateBurst > 0 {
		cfg.RateBurst = *rateBurst
	}
	if cfg.ContentDir == "" {
		log.Fatal("[ERROR] content directory is required (set WIKIHOP_SERVE_ROOT or use -root flag)")
	}

	logger := logging.New(*logFormat, *logLevel, os.Stderr)

	store := pagestore.New(cfg.ContentDir)
	paths, err := store.Paths()
	if err != nil {
		log.Fatalf("[ERROR] read %s: %v", cfg.ContentDir, err)
	}
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateBurst)
	defer limiter.Stop()
	h := newHandler(store, *token, limiter, logger)
	addr := fmt.Sprintf(":%d", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)
	var shutdown []func(context.Context) error

	if !useTLS(cfg) {
		srv := newHTTPServer(addr, h, nil)
		go func() { errChan <- srv.ListenAndServe() }()
		shutdown = append(shutdown, srv.Shutdown)
		logger.Info("wikihop-serve listening", "addr", addr, "root", cfg.ContentDir, "pages", len(paths),
			"proto", "http", "rate", cfg.RateLimit)
	} else {
		tlsConfig, reloader, err := loadTLS(cfg, logger)
		if err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
		if reloader != nil {
			startCertReloader(reloader, logger)
		}

		handler := h
		if cfg.HTTP3 {
			h3 := &http3.Server{Addr: addr, Handler: h, TLSConfig: tlsConfig}
			handler = withAltSvc(h, h3.SetQUICHeaders, logger)
			go func() { errChan <- h3.ListenAndServe() }()
			shutdown = append(shutdown, func(context.Context) error { return h3.Close() })
		}

		srv := newHTTPServer(addr, handler, tlsConfig)
		go func() { errChan <- srv.ListenAndServeTLS("", "") }()
		shutdown = append(shutdown, srv.Shutdown)
		logger.Info("wikihop-serve listening", "addr", addr, "root", cfg.ContentDir, "pages", len(paths),
			"proto", "https", "http3", cfg.HTTP3)
	}

	// Wait for shutdown signal or listener error
	select {
	case <-ctx.Done():
		logger.Info("received signal, initiating graceful shutdown")
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listener error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range shutdown {
		if err := fn(shutdownCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}
	logger.Info("wikihop-serve stopped")
}

// newHandler serves the page store behind the per-IP rate limiter.
func newHandler(store *pagestore.Store, token string, limiter *ratelimit.Limiter, logger *slog.Logger) http.Handler {
	return limiter.Middleware(&site.Handler{Store: store, Token: token, Logger: logger}, logger)
}

func newHTTPServer(addr string, h http.Handler, tlsConfig *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// useTLS reports whether the server must speak TLS. HTTP/3 always does.
func useTLS(cfg *config.ServeConfig) bool {
	return cfg.HTTP3 || cfg.TLSCert != "" || cfg.TLSKey != ""
}

// withAltSvc advertises the HTTP/3 endpoint on responses served over TCP, so
// clients can upgrade.
func withAltSvc(next http.Handler, setQUICHeaders func(http.Header) error, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := setQUICHeaders(w.Header()); err != nil {
			logger.Debug("alt-svc unavailable", "error", err)
		}
		next.ServeHTTP(w, r)
	})
}

// loadTLS returns a TLS config based on the server configuration.
// If TLSCert and TLSKey are set, loads certificates from disk behind a
// reloader. If neither is set, generates a self-signed dev certificate.
// Returns an error if only one of cert/key is provided.
func loadTLS(cfg *config.ServeConfig, logger *slog.Logger) (*tls.Config, *devtls.Reloader, error) {
	haveCert := cfg.TLSCert != ""
	haveKey := cfg.TLSKey != ""

	switch {
	case haveCert && haveKey:
		logger.Info("tls: loading certificate", "cert", cfg.TLSCert)
		r, err := devtls.NewReloader(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, nil, err
		}
		return r.Config(), r, nil
	case haveCert != haveKey:
		return nil, nil, fmt.Errorf("both -tls-cert and -tls-key must be provided (got cert=%q, key=%q)", cfg.TLSCert, cfg.TLSKey)
	default:
		logger.Info("tls: using self-signed dev certificate (set WIKIHOP_SERVE_TLS_CERT and WIKIHOP_SERVE_TLS_KEY for a real one)")
		c, err := devtls.GenerateDevConfig()
		return c, nil, err
	}
}
