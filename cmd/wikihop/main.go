package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/latebit/wikihop/internal/config"
	"github.com/latebit/wikihop/internal/links"
	"github.com/latebit/wikihop/internal/logging"
	"github.com/latebit/wikihop/internal/progress"
	"github.com/latebit/wikihop/internal/search"
	"github.com/latebit/wikihop/internal/session"
	"github.com/latebit/wikihop/internal/tokens"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "title":
			titleMain(os.Args[2:])
			return
		case "links":
			linksMain(os.Args[2:])
			return
		case "token":
			tokenMain(os.Args[2:])
			return
		}
	}
	os.Exit(searchMain(os.Args[1:]))
}

// searchFlags are the flags shared by every command that reads a config.
type searchFlags struct {
	fs         *flag.FlagSet
	configPath *string
	source     *string
	goal       *string
	width      *int
	maxRounds  *int
	timeout    *string
	format     *string
	origin     *string
	http3      *bool
	insecure   *bool
	noCache    *bool
	cacheDir   *string
	progress   *string
	logFormat  *string
	logLevel   *string
}

func newSearchFlags(name string) *searchFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	f := &searchFlags{fs: fs}
	f.configPath = fs.String("config", os.Getenv("WIKIHOP_CONFIG"), "TOML config file (env: WIKIHOP_CONFIG)")
	f.source = fs.String("s", "", "source page URL")
	f.goal = fs.String("g", "", "goal page URL")
	f.width = fs.Int("n", config.DefaultWidth, "pages fetched concurrently per round")
	f.maxRounds = fs.Int("max-rounds", 0, "give up after this many rounds (0: no limit)")
	f.timeout = fs.String("timeout", "30s", "timeout for a single page fetch")
	f.format = fs.String("format", "html", "page format: html or markdown")
	f.origin = fs.String("origin", "", "only follow links to this scheme://host (default: origin of each page)")
	f.http3 = fs.Bool("http3", false, "fetch pages over HTTP/3")
	f.insecure = fs.Bool("insecure", false, "skip TLS certificate verification")
	f.noCache = fs.Bool("no-cache", false, "disable the page cache")
	f.cacheDir = fs.String("cache-dir", "", "cache directory (env: WIKIHOP_CACHE_DIR)")
	f.progress = fs.String("progress", progress.DefaultFile, "progress file rewritten after every round, empty to disable")
	f.logFormat = fs.String("log-format", "text", "log format: text or json")
	f.logLevel = fs.String("log-level", "info", "log level: debug, info, warn, error")
	return f
}

// load reads the config file and environment, then applies the flags that
// were set explicitly on the command line.
func (f *searchFlags) load() (*config.Config, error) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return nil, err
	}
	var flagErr error
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "s":
			cfg.Source = *f.source
		case "g":
			cfg.Goal = *f.goal
		case "n":
			cfg.Width = *f.width
		case "max-rounds":
			cfg.MaxRounds = *f.maxRounds
		case "timeout":
			if err := cfg.FetchTimeout.UnmarshalText([]byte(*f.timeout)); err != nil {
				flagErr = fmt.Errorf("invalid -timeout: %w", err)
			}
		case "format":
			cfg.Format = *f.format
		case "origin":
			cfg.Origin = *f.origin
		case "http3":
			cfg.HTTP3 = *f.http3
		case "insecure":
			cfg.Insecure = *f.insecure
		case "no-cache":
			cfg.NoCache = *f.noCache
		case "cache-dir":
			cfg.CacheDir = *f.cacheDir
		case "progress":
			cfg.ProgressFile = *f.progress
		case "log-format":
			cfg.LogFormat = *f.logFormat
		case "log-level":
			cfg.LogLevel = *f.logLevel
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}
	return cfg, cfg.Validate()
}

func searchMain(args []string) int {
	f := newSearchFlags("wikihop")
	f.fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: wikihop [flags] [SOURCE_URL [GOAL_URL]]\n")
		fmt.Fprintf(os.Stderr, "       wikihop title [flags] URL\n")
		fmt.Fprintf(os.Stderr, "       wikihop links [flags] URL\n")
		fmt.Fprintf(os.Stderr, "       wikihop token [-config FILE] <add|remove|list>\n\n")
		fmt.Fprintf(os.Stderr, "Find a shortest chain of links from SOURCE to a page titled like GOAL.\n\n")
		f.fs.PrintDefaults()
	}
	_ = f.fs.Parse(args)

	cfg, err := f.load()
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	switch f.fs.NArg() {
	case 0:
	case 1:
		cfg.Source = f.fs.Arg(0)
	case 2:
		cfg.Source, cfg.Goal = f.fs.Arg(0), f.fs.Arg(1)
	default:
		f.fs.Usage()
		return 2
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	sess, err := session.New(cfg, logger)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := progress.NewFileSink(cfg.ProgressFile, os.Stderr, logger)
	res, err := sess.Search(ctx, cfg.Source, cfg.Goal, sess.Options(sink.Report))
	return report(os.Stdout, res, err)
}

// report prints the outcome of a search and returns the process exit code.
func report(w io.Writer, res *search.Result, err error) int {
	switch {
	case err == nil:
		fmt.Fprintf(w, "Result found! %d hops, %d rounds, %d pages, %.1fs\n",
			res.Hops(), res.Stats.Rounds, res.Stats.Pages, res.Stats.Elapsed.Seconds())
		for i, u := range res.Path {
			fmt.Fprintf(w, "%3d  %s\n", i, links.Display(u))
		}
		return 0
	case errors.Is(err, search.ErrExhausted), errors.Is(err, search.ErrRoundLimit):
		fmt.Fprintf(w, "not found: %v\n", err)
		return 1
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, "interrupted")
		return 130
	default:
		fmt.Fprintf(w, "error: %v\n", err)
		return 2
	}
}

func titleMain(args []string) {
	f := newSearchFlags("title")
	f.fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: wikihop title [flags] URL\n\n")
		fmt.Fprintf(os.Stderr, "Print the title that a search would compare for URL.\n\n")
		f.fs.PrintDefaults()
	}
	sess, pageURL := inspectSession(f, args)
	defer sess.Close()

	title, err := sess.Title(context.Background(), pageURL)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	fmt.Println(title)
}

func linksMain(args []string) {
	f := newSearchFlags("links")
	f.fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: wikihop links [flags] URL\n\n")
		fmt.Fprintf(os.Stderr, "Print the in-scope links a search would follow from URL.\n\n")
		f.fs.PrintDefaults()
	}
	sess, pageURL := inspectSession(f, args)
	defer sess.Close()

	found, err := sess.Links(context.Background(), pageURL)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	for _, l := range found {
		fmt.Println(links.Display(l))
	}
	fmt.Fprintf(os.Stderr, "%d links\n", len(found))
}

func inspectSession(f *searchFlags, args []string) (*session.Session, string) {
	_ = f.fs.Parse(args)
	if f.fs.NArg() != 1 {
		f.fs.Usage()
		os.Exit(2)
	}
	cfg, err := f.load()
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	sess, err := session.New(cfg, logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr))
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	return sess, f.fs.Arg(0)
}

func tokenMain(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("WIKIHOP_CONFIG"), "TOML config file whose tokens_file is used (env: WIKIHOP_CONFIG)")
	_ = fs.Parse(args)
	args = fs.Args()

	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: wikihop token [-config FILE] <add|remove|list>\n")
		fmt.Fprintf(os.Stderr, "  add    https://host[:port] <token>  Store a token for a wiki\n")
		fmt.Fprintf(os.Stderr, "  remove https://host[:port]          Remove a stored token\n")
		fmt.Fprintf(os.Stderr, "  list                                List wikis with stored tokens\n")
		os.Exit(1)
	}

	path, err := tokensPath(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	switch args[0] {
	case "add":
		if len(args) < 3 {
			log.Fatal("usage: wikihop token add https://host[:port] <token>")
		}
		host, err := tokenHost(args[1])
		if err != nil {
			log.Fatalf("invalid URL: %v", err)
		}
		ts, err := tokens.Load(path)
		if err != nil {
			log.Fatalf("load tokens: %v", err)
		}
		if err := ts.Set(host, args[2]); err != nil {
			log.Fatalf("save token: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Token stored for %s\n", host)

	case "remove":
		if len(args) < 2 {
			log.Fatal("usage: wikihop token remove https://host[:port]")
		}
		host, err := tokenHost(args[1])
		if err != nil {
			log.Fatalf("invalid URL: %v", err)
		}
		ts, err := tokens.Load(path)
		if err != nil {
			log.Fatalf("load tokens: %v", err)
		}
		if err := ts.Remove(host); err != nil {
			log.Fatalf("remove token: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Token removed for %s\n", host)

	case "list":
		ts, err := tokens.Load(path)
		if err != nil {
			log.Fatalf("load tokens: %v", err)
		}
		hosts := ts.Hosts()
		if len(hosts) == 0 {
			fmt.Println("No stored tokens.")
			return
		}
		for _, h := range hosts {
			fmt.Println(h)
		}

	default:
		log.Fatalf("unknown token command: %s", args[0])
	}
}

// tokensPath returns the tokens file a search with the same config would
// read: tokens_file from the config file or WIKIHOP_TOKENS_FILE, else the
// default location.
func tokensPath(configPath string) (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.TokensFile != "" {
		return cfg.TokensFile, nil
	}
	return tokens.DefaultPath(), nil
}

// tokenHost returns the host key under which tokens for rawURL are stored.
func tokenHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %q (expected http or https)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}
	return u.Host, nil
}
