package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ytget/biliurl"
	"github.com/ytget/biliurl/bilibili/api"
	"github.com/ytget/biliurl/bilibili/quality"
	"github.com/ytget/biliurl/bilibili/wbi"
	"github.com/ytget/biliurl/client"
	"github.com/ytget/biliurl/internal/config"
	"github.com/ytget/biliurl/internal/logger"
	"github.com/ytget/biliurl/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	serve       bool
	addr        string
	qn          string
	session     string
	canonical   bool
	verbose     bool
	listQN      bool
	timeout     time.Duration
	ua          string
	proxy       string
	rateLimit   string
	mixinScript string
	mixinEngine string
	apiBase     string
	envFile     string
	concurrency int
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("biliurl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.BoolVar(&o.serve, "serve", false, "Run the HTTP server instead of resolving links")
	fs.StringVar(&o.addr, "addr", "", "Listen address for -serve (default "+config.DefaultAddr+")")
	fs.StringVar(&o.qn, "qn", "", "Quality code (see -list-qn); unknown codes fall back to "+quality.Default)
	fs.StringVar(&o.session, "session", "", "SESSDATA cookie value (overrides SESSION)")
	fs.BoolVar(&o.canonical, "canonical", false, "Print the canonical link instead of the media URL")
	fs.BoolVar(&o.verbose, "v", false, "Print quality, format and size with each URL")
	fs.BoolVar(&o.listQN, "list-qn", false, "List accepted quality codes and exit")
	fs.DurationVar(&o.timeout, "http-timeout", 0, "Per-request HTTP timeout (e.g., 15s, 1m)")
	fs.StringVar(&o.ua, "ua", "", "Override User-Agent header")
	fs.StringVar(&o.proxy, "proxy", "", "Proxy URL (http/https/socks5)")
	fs.StringVar(&o.rateLimit, "rate-limit", "", "Outbound request limit (e.g., 2, 2/s, 30/m)")
	fs.StringVar(&o.mixinScript, "mixin-script", "", "JavaScript file defining mixin(orig) to replace the built-in table")
	fs.StringVar(&o.mixinEngine, "mixin-engine", "", "Script engine for -mixin-script: otto or goja")
	fs.StringVar(&o.apiBase, "api-base", "", "API origin (default "+api.DefaultBaseURL+")")
	fs.StringVar(&o.envFile, "env-file", "", "Read settings from this .env file instead of ./.env")
	fs.IntVar(&o.concurrency, "concurrency", 1, "Parallelism when several links are given")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: biliurl [flags] <link> [link...]\n       biliurl -serve [flags]\n")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if o.listQN {
		for _, qn := range quality.Accepted() {
			fmt.Fprintf(stdout, "%d\t%s\n", qn, quality.Describe(qn))
		}
		return 0
	}

	closeLog, err := setupLogging()
	if err != nil {
		fmt.Fprintf(stderr, "Error: logging: %v\n", err)
		return 2
	}
	defer func() { _ = closeLog() }()

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	resolver, err := newResolver(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if o.serve {
		return serve(ctx, resolver, cfg, stderr)
	}

	links := fs.Args()
	if len(links) == 0 {
		fs.Usage()
		return 2
	}
	return resolveAll(ctx, resolver, o, links, stdout, stderr)
}

func setupLogging() (func() error, error) {
	s, err := logger.SettingsFromEnv(nil)
	if err != nil {
		return nil, err
	}
	lg, closeFn, err := s.Build()
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(lg)
	return closeFn, nil
}

// loadConfig reads .env and the environment, then applies flags on top.
func loadConfig(o options) (*config.Config, error) {
	var files []string
	if o.envFile != "" {
		if _, err := os.Stat(o.envFile); err != nil {
			return nil, fmt.Errorf("env file: %w", err)
		}
		files = []string{o.envFile}
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}

	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.qn != "" {
		cfg.Quality = o.qn
	}
	if o.session != "" {
		cfg.Session = strings.TrimSpace(o.session)
	}
	if o.timeout > 0 {
		cfg.HTTPTimeout = o.timeout
	}
	if o.ua != "" {
		cfg.UserAgent = o.ua
	}
	if o.proxy != "" {
		cfg.Proxy = o.proxy
	}
	if o.rateLimit != "" {
		rps, err := parseRate(o.rateLimit)
		if err != nil {
			return nil, err
		}
		cfg.RateLimit = rps
	}
	if o.mixinScript != "" {
		cfg.MixinScript = o.mixinScript
	}
	if o.mixinEngine != "" {
		cfg.MixinEngine = strings.ToLower(o.mixinEngine)
	}
	if o.apiBase != "" {
		cfg.APIBase = o.apiBase
	}
	return cfg, cfg.Validate()
}

func newResolver(cfg *config.Config) (*biliurl.Resolver, error) {
	c, err := client.NewWith(client.Config{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
		ProxyURL:  cfg.Proxy,
		RateLimit: cfg.RateLimit,
	})
	if err != nil {
		return nil, err
	}
	mixer, err := wbi.LoadMixer(cfg.MixinScript, cfg.MixinEngine)
	if err != nil {
		return nil, err
	}
	return biliurl.New().
		WithClient(c).
		WithSession(cfg.Session).
		WithQuality(cfg.Quality).
		WithAPIBase(cfg.APIBase).
		WithMixer(mixer), nil
}

func serve(ctx context.Context, resolver *biliurl.Resolver, cfg *config.Config, stderr io.Writer) int {
	log := logger.WithComponent(logger.ComponentApp)
	srv, err := server.New(resolver, server.Config{
		Addr:           cfg.Addr,
		DefaultQuality: quality.Normalize(cfg.Quality),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	log.Info("starting", map[string]interface{}{
		"addr":     cfg.Addr,
		"qn":       quality.Normalize(cfg.Quality),
		"session":  cfg.HasSession(),
		"env_file": cfg.EnvFile,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "Error: shutdown: %v\n", err)
		return 1
	}
	log.Info("stopped")
	return 0
}

// resolveAll prints one line per link in input order. It returns 1 when any
// link failed.
func resolveAll(ctx context.Context, r *biliurl.Resolver, o options, links []string, stdout, stderr io.Writer) int {
	workers := o.concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(links) {
		workers = len(links)
	}

	results := make([]string, len(links))
	failures := make([]error, len(links))

	jobs := make(chan int, len(links))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx], failures[idx] = resolveOne(ctx, r, o, strings.TrimSpace(links[idx]))
			}
		}()
	}
	for i := range links {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	code := 0
	for i := range links {
		if failures[i] != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", links[i], failures[i])
			code = 1
			continue
		}
		fmt.Fprintln(stdout, results[i])
	}
	return code
}

func resolveOne(ctx context.Context, r *biliurl.Resolver, o options, link string) (string, error) {
	if o.canonical {
		return r.ResolveCanonical(ctx, link)
	}
	u, info, err := r.ResolveURL(ctx, link)
	if err != nil {
		return "", err
	}
	if !o.verbose || info == nil {
		return u, nil
	}
	label := quality.Describe(info.Quality)
	if label == "" {
		label = strconv.Itoa(info.Quality)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%d", u, label, info.Format, info.Size), nil
}

// parseRate parses strings like "2", "2/s" or "30/m" into requests per second.
func parseRate(s string) (float64, error) {
	in := s
	s = strings.ToLower(strings.TrimSpace(s))
	per := 1.0
	switch {
	case strings.HasSuffix(s, "/s"):
		s = strings.TrimSuffix(s, "/s")
	case strings.HasSuffix(s, "/m"):
		s = strings.TrimSuffix(s, "/m")
		per = 60
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid rate limit %q", in)
	}
	return v / per, nil
}
