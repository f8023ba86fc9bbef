package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-articles/config"
	"github.com/aluiziolira/go-scrape-articles/models"
	"github.com/aluiziolira/go-scrape-articles/scraper"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const summaryWidth = 72

type options struct {
	pages         int
	category      string
	baseURL       string
	outputDir     string
	parallel      int
	pageParallel  int
	timeoutMs     int
	delayMs       int
	randomDelayMs int
	respectRobots bool
	disambiguate  bool
	configPath    string
	metricsAddr   string
	interactive   bool
	verbose       bool
}

func main() {
	defaults := config.DefaultConfig()
	opts := &options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	registerFlags(fs, opts, defaults)
	_ = fs.Parse(os.Args[1:])

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	logger, level := newLogger(opts.verbose)
	runID := uuid.NewString()
	slog.SetDefault(logger.With(slog.String("run_id", runID)))
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := buildConfig(opts, set)
	if err == nil && opts.interactive {
		err = readInteractive(os.Stdin, os.Stdout, cfg)
	}
	if err == nil {
		cfg.Normalize()
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("category", cfg.Category),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("workers", cfg.Parallelism),
		slog.String("output_dir", cfg.OutputDir),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p, err := s.NewPipeline(ctx)
	if err != nil {
		slog.Error("creating pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, runErr := s.Run(ctx, p)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(os.Stdout, result, cfg)

	if runErr != nil {
		slog.Error("scraping failed", slog.Any("error", runErr))
		os.Exit(1)
	}
}

func registerFlags(fs *flag.FlagSet, opts *options, defaults *config.Config) {
	fs.IntVar(&opts.pages, "pages", defaults.MaxPages, "Number of listing pages to scrape")
	fs.StringVar(&opts.category, "category", defaults.Category, "Article category label to keep (exact match)")
	fs.StringVar(&opts.baseURL, "base-url", defaults.BaseURL, "Listing URL; page=<n> is appended")
	fs.StringVar(&opts.outputDir, "output-dir", defaults.OutputDir, "Directory that receives Page_<n> folders")
	fs.IntVar(&opts.parallel, "parallel", defaults.Parallelism, "Number of concurrent article workers")
	fs.IntVar(&opts.pageParallel, "page-parallel", defaults.PageParallelism, "Number of listing pages processed at once")
	fs.IntVar(&opts.timeoutMs, "timeout", int(defaults.Timeout/time.Millisecond), "Request timeout (milliseconds)")
	fs.IntVar(&opts.delayMs, "delay", 0, "Delay between requests (milliseconds)")
	fs.IntVar(&opts.randomDelayMs, "random-delay", 0, "Random jitter added to delay (milliseconds)")
	fs.BoolVar(&opts.respectRobots, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	fs.BoolVar(&opts.disambiguate, "disambiguate", defaults.DisambiguateTitles, "Suffix colliding titles with _2, _3, ... instead of overwriting")
	fs.StringVar(&opts.configPath, "config", "", "Optional YAML config file")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolVar(&opts.interactive, "interactive", false, "Read page count and category from stdin")
	fs.BoolVar(&opts.verbose, "v", false, "Enable verbose logging")
}

// buildConfig layers defaults, the config file, environment variables and
// explicitly set flags, in that order.
func buildConfig(opts *options, set map[string]bool) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if opts.configPath != "" {
		fc, err := config.LoadFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		if err := fc.Apply(cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if set["pages"] {
		cfg.MaxPages = opts.pages
	}
	if set["category"] {
		cfg.Category = opts.category
	}
	if set["base-url"] {
		cfg.BaseURL = opts.baseURL
	}
	if set["output-dir"] {
		cfg.OutputDir = opts.outputDir
	}
	if set["parallel"] {
		cfg.Parallelism = opts.parallel
	}
	if set["page-parallel"] {
		cfg.PageParallelism = opts.pageParallel
	}
	if set["timeout"] {
		cfg.Timeout = time.Duration(opts.timeoutMs) * time.Millisecond
	}
	if set["delay"] {
		cfg.Delay = time.Duration(opts.delayMs) * time.Millisecond
	}
	if set["random-delay"] {
		cfg.RandomDelay = time.Duration(opts.randomDelayMs) * time.Millisecond
	}
	if set["respect-robots"] {
		cfg.RespectRobotsTxt = opts.respectRobots
	}
	if set["disambiguate"] {
		cfg.DisambiguateTitles = opts.disambiguate
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = opts.metricsAddr
	}
	cfg.Verbose = opts.verbose
	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		return &config.ConfigError{Field: "SCRAPER_PAGES", Reason: err.Error()}
	} else if ok {
		cfg.MaxPages = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PARALLEL"); err != nil {
		return &config.ConfigError{Field: "SCRAPER_PARALLEL", Reason: err.Error()}
	} else if ok {
		cfg.Parallelism = value
	}
	if value, ok := config.EnvString("SCRAPER_CATEGORY"); ok {
		cfg.Category = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT_DIR"); ok {
		cfg.OutputDir = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}

// readInteractive reads the page count and the category, one per line.
// A page count that is not a positive integer is a ConfigError.
func readInteractive(r io.Reader, w io.Writer, cfg *config.Config) error {
	scanner := bufio.NewScanner(r)

	fmt.Fprint(w, "Number of pages: ")
	if !scanner.Scan() {
		return &config.ConfigError{Field: "page count", Reason: "no value provided"}
	}
	raw := strings.TrimSpace(scanner.Text())
	pages, err := strconv.Atoi(raw)
	if err != nil || pages < 1 {
		return &config.ConfigError{Field: "page count", Reason: fmt.Sprintf("%q must be an integer of at least 1", raw)}
	}
	cfg.MaxPages = pages

	fmt.Fprint(w, "Article category: ")
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read category: %w", err)
		}
		return &config.ConfigError{Field: "category", Reason: "no value provided"}
	}
	cfg.Category = scanner.Text()
	return nil
}

func printSummary(w io.Writer, result *models.RunResult, cfg *config.Config) {
	if result == nil {
		return
	}
	separator := strings.Repeat("-", 50)
	duration := result.EndTime.Sub(result.StartTime)

	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")
	fmt.Fprintf(w, "  Category:      %s\n", cfg.Category)
	fmt.Fprintf(w, "  Pages:         %d (%d failed)\n", result.PagesAttempted, result.PagesFailed)
	fmt.Fprintf(w, "  Articles:      %d saved / %d found\n", result.ArticlesSaved, result.ArticlesFound)
	successRate := 0.0
	if result.ArticlesFound > 0 {
		successRate = float64(result.ArticlesSaved) / float64(result.ArticlesFound) * 100
	}
	fmt.Fprintf(w, "  Success rate:  %.2f%%\n", successRate)
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if len(result.FailedURLs) > 0 {
		fmt.Fprintf(w, "  Failed URLs:   %d\n", len(result.FailedURLs))
		for _, u := range result.FailedURLs {
			fmt.Fprintf(w, "    %s\n", runewidth.Truncate(u, summaryWidth, "..."))
		}
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Output dir:    %s\n", cfg.OutputDir)
	fmt.Fprintln(w, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
