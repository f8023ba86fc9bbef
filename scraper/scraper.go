package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-articles/config"
	"github.com/aluiziolira/go-scrape-articles/fetcher"
	"github.com/aluiziolira/go-scrape-articles/metrics"
	"github.com/aluiziolira/go-scrape-articles/models"
	"github.com/aluiziolira/go-scrape-articles/parser"
	"github.com/aluiziolira/go-scrape-articles/pipeline"
	"golang.org/x/sync/semaphore"
)

// Scraper walks listing pages 1..MaxPages and hands matching article links
// to the pipeline.
type Scraper struct {
	cfg     *config.Config
	fetcher *fetcher.Fetcher
	store   pipeline.Store
	origin  *url.URL
	Metrics *metrics.Metrics

	pagesAttempted int64
	pagesFailed    int64
	articlesFound  int64
	errorCount     int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
	fatal        error
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	origin, err := cfg.Origin()
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	f, err := fetcher.New(cfg, m)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	return &Scraper{
		cfg:          cfg,
		fetcher:      f,
		store:        pipeline.NewFileStore(),
		origin:       origin,
		Metrics:      m,
		errorsByType: make(map[string]int),
	}, nil
}

// Fetcher returns the fetcher shared by listing and article requests.
func (s *Scraper) Fetcher() *fetcher.Fetcher {
	return s.fetcher
}

// Store returns the article store.
func (s *Scraper) Store() pipeline.Store {
	return s.store
}

// NewPipeline builds an article pipeline sharing this scraper's fetcher,
// store and metrics.
func (s *Scraper) NewPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	return pipeline.NewPipeline(ctx, s.fetcher, s.store, s.cfg, s.Metrics)
}

// Run attempts every page, waits for the pipeline to drain and closes it.
// Per-page and per-article failures are logged and counted; only a
// filesystem failure is returned as an error. Cancelling ctx stops new
// pages from being dispatched.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	sem := semaphore.NewWeighted(int64(s.cfg.PageParallelism))
	var wg sync.WaitGroup

	for n := 1; n <= s.cfg.MaxPages; n++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			slog.Info("run cancelled, no further pages dispatched", slog.Int("next_page", n))
			break
		}
		if s.fatalErr() != nil || p.Err() != nil {
			sem.Release(1)
			break
		}

		page := models.NewListingPage(s.cfg.BaseURL, s.cfg.OutputDir, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s.scrapePage(ctx, page, p)
		}()
	}
	wg.Wait()

	closeErr := p.Close()
	result := s.result(start, p.Stats())

	if err := s.fatalErr(); err != nil {
		return result, err
	}
	if closeErr != nil {
		return result, closeErr
	}
	return result, nil
}

func (s *Scraper) scrapePage(ctx context.Context, page models.ListingPage, p *pipeline.Pipeline) {
	atomic.AddInt64(&s.pagesAttempted, 1)
	logger := slog.With(
		slog.Int("page", page.Number),
		slog.String("url", page.URL),
	)

	if err := s.store.EnsureDir(page.Dir); err != nil {
		logger.Error("create page directory failed",
			slog.String("dir", page.Dir),
			slog.String("error_type", fetcher.ErrorType(err)),
			slog.Any("error", err),
		)
		s.Metrics.IncError(fetcher.ErrorType(err))
		s.recordError(err, "")
		s.setFatal(err)
		s.failPage()
		return
	}

	content, err := s.fetcher.Fetch(fetcher.WithPhase(ctx, fetcher.PhaseListing), page.URL)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			logger.Info("listing skipped, run cancelled")
			return
		}
		logger.Error("listing fetch failed",
			slog.String("error_type", fetcher.ErrorType(err)),
			slog.Any("error", err),
		)
		s.recordError(err, page.URL)
		s.failPage()
		return
	}

	if statusErr := fetcher.CheckStatus(content); statusErr != nil {
		logger.Warn("listing returned non-success status",
			slog.Int("status", content.StatusCode),
			slog.String("error_type", fetcher.ErrorType(statusErr)),
		)
		s.Metrics.IncError(fetcher.ErrorType(statusErr))
		s.recordError(statusErr, "")
	}

	listing, err := parser.ExtractLinks(content.Body, s.cfg.Category, s.origin, s.cfg.Selectors)
	if err != nil {
		logger.Error("listing parse failed", slog.Any("error", err))
		s.Metrics.IncError("other")
		s.recordError(err, page.URL)
		s.failPage()
		return
	}

	for _, skipped := range listing.Skipped {
		logger.Warn("listing card skipped",
			slog.Int("card", skipped.Index),
			slog.String("reason", skipped.Reason),
		)
	}
	s.Metrics.AddSkippedCards(len(listing.Skipped))
	s.Metrics.AddFound(len(listing.Links))
	atomic.AddInt64(&s.articlesFound, int64(len(listing.Links)))

	logger.Info("listing scanned",
		slog.String("category", s.cfg.Category),
		slog.Int("cards", listing.Cards),
		slog.Int("matched", len(listing.Links)),
		slog.Int("skipped", len(listing.Skipped)),
	)

	refs := make([]*models.ArticleRef, 0, len(listing.Links))
	for i, link := range listing.Links {
		refs = append(refs, &models.ArticleRef{
			URL:     link,
			Page:    page.Number,
			PageDir: page.Dir,
			Index:   i,
		})
	}
	if err := p.Process(refs...); err != nil {
		logger.Error("dispatch articles failed", slog.Any("error", err))
		s.Metrics.IncPage("failed")
		return
	}
	s.Metrics.IncPage("ok")
}

func (s *Scraper) failPage() {
	atomic.AddInt64(&s.pagesFailed, 1)
	s.Metrics.IncPage("failed")
}

func (s *Scraper) recordError(err error, failedURL string) {
	atomic.AddInt64(&s.errorCount, 1)
	kind := fetcher.ErrorType(err)

	s.mu.Lock()
	s.errorsByType[kind]++
	if failedURL != "" {
		s.failedURLs = append(s.failedURLs, failedURL)
	}
	s.mu.Unlock()
}

func (s *Scraper) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

func (s *Scraper) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *Scraper) result(start time.Time, st pipeline.Stats) *models.RunResult {
	s.mu.Lock()
	failed := append([]string(nil), s.failedURLs...)
	byType := make(map[string]int, len(s.errorsByType)+len(st.ErrorsByType))
	for kind, count := range s.errorsByType {
		byType[kind] = count
	}
	s.mu.Unlock()

	pages := int(atomic.LoadInt64(&s.pagesAttempted))
	result := &models.RunResult{
		StartTime:      start,
		EndTime:        time.Now(),
		PagesAttempted: pages,
		PagesFailed:    int(atomic.LoadInt64(&s.pagesFailed)),
		ArticlesFound:  int(atomic.LoadInt64(&s.articlesFound)),
		ArticlesSaved:  st.Saved,
		RequestCount:   pages + st.Attempted,
		ErrorCount:     int(atomic.LoadInt64(&s.errorCount)),
		FailedURLs:     append(failed, st.FailedURLs...),
		ErrorsByType:   byType,
	}
	for kind, count := range st.ErrorsByType {
		result.ErrorsByType[kind] += count
		result.ErrorCount += count
	}
	return result
}
