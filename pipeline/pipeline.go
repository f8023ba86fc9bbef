package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-articles/config"
	"github.com/aluiziolira/go-scrape-articles/fetcher"
	"github.com/aluiziolira/go-scrape-articles/metrics"
	"github.com/aluiziolira/go-scrape-articles/models"
	"github.com/aluiziolira/go-scrape-articles/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// Fetcher retrieves raw page content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.RawContent, error)
}

// Store persists article bodies.
type Store interface {
	EnsureDir(dir string) error
	Save(dir, title string, body []byte) error
}

// Stats is a point-in-time copy of the pipeline counters.
type Stats struct {
	Attempted    int
	Saved        int
	Skipped      map[string]int
	ErrorsByType map[string]int
	FailedURLs   []string
}

// Pipeline fetches, extracts and saves articles on a bounded pool of
// workers. Per-article fetch and extract failures are logged and skipped;
// the first store failure stops the pipeline and is returned by Close.
type Pipeline struct {
	ctx       context.Context
	fetcher   Fetcher
	store     Store
	names     *titleRegistry
	selectors config.Selectors
	metrics   *metrics.Metrics

	refCh   chan *models.ArticleRef
	workers sync.WaitGroup
	senders sync.WaitGroup

	mu        sync.Mutex // guards closed, fatal
	closed    bool
	fatal     error
	halt      chan struct{}
	drained   chan struct{}
	haltOnce  sync.Once
	closeOnce sync.Once

	counters counters
}

// NewPipeline builds a pipeline. Cancelling ctx makes workers drop queued
// articles that have not started; articles already being written finish.
func NewPipeline(ctx context.Context, f Fetcher, store Store, cfg *config.Config, m *metrics.Metrics) (*Pipeline, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var names *titleRegistry
	if cfg.DisambiguateTitles {
		registry, err := newTitleRegistry(cfg.CollisionCacheSize)
		if err != nil {
			return nil, err
		}
		names = registry
	}

	return &Pipeline{
		ctx:       ctx,
		fetcher:   f,
		store:     store,
		names:     names,
		selectors: cfg.Selectors,
		metrics:   m,
		refCh:     make(chan *models.ArticleRef, max(cfg.QueueSize, 1)),
		halt:      make(chan struct{}),
		drained:   make(chan struct{}),
		counters:  newCounters(),
	}, nil
}

// Start launches n workers. It is a no-op once the pipeline is closed.
func (p *Pipeline) Start(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for i := 0; i < max(n, 1); i++ {
		p.workers.Add(1)
		go p.work()
	}
}

// Process queues refs in order, blocking while the queue is full. After a
// fatal store error it returns that error without queueing the rest.
func (p *Pipeline) Process(refs ...*models.ArticleRef) error {
	p.mu.Lock()
	if p.fatal != nil {
		err := p.fatal
		p.mu.Unlock()
		return err
	}
	if p.closed {
		p.mu.Unlock()
		return ErrPipelineClosed
	}
	p.senders.Add(1)
	p.mu.Unlock()
	defer p.senders.Done()

	for _, ref := range refs {
		if ref == nil {
			continue
		}
		select {
		case p.refCh <- ref:
		case <-p.halt:
			return p.Err()
		}
	}
	return nil
}

// Close stops new submissions, lets workers drain the queue and returns the
// first fatal error. It is safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		p.senders.Wait()
		close(p.refCh)
		p.workers.Wait()
		close(p.drained)
	})
	<-p.drained
	return p.Err()
}

// Err returns the first fatal error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatal
}

// Stats returns a copy of the counters.
func (p *Pipeline) Stats() Stats {
	return p.counters.snapshot()
}

// StartMetricsReporting logs progress every interval until Close returns.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				st := p.Stats()
				slog.Info("pipeline progress",
					slog.Int("attempted", st.Attempted),
					slog.Int("saved", st.Saved),
					slog.Any("skipped", st.Skipped),
					slog.Int("queued", len(p.refCh)),
				)
			case <-p.drained:
				return
			}
		}
	}()
}

func (p *Pipeline) work() {
	defer p.workers.Done()

	for ref := range p.refCh {
		switch {
		case p.Err() != nil:
			p.counters.skip("aborted")
		case p.ctx.Err() != nil:
			p.counters.skip("cancelled")
		default:
			if err := p.handle(ref); err != nil {
				p.fail(err)
			}
		}
	}
}

// handle runs fetch, extract and save for one article. Only store failures
// are returned.
func (p *Pipeline) handle(ref *models.ArticleRef) error {
	logger := slog.With(
		slog.String("url", ref.URL),
		slog.Int("page", ref.Page),
		slog.Int("index", ref.Index),
	)

	p.counters.attempt()
	content, err := p.fetcher.Fetch(fetcher.WithPhase(p.ctx, fetcher.PhaseArticle), ref.URL)
	if err != nil {
		kind := fetcher.ErrorType(err)
		logger.Error("article fetch failed",
			slog.String("error_type", kind),
			slog.Any("error", err),
		)
		p.counters.failure(kind, ref.URL)
		p.counters.skip("fetch_error")
		return nil
	}

	if statusErr := fetcher.CheckStatus(content); statusErr != nil {
		kind := fetcher.ErrorType(statusErr)
		logger.Warn("article returned non-success status",
			slog.Int("status", content.StatusCode),
			slog.String("error_type", kind),
		)
		p.metrics.IncError(kind)
		p.counters.failure(kind, "")
	}

	article, err := parser.ExtractArticle(content.Body, p.selectors)
	if err != nil {
		kind := fetcher.ErrorType(err)
		logger.Error("article extraction failed",
			slog.String("error_type", kind),
			slog.Any("error", err),
		)
		p.metrics.IncError(kind)
		p.counters.failure(kind, ref.URL)
		p.counters.skip("extract_error")
		return nil
	}
	article.URL = ref.URL

	name := FitName(article.Title)
	if p.names != nil {
		name = p.names.Reserve(ref.PageDir, name)
	}

	if err := p.store.Save(ref.PageDir, name, []byte(article.Body)); err != nil {
		kind := fetcher.ErrorType(err)
		logger.Error("article save failed",
			slog.String("file", name+".txt"),
			slog.String("error_type", kind),
			slog.Any("error", err),
		)
		p.metrics.IncError(kind)
		p.counters.failure(kind, ref.URL)
		return fmt.Errorf("save article %s: %w", ref.URL, err)
	}

	p.metrics.IncSaved()
	p.counters.save()
	logger.Debug("article saved",
		slog.String("dir", ref.PageDir),
		slog.String("file", name+".txt"),
	)
	return nil
}

// fail records the first fatal error and unblocks pending Process calls.
func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	if p.fatal == nil {
		p.fatal = err
	}
	p.mu.Unlock()
	p.haltOnce.Do(func() { close(p.halt) })
}

type counters struct {
	mu sync.Mutex
	st Stats
}

func newCounters() counters {
	return counters{st: Stats{
		Skipped:      make(map[string]int),
		ErrorsByType: make(map[string]int),
	}}
}

func (c *counters) attempt() {
	c.mu.Lock()
	c.st.Attempted++
	c.mu.Unlock()
}

func (c *counters) save() {
	c.mu.Lock()
	c.st.Saved++
	c.mu.Unlock()
}

func (c *counters) skip(reason string) {
	c.mu.Lock()
	c.st.Skipped[reason]++
	c.mu.Unlock()
}

func (c *counters) failure(kind, url string) {
	c.mu.Lock()
	c.st.ErrorsByType[kind]++
	if url != "" {
		c.st.FailedURLs = append(c.st.FailedURLs, url)
	}
	c.mu.Unlock()
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Stats{
		Attempted:    c.st.Attempted,
		Saved:        c.st.Saved,
		Skipped:      make(map[string]int, len(c.st.Skipped)),
		ErrorsByType: make(map[string]int, len(c.st.ErrorsByType)),
		FailedURLs:   append([]string(nil), c.st.FailedURLs...),
	}
	for k, v := range c.st.Skipped {
		out.Skipped[k] = v
	}
	for k, v := range c.st.ErrorsByType {
		out.ErrorsByType[k] = v
	}
	return out
}
