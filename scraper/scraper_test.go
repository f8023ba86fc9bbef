package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-articles/config"
	"github.com/aluiziolira/go-scrape-articles/models"
	"github.com/aluiziolira/go-scrape-articles/pipeline"
	"github.com/jarcoal/httpmock"
)

const testBaseURL = "http://example.test/nature/articles"

type card struct {
	category string
	href     string
}

func buildListingPage(cards ...card) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, c := range cards {
		fmt.Fprintf(&b, `<li><article class="c-card"><h3><a class="c-card__link" href="%s">x</a></h3>`, c.href)
		fmt.Fprintf(&b, `<span data-test="article.type">%s</span></article></li>`, c.category)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func buildArticlePage(title, body string) string {
	return fmt.Sprintf(`<html><head><title>%s</title></head><body><div class="c-article-teaser-text">%s</div></body></html>`, title, body)
}

func htmlResponder(body string) httpmock.Responder {
	return httpmock.NewStringResponder(http.StatusOK, body).HeaderSet(http.Header{"Content-Type": {"text/html"}})
}

func listingURL(n int) string {
	return fmt.Sprintf("%s?page=%d", testBaseURL, n)
}

func newTestScraper(t *testing.T, pages int) (*Scraper, *httpmock.MockTransport, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.BaseURL = testBaseURL
	cfg.MaxPages = pages
	cfg.OutputDir = t.TempDir()
	cfg.Parallelism = 2
	cfg.PageParallelism = 2

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	transport := httpmock.NewMockTransport()
	s.Fetcher().WithTransport(transport)
	return s, transport, cfg
}

func runScraper(t *testing.T, ctx context.Context, s *Scraper) (*models.RunResult, error) {
	t.Helper()

	p, err := s.NewPipeline(ctx)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(s.cfg.Parallelism)
	return s.Run(ctx, p)
}

func readArticle(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestScraperSavesMatchingArticles(t *testing.T) {
	s, transport, cfg := newTestScraper(t, 1)

	transport.RegisterResponder("GET", listingURL(1), htmlResponder(buildListingPage(
		card{category: "News", href: "/articles/a1"},
		card{category: "Comment", href: "/articles/c1"},
		card{category: "News", href: "http://example.test/articles/a2"},
	)))
	transport.RegisterResponder("GET", "http://example.test/articles/a1", htmlResponder(buildArticlePage("Mars: a new hope?", "  first body \n")))
	transport.RegisterResponder("GET", "http://example.test/articles/a2", htmlResponder(buildArticlePage("Deep sea", "second body")))
	transport.RegisterResponder("GET", "http://example.test/articles/c1", htmlResponder(buildArticlePage("Opinion", "comment body")))

	result, err := runScraper(t, context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	pageDir := filepath.Join(cfg.OutputDir, "Page_1")
	if got := readArticle(t, filepath.Join(pageDir, "Mars_a_new_hope.txt")); got != "first body" {
		t.Fatalf("body = %q, want %q", got, "first body")
	}
	if got := readArticle(t, filepath.Join(pageDir, "Deep_sea.txt")); got != "second body" {
		t.Fatalf("body = %q, want %q", got, "second body")
	}

	entries, err := os.ReadDir(pageDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("files = %d, want 2", len(entries))
	}

	calls := transport.GetCallCountInfo()
	if calls["GET http://example.test/articles/c1"] != 0 {
		t.Fatalf("non-matching article should not be fetched")
	}
	if result.ArticlesFound != 2 || result.ArticlesSaved != 2 {
		t.Fatalf("found=%d saved=%d, want 2/2", result.ArticlesFound, result.ArticlesSaved)
	}
	if result.PagesAttempted != 1 || result.PagesFailed != 0 {
		t.Fatalf("pages attempted=%d failed=%d, want 1/0", result.PagesAttempted, result.PagesFailed)
	}
	if result.RequestCount != 3 {
		t.Fatalf("requests = %d, want 3", result.RequestCount)
	}
}

func TestScraperSkipsFailedArticle(t *testing.T) {
	s, transport, cfg := newTestScraper(t, 1)

	transport.RegisterResponder("GET", listingURL(1), htmlResponder(buildListingPage(
		card{category: "News", href: "/articles/a1"},
		card{category: "News", href: "/articles/a2"},
		card{category: "News", href: "/articles/a3"},
	)))
	transport.RegisterResponder("GET", "http://example.test/articles/a1", htmlResponder(buildArticlePage("One", "1")))
	transport.RegisterResponder("GET", "http://example.test/articles/a2",
		httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
	transport.RegisterResponder("GET", "http://example.test/articles/a3", htmlResponder(buildArticlePage("Three", "3")))

	result, err := runScraper(t, context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	pageDir := filepath.Join(cfg.OutputDir, "Page_1")
	for _, name := range []string{"One.txt", "Three.txt"} {
		if _, err := os.Stat(filepath.Join(pageDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	if result.ArticlesSaved != 2 {
		t.Fatalf("saved = %d, want 2", result.ArticlesSaved)
	}
	if got := result.ErrorsByType["connection"]; got != 1 {
		t.Fatalf("connection errors = %d, want 1", got)
	}
	if len(result.FailedURLs) != 1 || result.FailedURLs[0] != "http://example.test/articles/a2" {
		t.Fatalf("failed urls = %v", result.FailedURLs)
	}
}

func TestScraperContinuesAfterListingFailure(t *testing.T) {
	s, transport, cfg := newTestScraper(t, 3)

	transport.RegisterResponder("GET", listingURL(1), htmlResponder(buildListingPage(card{category: "News", href: "/articles/p1"})))
	transport.RegisterResponder("GET", listingURL(2),
		httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection reset")}))
	transport.RegisterResponder("GET", listingURL(3), htmlResponder(buildListingPage(card{category: "News", href: "/articles/p3"})))
	transport.RegisterResponder("GET", "http://example.test/articles/p1", htmlResponder(buildArticlePage("Page one story", "one")))
	transport.RegisterResponder("GET", "http://example.test/articles/p3", htmlResponder(buildArticlePage("Page three story", "three")))

	result, err := runScraper(t, context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := readArticle(t, filepath.Join(cfg.OutputDir, "Page_1", "Page_one_story.txt")); got != "one" {
		t.Fatalf("page 1 body = %q", got)
	}
	if got := readArticle(t, filepath.Join(cfg.OutputDir, "Page_3", "Page_three_story.txt")); got != "three" {
		t.Fatalf("page 3 body = %q", got)
	}
	entries, err := os.ReadDir(filepath.Join(cfg.OutputDir, "Page_2"))
	if err != nil {
		t.Fatalf("page 2 directory should exist: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("page 2 should be empty, got %d files", len(entries))
	}
	if result.PagesAttempted != 3 || result.PagesFailed != 1 {
		t.Fatalf("pages attempted=%d failed=%d, want 3/1", result.PagesAttempted, result.PagesFailed)
	}
}

func TestScraperParsesNonSuccessListing(t *testing.T) {
	s, transport, cfg := newTestScraper(t, 1)

	transport.RegisterResponder("GET", listingURL(1),
		httpmock.NewStringResponder(http.StatusServiceUnavailable, buildListingPage(card{category: "News", href: "/articles/a1"})))
	transport.RegisterResponder("GET", "http://example.test/articles/a1", htmlResponder(buildArticlePage("Still here", "body")))

	result, err := runScraper(t, context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "Page_1", "Still_here.txt")); err != nil {
		t.Fatalf("expected article from non-2xx listing: %v", err)
	}
	if got := result.ErrorsByType["status"]; got != 1 {
		t.Fatalf("status errors = %d, want 1", got)
	}
}

func TestScraperHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			s, transport, _ := newTestScraper(t, 1)
			transport.RegisterResponder("GET", listingURL(1), httpmock.NewStringResponder(tt.status, ""))

			result, err := runScraper(t, context.Background(), s)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if got := result.ErrorsByType[tt.expected]; got == 0 {
				t.Fatalf("expected %q classification for status %d", tt.expected, tt.status)
			}
		})
	}
}

func TestScraperFatalWhenOutputIsFile(t *testing.T) {
	s, transport, cfg := newTestScraper(t, 2)

	blocker := filepath.Join(cfg.OutputDir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	cfg.OutputDir = blocker

	transport.RegisterResponder("GET", listingURL(1), htmlResponder(buildListingPage()))
	transport.RegisterResponder("GET", listingURL(2), htmlResponder(buildListingPage()))

	_, err := runScraper(t, context.Background(), s)
	var ioErr *pipeline.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
}

func TestScraperCancelledBeforeRun(t *testing.T) {
	s, transport, _ := newTestScraper(t, 3)
	transport.RegisterResponder("GET", listingURL(1), htmlResponder(buildListingPage()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runScraper(t, ctx, s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("requests = %d, want 0", got)
	}
	if result.PagesAttempted != 0 {
		t.Fatalf("pages attempted = %d, want 0", result.PagesAttempted)
	}
}
