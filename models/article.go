// Package models defines data structures for the scraper.
package models

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// PageDirPrefix names the per-page output directories (Page_1, Page_2, ...).
const PageDirPrefix = "Page_"

// ListingPage is one page of the paginated article listing.
type ListingPage struct {
	Number int
	URL    string
	Dir    string
}

// NewListingPage derives the listing URL and storage directory for page n.
func NewListingPage(baseURL, outputDir string, n int) ListingPage {
	sep := "&"
	if !strings.Contains(baseURL, "?") {
		sep = "?"
	}
	return ListingPage{
		Number: n,
		URL:    baseURL + sep + "page=" + strconv.Itoa(n),
		Dir:    filepath.Join(outputDir, PageDirPrefix+strconv.Itoa(n)),
	}
}

// ArticleRef is an article link discovered on a listing page.
type ArticleRef struct {
	URL     string
	Page    int
	PageDir string
	Index   int
}

// Article is the extracted content of one article page.
type Article struct {
	URL      string
	RawTitle string
	Title    string
	Body     string
}

// RawContent is a fetched response body. StatusCode is kept so callers can
// report non-2xx responses separately from transport failures.
type RawContent struct {
	URL        string
	StatusCode int
	Body       []byte
}

// RunResult holds the overall result of a scraping run.
type RunResult struct {
	StartTime      time.Time
	EndTime        time.Time
	PagesAttempted int
	PagesFailed    int
	ArticlesFound  int
	ArticlesSaved  int
	RequestCount   int
	ErrorCount     int
	FailedURLs     []string
	ErrorsByType   map[string]int
}
