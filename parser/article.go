package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-articles/config"
	"github.com/aluiziolira/go-scrape-articles/models"
)

// ExtractError reports an article page whose structure does not match the
// configured selectors. Missing is "title" or "body". Retrying will not help.
type ExtractError struct {
	Missing string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract article: missing %s", e.Missing)
}

// ErrorType labels extraction failures in logs and metrics.
func (e *ExtractError) ErrorType() string {
	return "extract"
}

// ExtractArticle reads the document title and the teaser body from an
// article page. The returned Title is already normalized.
func ExtractArticle(content []byte, sel config.Selectors) (*models.Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse article: %w", err)
	}

	titleNode := doc.Find(sel.Title).First()
	if titleNode.Length() == 0 {
		return nil, &ExtractError{Missing: "title"}
	}
	bodyNode := doc.Find(sel.Body).First()
	if bodyNode.Length() == 0 {
		return nil, &ExtractError{Missing: "body"}
	}

	raw := titleNode.Text()
	title := NormalizeTitle(raw)
	if title == "" {
		return nil, &ExtractError{Missing: "title"}
	}

	return &models.Article{
		RawTitle: raw,
		Title:    title,
		Body:     strings.TrimSpace(bodyNode.Text()),
	}, nil
}
