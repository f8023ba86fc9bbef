// Package parser extracts article links from listing pages and titles and
// bodies from article pages.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-articles/config"
)

// SkippedCard is a listing card that could not be read. Index is the card's
// 0-based position on the page.
type SkippedCard struct {
	Index  int
	Reason string
}

// ListingResult is the outcome of scanning one listing page.
type ListingResult struct {
	Cards   int
	Links   []string
	Skipped []SkippedCard
}

// ExtractLinks returns the absolute links of every card whose trimmed
// category label equals category, in listing order and without
// de-duplication. Malformed cards are reported in Skipped and do not fail
// the page.
func ExtractLinks(content []byte, category string, base *url.URL, sel config.Selectors) (*ListingResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	result := &ListingResult{}
	doc.Find(sel.Card).Each(func(i int, card *goquery.Selection) {
		result.Cards++

		label := card.Find(sel.Category).First()
		if label.Length() == 0 {
			result.Skipped = append(result.Skipped, SkippedCard{Index: i, Reason: "missing category label"})
			return
		}
		if strings.TrimSpace(label.Text()) != category {
			return
		}

		href, ok := card.Find(sel.Link).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			result.Skipped = append(result.Skipped, SkippedCard{Index: i, Reason: "missing link"})
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedCard{Index: i, Reason: fmt.Sprintf("invalid link %q: %v", href, err)})
			return
		}
		result.Links = append(result.Links, base.ResolveReference(ref).String())
	})

	return result, nil
}
