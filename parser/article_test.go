package parser

import (
	"errors"
	"testing"

	"github.com/aluiziolira/go-scrape-articles/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractArticle(t *testing.T) {
	html := `<html><head><title>Coronavirus: the first three months</title></head>
<body><div class="c-article-teaser-text">
	  Scientists race to understand the outbreak.
</div></body></html>`

	article, err := ExtractArticle([]byte(html), config.DefaultSelectors())
	require.NoError(t, err)

	assert.Equal(t, "Coronavirus: the first three months", article.RawTitle)
	assert.Equal(t, "Coronavirus_the_first_three_months", article.Title)
	assert.Equal(t, "Scientists race to understand the outbreak.", article.Body)
}

func TestExtractArticleMissingBody(t *testing.T) {
	html := `<html><head><title>Title</title></head><body><p>No teaser here</p></body></html>`

	article, err := ExtractArticle([]byte(html), config.DefaultSelectors())
	assert.Nil(t, article)

	var extractErr *ExtractError
	require.True(t, errors.As(err, &extractErr), "expected *ExtractError, got %v", err)
	assert.Equal(t, "body", extractErr.Missing)
}

func TestExtractArticleMissingTitle(t *testing.T) {
	html := `<html><body><div class="c-article-teaser-text">Body</div></body></html>`

	_, err := ExtractArticle([]byte(html), config.DefaultSelectors())

	var extractErr *ExtractError
	require.True(t, errors.As(err, &extractErr), "expected *ExtractError, got %v", err)
	assert.Equal(t, "title", extractErr.Missing)
}

func TestExtractArticleTitleNormalizesToEmpty(t *testing.T) {
	html := `<html><head><title>?!</title></head><body><div class="c-article-teaser-text">Body</div></body></html>`

	_, err := ExtractArticle([]byte(html), config.DefaultSelectors())

	var extractErr *ExtractError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, "title", extractErr.Missing)
	assert.Equal(t, "extract", extractErr.ErrorType())
}

func TestExtractArticleCustomSelectors(t *testing.T) {
	sel := config.DefaultSelectors()
	sel.Title = "h1.headline"
	sel.Body = "section.body"

	html := `<html><head><title>Ignored</title></head><body>
<h1 class="headline">Custom Title</h1><section class="body"> Custom body </section></body></html>`

	article, err := ExtractArticle([]byte(html), sel)
	require.NoError(t, err)
	assert.Equal(t, "Custom_Title", article.Title)
	assert.Equal(t, "Custom body", article.Body)
}
