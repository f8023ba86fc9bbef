package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultAcceptLanguage biases the target towards English content.
const DefaultAcceptLanguage = "en-US,en;q=0.5"

// Selectors locates the listing cards and article fields in the target markup.
type Selectors struct {
	Card     string `yaml:"card"`
	Category string `yaml:"category"`
	Link     string `yaml:"link"`
	Title    string `yaml:"title"`
	Body     string `yaml:"body"`
}

// DefaultSelectors matches the nature.com article listing.
func DefaultSelectors() Selectors {
	return Selectors{
		Card:     "article.c-card",
		Category: `span[data-test="article.type"]`,
		Link:     "a.c-card__link",
		Title:    "title",
		Body:     "div.c-article-teaser-text",
	}
}

// Config holds scraper configuration.
type Config struct {
	BaseURL            string
	Category           string
	MaxPages           int
	OutputDir          string
	Parallelism        int
	PageParallelism    int
	QueueSize          int
	Delay              time.Duration
	RandomDelay        time.Duration
	Timeout            time.Duration
	UserAgent          string
	AcceptLanguage     string
	Verbose            bool
	RespectRobotsTxt   bool
	RestrictToBaseHost bool
	DisambiguateTitles bool
	CollisionCacheSize int
	MetricsAddr        string
	Selectors          Selectors
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://www.nature.com/nature/articles?sort=PubDate&year=2020",
		Category:           "News",
		MaxPages:           1,
		OutputDir:          ".",
		Parallelism:        4,
		PageParallelism:    2,
		QueueSize:          256,
		Delay:              0,
		RandomDelay:        0,
		Timeout:            15 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		AcceptLanguage:     DefaultAcceptLanguage,
		Verbose:            false,
		RespectRobotsTxt:   false,
		RestrictToBaseHost: false,
		DisambiguateTitles: false,
		CollisionCacheSize: 4096,
		Selectors:          DefaultSelectors(),
	}
}

// ConfigError reports an invalid configuration value. It is fatal and is
// raised before any request is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return invalid("base URL", "cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return invalid("base URL", "%v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return invalid("base URL", "scheme must be http or https")
	}
	if parsedURL.Host == "" {
		return invalid("base URL", "must include a host")
	}

	if c.MaxPages < 1 {
		return invalid("page count", "must be at least 1, got %d", c.MaxPages)
	}
	if c.Category == "" {
		return invalid("category", "cannot be empty")
	}
	if c.OutputDir == "" {
		return invalid("output dir", "cannot be empty")
	}
	if c.Parallelism <= 0 {
		return invalid("parallelism", "must be positive")
	}
	if c.PageParallelism <= 0 {
		return invalid("page parallelism", "must be positive")
	}
	if c.QueueSize <= 0 {
		return invalid("queue size", "must be positive")
	}
	if c.Delay < 0 {
		return invalid("delay", "cannot be negative")
	}
	if c.RandomDelay < 0 {
		return invalid("random delay", "cannot be negative")
	}
	if c.Timeout <= 0 {
		return invalid("timeout", "must be positive")
	}
	if c.UserAgent == "" {
		return invalid("user agent", "cannot be empty")
	}
	if c.AcceptLanguage == "" {
		return invalid("accept language", "cannot be empty")
	}
	if c.DisambiguateTitles && c.CollisionCacheSize <= 0 {
		return invalid("collision cache size", "must be positive when titles are disambiguated")
	}

	sel := c.Selectors
	for name, value := range map[string]string{
		"card selector":     sel.Card,
		"category selector": sel.Category,
		"link selector":     sel.Link,
		"title selector":    sel.Title,
		"body selector":     sel.Body,
	} {
		if strings.TrimSpace(value) == "" {
			return invalid(name, "cannot be empty")
		}
	}

	return nil
}

// Normalize trims the category once so every card label comparison is an
// exact match against the trimmed label.
func (c *Config) Normalize() {
	c.Category = strings.TrimSpace(c.Category)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
}

// Origin returns the scheme and host of the listing URL. Relative article
// links are resolved against it.
func (c *Config) Origin() (*url.URL, error) {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/"}, nil
}
