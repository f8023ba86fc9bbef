// Package fetcher issues single, non-retrying HTTP requests for listing and
// article pages.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-articles/config"
	"github.com/aluiziolira/go-scrape-articles/metrics"
	"github.com/aluiziolira/go-scrape-articles/models"
	"github.com/gocolly/colly/v2"
)

const (
	bodyKey   = "body"
	statusKey = "status"

	// PhaseListing and PhaseArticle label request metrics.
	PhaseListing = "listing"
	PhaseArticle = "article"
)

var errNoResponse = errors.New("no response received")

type phaseKey struct{}

// WithPhase tags requests issued with ctx for metrics.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

func phaseFrom(ctx context.Context) string {
	if phase, ok := ctx.Value(phaseKey{}).(string); ok && phase != "" {
		return phase
	}
	return "other"
}

// Fetcher wraps a synchronous colly collector. It is safe for concurrent use.
type Fetcher struct {
	collector      *colly.Collector
	userAgent      string
	acceptLanguage string
	metrics        *metrics.Metrics
}

// New builds a fetcher configured from cfg. m may be nil.
func New(cfg *config.Config, m *metrics.Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	options := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(cfg.UserAgent),
	}
	// An allow-list also stops colly from following redirects off the host.
	if cfg.RestrictToBaseHost {
		options = append(options, colly.AllowedDomains(parsed.Hostname()))
	}
	collector := colly.NewCollector(options...)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
	})
	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(bodyKey, r.Body)
		r.Ctx.Put(statusKey, r.StatusCode)
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			m.ObserveDuration(time.Since(start))
		}
	})

	return &Fetcher{
		collector:      collector,
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
		metrics:        m,
	}, nil
}

// WithTransport replaces the HTTP transport used by the collector.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch issues one GET request for rawURL. Transport failures return a
// *FetchError. A non-2xx response is returned as content; use CheckStatus to
// inspect it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*models.RawContent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() || target.Host == "" || (target.Scheme != "http" && target.Scheme != "https") {
		f.metrics.IncError("invalid_url")
		return nil, &FetchError{URL: rawURL, Err: ErrInvalidURL}
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	hdr := http.Header{}
	hdr.Set("User-Agent", f.userAgent)
	hdr.Set("Accept-Language", f.acceptLanguage)

	reqCtx := colly.NewContext()
	f.metrics.IncRequest(phaseFrom(ctx))
	if err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, hdr); err != nil {
		classified := classifyError(err)
		f.metrics.IncError(ErrorType(classified))
		return nil, &FetchError{URL: rawURL, Err: classified}
	}

	body, ok := reqCtx.GetAny(bodyKey).([]byte)
	if !ok {
		f.metrics.IncError("other")
		return nil, &FetchError{URL: rawURL, Err: errNoResponse}
	}
	status, _ := reqCtx.GetAny(statusKey).(int)

	return &models.RawContent{
		URL:        rawURL,
		StatusCode: status,
		Body:       body,
	}, nil
}

// CheckStatus returns a status error for non-2xx content and nil otherwise.
// It is never a *FetchError.
func CheckStatus(content *models.RawContent) error {
	if content == nil {
		return nil
	}
	code := content.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	status := ErrStatus{StatusCode: code}
	switch code {
	case http.StatusForbidden:
		return ErrForbidden{Err: status}
	case http.StatusNotFound:
		return ErrNotFound{Err: status}
	case http.StatusTooManyRequests:
		return ErrRateLimited{Err: status}
	}
	return status
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnection{Err: err}
	}
	return err
}
