// Package document fetches marketplace pages over plain HTTP and parses
// them with goquery. It is the cheap first attempt before a browser.
package document

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage = "tr-TR,tr;q=0.9,en;q=0.8"

	maxBodyBytes = 8 << 20
)

// Page is a fetched and parsed document.
type Page struct {
	URL    string
	Status int
	HTML   string
	Doc    *goquery.Document
}

// Fetcher issues paced GET requests with browser-like headers.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	retry     *utils.RetryConfig
	logger    *utils.Logger
}

// Options configures a Fetcher.
type Options struct {
	Timeout   time.Duration
	Interval  time.Duration
	UserAgent string
	Attempts  int
	Backoff   time.Duration
	Client    *http.Client
}

// NewFetcher creates a Fetcher. Transport failures are retried with
// back-off; blocked responses are returned at once for the caller to
// escalate.
func NewFetcher(opts Options, logger *utils.Logger) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: ua,
		logger:    logger,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.Attempts,
			BaseDelay:   opts.Backoff,
			Logger:      logger,
			Retryable: func(err error) bool {
				return eris.Is(err, models.ErrTransport)
			},
		},
	}
}

// WithSleeper replaces the retry sleeper. Tests pass a no-op.
func (f *Fetcher) WithSleeper(s utils.Sleeper) *Fetcher {
	f.retry.Sleep = s
	return f
}

// Fetch downloads url. Errors wrap models.ErrBlocked or models.ErrTransport.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	var page *Page
	err := f.retry.Do(ctx, "GET "+url, func(ctx context.Context) error {
		p, err := f.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(models.ErrTransport, "rate wait: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "build request %s", url)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(models.ErrTransport, "%s: %v", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable:
		return nil, eris.Wrapf(models.ErrBlocked, "%s: status %d", url, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, eris.Wrapf(models.ErrTransport, "%s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(models.ErrTransport, "read %s: %v", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(models.ErrParse, "%s: %v", url, err)
	}

	f.logger.Debug("[fetch] %s -> %d (%d bytes)", url, resp.StatusCode, len(body))
	return &Page{URL: url, Status: resp.StatusCode, HTML: string(body), Doc: doc}, nil
}

// Parse wraps already rendered HTML (e.g. from a browser) as a Page.
func Parse(url, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return nil, eris.Wrapf(models.ErrParse, "%s: %v", url, err)
	}
	return &Page{URL: url, Status: http.StatusOK, HTML: html, Doc: doc}, nil
}
