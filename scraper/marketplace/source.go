package marketplace

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/scraper/browser"
	"vehicle-pricer/scraper/document"
	"vehicle-pricer/services"
	"vehicle-pricer/utils"
)

// Fetcher downloads a page over plain HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*document.Page, error)
}

// Renderer loads a page in a real browser.
type Renderer interface {
	Render(ctx context.Context, req browser.RenderRequest) (string, error)
}

var errEmptyRender = eris.New("render produced no prices")

// Options tunes an adapter.
type Options struct {
	// Limit caps observations when the site sets none.
	Limit        int
	BlockRetries int
	BlockBackoff time.Duration
	ReadyTimeout time.Duration
	Settle       time.Duration
	// Sleep replaces the retry sleeper; nil means real time.
	Sleep utils.Sleeper
}

// Source is the ListingSource for one Site.
type Source struct {
	site       Site
	fetcher    Fetcher
	renderer   Renderer
	normalizer *services.Normalizer
	opts       Options
	retry      *utils.RetryConfig
	logger     *utils.Logger
}

// NewSource builds an adapter. renderer may be nil, in which case browser
// strategies degrade to their document path (or to a transport failure
// for browser-only sites).
func NewSource(site Site, fetcher Fetcher, renderer Renderer, n *services.Normalizer, opts Options, logger *utils.Logger) *Source {
	if site.Band != nil {
		n = n.WithBand(*site.Band)
	}
	return &Source{
		site:       site,
		fetcher:    fetcher,
		renderer:   renderer,
		normalizer: n,
		opts:       opts,
		logger:     logger,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.BlockRetries,
			BaseDelay:   opts.BlockBackoff,
			Logger:      logger,
			Sleep:       opts.Sleep,
			Retryable: func(err error) bool {
				return eris.Is(err, models.ErrBlocked) || eris.Is(err, errEmptyRender)
			},
		},
	}
}

func (s *Source) Name() string { return s.site.Name }

func (s *Source) limit() int {
	if s.site.Limit > 0 && (s.opts.Limit <= 0 || s.site.Limit < s.opts.Limit) {
		return s.site.Limit
	}
	return s.opts.Limit
}

// Fetch never returns an error: every failure becomes an empty result
// whose Failure says why.
func (s *Source) Fetch(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
	url := s.site.BuildURL(q)
	obs, err := s.collect(ctx, url, q)

	if len(obs) == 0 && q.Version != "" && s.site.ModelURL != nil {
		fallbackURL := s.site.ModelURL(q)
		s.logger.Info("[%s] nothing for version %q, trying model level", s.site.Name, q.Version)

		modelQuery := q
		modelQuery.Version = ""
		fbObs, fbErr := s.collect(ctx, fallbackURL, modelQuery)
		if len(fbObs) > 0 {
			obs, err, url = fbObs, nil, fallbackURL
		} else if err == nil {
			err = fbErr
		}
	}

	if err != nil && len(obs) == 0 {
		kind := models.ClassifyFailure(err)
		s.logger.Warn("[%s] %s degraded to empty (%s): %v", s.site.Name, q.Label(), kind, err)
		return models.EmptyResult(s.site.Name, url, kind), nil
	}

	s.logger.Info("[%s] %s -> %d prices", s.site.Name, url, len(obs))
	return &models.ProviderResult{
		Source:       s.site.Name,
		URL:          url,
		Observations: obs,
		FetchedAt:    time.Now(),
	}, nil
}

func (s *Source) collect(ctx context.Context, url string, q models.VehicleQuery) ([]models.PriceObservation, error) {
	f := FilterFor(q)

	switch s.site.Strategy {
	case StrategyDocument:
		return s.viaDocument(ctx, url, f)

	case StrategyDocumentFirst:
		obs, err := s.viaDocument(ctx, url, f)
		if err == nil || s.renderer == nil {
			return obs, err
		}
		if !eris.Is(err, models.ErrBlocked) && !eris.Is(err, models.ErrParse) {
			return obs, err
		}
		s.logger.Info("[%s] escalating to browser: %v", s.site.Name, err)
		return s.viaBrowser(ctx, url, f)

	case StrategyBrowserFirst:
		if s.renderer != nil {
			obs, err := s.viaBrowser(ctx, url, f)
			if len(obs) > 0 {
				return obs, nil
			}
			if ctx.Err() != nil {
				return nil, err
			}
			s.logger.Info("[%s] browser gave nothing (%v), trying plain fetch", s.site.Name, err)
		}
		return s.viaDocument(ctx, url, f)

	case StrategyBrowser:
		if s.renderer == nil {
			return nil, eris.Wrapf(models.ErrTransport, "%s needs a browser", s.site.Name)
		}
		return s.viaBrowser(ctx, url, f)
	}
	return nil, eris.Errorf("unknown strategy %d", s.site.Strategy)
}

func (s *Source) viaDocument(ctx context.Context, url string, f Filter) ([]models.PriceObservation, error) {
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return Extract(page, s.site, s.normalizer, f, s.limit())
}

func (s *Source) viaBrowser(ctx context.Context, url string, f Filter) ([]models.PriceObservation, error) {
	var obs []models.PriceObservation

	err := s.retry.Do(ctx, s.site.Name+" render", func(ctx context.Context) error {
		if s.site.WarmupURL != "" {
			if _, err := s.renderer.Render(ctx, browser.RenderRequest{URL: s.site.WarmupURL, Headers: s.site.Headers}); err != nil {
				s.logger.Debug("[%s] warm-up failed: %v", s.site.Name, err)
			}
		}

		html, err := s.renderer.Render(ctx, browser.RenderRequest{
			URL:           url,
			ReadySelector: s.site.ReadySelector,
			ReadyTimeout:  s.opts.ReadyTimeout,
			Settle:        s.opts.Settle,
			Headers:       s.site.Headers,
		})
		if err != nil {
			return err
		}

		page, err := document.Parse(url, html)
		if err != nil {
			return err
		}
		found, err := Extract(page, s.site, s.normalizer, f, s.limit())
		if err != nil {
			return err
		}
		if len(found) == 0 && s.site.RetryEmpty {
			return errEmptyRender
		}
		obs = found
		return nil
	})

	if eris.Is(err, errEmptyRender) {
		return []models.PriceObservation{}, nil
	}
	return obs, err
}
