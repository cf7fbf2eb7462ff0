// Package browser owns the single long-lived Chrome session used when a
// marketplace refuses plain HTTP clients.
package browser

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// stealthScript hides the most common automation tells before any page
// script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['tr-TR', 'tr', 'en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// Options configures the Chrome process.
type Options struct {
	Headless     bool
	ChromeBin    string
	UserAgent    string
	ReadyTimeout time.Duration
	Settle       time.Duration
}

// RenderRequest describes one navigation.
type RenderRequest struct {
	URL string
	// ReadySelector is waited for up to ReadyTimeout; its absence is not an
	// error, the page is captured anyway.
	ReadySelector string
	ReadyTimeout  time.Duration
	Settle        time.Duration
	Headers       map[string]string
}

// Session is one Chrome process with one tab, started on first use and
// shared by every caller. Navigations are serialized.
type Session struct {
	opts   Options
	logger *utils.Logger

	mu          sync.Mutex
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closed      bool
}

// NewSession prepares a session; Chrome is not launched until Render.
func NewSession(opts Options, logger *utils.Logger) *Session {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Session{opts: opts, logger: logger}
}

func (s *Session) start() error {
	if s.tab != nil {
		return nil
	}
	if s.closed {
		return eris.Wrap(models.ErrTransport, "browser session closed")
	}

	chromeBin := s.opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Info("[browser] Starting Chrome (binary: %q, headless: %v)", chromeBin, s.opts.Headless)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.WindowSize(1280, 800),
		chromedp.UserAgent(s.opts.UserAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tab, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	err := chromedp.Run(tab,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		cancelTab()
		cancelAlloc()
		return eris.Wrapf(models.ErrTransport, "start chrome: %v", err)
	}

	s.tab, s.cancelTab, s.cancelAlloc = tab, cancelTab, cancelAlloc
	return nil
}

// Render navigates the shared tab to req.URL and returns the page HTML.
// The caller's context bounds the whole call.
func (s *Session) Render(ctx context.Context, req RenderRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.start(); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	// headers stick to the tab, so an empty set clears the previous site's
	h := network.Headers{}
	for k, v := range req.Headers {
		h[k] = v
	}

	if err := chromedp.Run(runCtx, network.SetExtraHTTPHeaders(h), chromedp.Navigate(req.URL)); err != nil {
		return "", eris.Wrapf(models.ErrTransport, "navigate %s: %v", req.URL, err)
	}

	if req.ReadySelector != "" {
		wait := req.ReadyTimeout
		if wait <= 0 {
			wait = s.opts.ReadyTimeout
		}
		waitCtx, cancelWait := context.WithTimeout(runCtx, wait)
		err := chromedp.Run(waitCtx, chromedp.WaitReady(req.ReadySelector, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			s.logger.Debug("[browser] %q not ready after %v on %s", req.ReadySelector, wait, req.URL)
		}
	}

	settle := req.Settle
	if settle <= 0 {
		settle = s.opts.Settle
	}
	if settle > 0 {
		if err := utils.SleepContext(runCtx, settle); err != nil {
			return "", eris.Wrapf(models.ErrTransport, "settle %s: %v", req.URL, err)
		}
	}

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrapf(models.ErrTransport, "capture %s: %v", req.URL, err)
	}
	return html, nil
}

// Close shuts Chrome down. Render fails afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.tab == nil {
		return
	}
	s.cancelTab()
	s.cancelAlloc()
	s.tab = nil
	s.logger.Info("[browser] Chrome stopped")
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
