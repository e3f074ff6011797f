package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser owns the playwright lifecycle and one shared browsing context.
// Pages created from it inherit the context's timeouts, resource routing
// and cookies.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	NavTimeout     time.Duration
	OpTimeout      time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string

	// AllowedResourceTypes, when non-empty, aborts every request whose
	// resource type is not listed. Keeps listing crawls light: documents
	// and the scripts that render prices, nothing else.
	AllowedResourceTypes []string

	// Cookies are installed on the context before any navigation.
	Cookies []playwright.OptionalCookie
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		NavTimeout:     30 * time.Second,
		OpTimeout:      20 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9,ja;q=0.8",
		TimezoneID:     "Asia/Tokyo",
		Locale:         "en-US",
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent: &opts.UserAgent,
		Locale:    &opts.Locale,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if opts.TimezoneID != "" {
		contextOpts.TimezoneId = &opts.TimezoneID
	}
	if opts.AcceptLanguage != "" {
		contextOpts.ExtraHttpHeaders = map[string]string{
			"Accept-Language": opts.AcceptLanguage,
		}
	}

	context, err := b.NewContext(contextOpts)
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	context.SetDefaultNavigationTimeout(float64(opts.NavTimeout.Milliseconds()))
	context.SetDefaultTimeout(float64(opts.OpTimeout.Milliseconds()))

	logger := slog.Default().With("component", "browser")

	if len(opts.AllowedResourceTypes) > 0 {
		allowed := make(map[string]struct{}, len(opts.AllowedResourceTypes))
		for _, rt := range opts.AllowedResourceTypes {
			allowed[rt] = struct{}{}
		}
		err := context.Route("**/*", func(route playwright.Route) {
			if _, ok := allowed[route.Request().ResourceType()]; ok {
				route.Continue()
				return
			}
			route.Abort()
		})
		if err != nil {
			context.Close()
			b.Close()
			pw.Stop()
			return nil, fmt.Errorf("failed to install route filter: %w", err)
		}
	}

	if len(opts.Cookies) > 0 {
		if err := context.AddCookies(opts.Cookies); err != nil {
			context.Close()
			b.Close()
			pw.Stop()
			return nil, fmt.Errorf("failed to add cookies: %w", err)
		}
	}

	return &Browser{
		pw:      pw,
		browser: b,
		context: context,
		logger:  logger,
	}, nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	return page, nil
}

func (b *Browser) Context() playwright.BrowserContext {
	return b.context
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
