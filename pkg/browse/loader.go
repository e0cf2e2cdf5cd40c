// Package browse loads live pages through a headless browser so the
// extraction pipeline can be exercised against real documents. It backs the
// inspect mode of the CLI.
package browse

import (
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// DefaultNavigationTimeout bounds a single page load, in milliseconds.
const DefaultNavigationTimeout = 30000.0

// PageSnapshot is the raw result of loading one page.
type PageSnapshot struct {
	URL   string
	Title string
	HTML  string
}

// Loader owns one headless browser instance and loads pages on demand.
type Loader struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	timeout float64
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Timeout bounds each navigation, in milliseconds. Zero uses the default.
	Timeout float64
}

// NewLoader installs the browser driver if needed and launches a headless
// Chromium instance. Close must be called to release it.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultNavigationTimeout
	}

	// Driver install and run are quiet so inspect output stays parseable.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	headless := true
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Loader{pw: pw, browser: browser, timeout: opts.Timeout}, nil
}

// Load navigates a fresh page to the URL and returns its settled HTML. Each
// call uses an isolated browser context so page state never leaks between
// loads.
func (l *Loader) Load(url string) (*PageSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser == nil {
		return nil, fmt.Errorf("loader is closed")
	}

	browserCtx, err := l.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	waitUntil := playwright.WaitUntilStateDomcontentloaded
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   &l.timeout,
	}); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	title, err := page.Title()
	if err != nil {
		title = ""
	}

	return &PageSnapshot{
		URL:   page.URL(),
		Title: title,
		HTML:  html,
	}, nil
}

// Close shuts the browser and the driver down.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.browser != nil {
		if err := l.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		l.browser = nil
	}
	if l.pw != nil {
		if err := l.pw.Stop(); err != nil {
			errs = append(errs, err)
		}
		l.pw = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing loader: %v", errs)
	}
	return nil
}
