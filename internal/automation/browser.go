// Package automation drives a headless page through the interactions a
// dynamic site needs before its content is extractable: stealth page
// setup, lazy-content scrolling, consent-banner dismissal, and a stable
// DOM snapshot. The headless gate path in the fetch layer runs every
// render through a RenderSession.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Selectors tried, in order, to dismiss cookie/consent overlays that
// otherwise sit on top of the content a render is after.
var consentSelectors = []string{
	`button[id*="accept"]`,
	`button[class*="accept"]`,
	`[aria-label*="accept" i]`,
	`button[id*="consent"]`,
	`#onetrust-accept-btn-handler`,
}

// RenderSession wraps one page of a leased browser for the duration of a
// single headless render.
type RenderSession struct {
	page   *rod.Page
	logger *slog.Logger
}

// NewRenderSession opens a stealth page on browser and navigates it to
// rawURL. The caller owns the returned session and must Close it.
func NewRenderSession(ctx context.Context, browser *rod.Browser, rawURL string, logger *slog.Logger) (*RenderSession, error) {
	page, err := stealth.Page(browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("open stealth page: %w", err)
	}
	if err := page.Navigate(rawURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		page.Close()
		return nil, fmt.Errorf("wait load %s: %w", rawURL, err)
	}
	return &RenderSession{page: page, logger: logger.With("component", "render_session")}, nil
}

// Close releases the underlying page.
func (s *RenderSession) Close() {
	_ = s.page.Close()
}

// DismissConsent tries the known consent selectors once each; failures
// are expected on most pages and never abort a render.
func (s *RenderSession) DismissConsent() {
	for _, sel := range consentSelectors {
		el, err := s.page.Timeout(500 * time.Millisecond).Element(sel)
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			s.logger.Debug("dismissed consent overlay", "selector", sel)
			return
		}
	}
}

// LoadLazyContent scrolls to the bottom repeatedly until the document
// height stops growing or maxScrolls is reached, so lazily-loaded content
// is present in the final snapshot. Returns the number of scrolls done.
func (s *RenderSession) LoadLazyContent(maxScrolls int, waitBetween time.Duration) (int, error) {
	lastHeight := 0
	scrolls := 0
	for scrolls < maxScrolls {
		result, err := s.page.Eval(`() => document.body.scrollHeight`)
		if err != nil {
			return scrolls, err
		}
		height := result.Value.Int()
		if height == lastHeight {
			break
		}
		lastHeight = height

		if _, err := s.page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			return scrolls, err
		}
		scrolls++
		time.Sleep(waitBetween)
	}
	return scrolls, nil
}

// WaitStable blocks until the DOM has been quiet for the given window,
// bounding the wait so a busy page cannot stall a render forever.
func (s *RenderSession) WaitStable(window time.Duration) error {
	return s.page.Timeout(10 * time.Second).WaitStable(window)
}

// HTML snapshots the current DOM.
func (s *RenderSession) HTML() (string, error) {
	return s.page.HTML()
}

// FinalURL reports the page URL after any client-side redirects.
func (s *RenderSession) FinalURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Screenshot captures a full-page screenshot, used by the CLI's debug
// path rather than the crawl pipeline.
func (s *RenderSession) Screenshot() ([]byte, error) {
	return s.page.Screenshot(true, nil)
}
