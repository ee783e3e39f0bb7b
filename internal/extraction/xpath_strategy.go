package extraction

import (
	"context"
	"strings"

	"github.com/antchfx/htmlquery"
)

// articleBodyXPaths are all evaluated (first match of each); the longest
// trimmed text among them wins. This strategy is intentionally coarse — it exists as a cheap,
// dependency-diverse fallback in Chain/Fallback compositions, not as the
// primary extractor.
var articleBodyXPaths = []string{
	`//article`,
	`//main`,
	`//*[@id="content"]`,
	`//*[contains(@class,"article-body")]`,
	`//*[contains(@class,"post-content")]`,
	`//body`,
}

// XPathStrategy extracts title and body text via antchfx/htmlquery.
type XPathStrategy struct{}

func (XPathStrategy) Name() string { return "xpath" }

func (XPathStrategy) Extract(ctx context.Context, rawHTML, pageURL string) (*StrategyResult, error) {
	doc, err := htmlquery.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	title := ""
	if n := htmlquery.FindOne(doc, "//title"); n != nil {
		title = strings.TrimSpace(htmlquery.InnerText(n))
	}

	var body string
	for _, xp := range articleBodyXPaths {
		if n := htmlquery.FindOne(doc, xp); n != nil {
			text := strings.TrimSpace(htmlquery.InnerText(n))
			if len(text) > len(body) {
				body = text
			}
		}
	}

	confidence := 0.0
	switch {
	case len(body) > 2000:
		confidence = 0.55
	case len(body) > 500:
		confidence = 0.45
	case len(body) > 0:
		confidence = 0.3
	}

	return &StrategyResult{
		Content: Content{
			Title:                title,
			Content:              body,
			URL:                  pageURL,
			StrategyUsed:         "xpath",
			ExtractionConfidence: confidence,
		},
		Quality:  confidence,
		Metadata: map[string]any{"body_chars": len(body)},
	}, nil
}
