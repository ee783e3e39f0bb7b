package extraction

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/riptide-project/riptide/internal/htmlmeta"
)

// HTMLMetaStrategy wraps the structured-HTML metadata fusion pipeline
// (internal/htmlmeta) as a composable extraction strategy.
type HTMLMetaStrategy struct {
	ShortCircuit bool
}

func (HTMLMetaStrategy) Name() string { return "html_metadata" }

func (s HTMLMetaStrategy) Extract(ctx context.Context, rawHTML, pageURL string) (*StrategyResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	var meta *htmlmeta.Document
	if fn, ok := htmlmeta.MatchSiteSpecific(hostOf(pageURL)); ok {
		meta = fn(doc, htmlmeta.Options{BaseURL: pageURL, EnableShortCircuit: s.ShortCircuit})
	} else {
		meta = htmlmeta.Extract(doc, htmlmeta.Options{BaseURL: pageURL, EnableShortCircuit: s.ShortCircuit})
	}

	body := htmlmeta.ExtractStructuredText(doc, pageURL)
	meta.SetReadingTimeFromBody(len(strings.Fields(body)))

	return &StrategyResult{
		Content: Content{
			Title:                meta.Title,
			Content:              body,
			Summary:              meta.Description,
			URL:                  pageURL,
			StrategyUsed:         "html_metadata",
			ExtractionConfidence: meta.Confidence,
		},
		Quality: meta.Confidence,
		Metadata: map[string]any{
			"author":           meta.Author,
			"language":         meta.Language,
			"site_type":        meta.SiteType,
			"reading_time":     meta.ReadingTimeMin,
			"keywords":         meta.Keywords,
			"canonical_url":    meta.CanonicalURL,
			"field_confidence": meta.FieldConfidence,
		},
	}, nil
}

func hostOf(rawURL string) string {
	rawURL = strings.TrimPrefix(rawURL, "https://")
	rawURL = strings.TrimPrefix(rawURL, "http://")
	if i := strings.IndexAny(rawURL, "/?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return rawURL
}
