package htmlmeta

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// bylineSelectors and dateSelectors are CSS-fallback candidates tried in
// order when no higher-precedence source supplied the field.
var bylineSelectors = []string{
	`[rel="author"]`, `.byline`, `.author`, `[itemprop="author"]`, `.post-author`,
}

var dateSelectors = []string{
	"time[datetime]", `[itemprop="datePublished"]`, ".published", ".post-date", ".date",
}

// applyHeuristics fills title/author/date/canonical/description from
// <title>, CSS fallback selectors, the canonical link, and the provided
// page URL, only where a higher-precedence source left the field unset.
func applyHeuristics(d *Document, doc *goquery.Document, opts Options) {
	d.f("title").setIfHigher(strings.TrimSpace(doc.Find("title").First().Text()), sourceHeuristic)

	for _, sel := range bylineSelectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			d.f("author").setIfHigher(text, sourceHeuristic)
			break
		}
	}

	for _, sel := range dateSelectors {
		if d.DatePublished != nil {
			break
		}
		node := doc.Find(sel).First()
		if dt, ok := node.Attr("datetime"); ok && dt != "" {
			if t := parseDate(dt); t != nil {
				d.DatePublished = t
			}
			break
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			if t := parseDate(text); t != nil {
				d.DatePublished = t
				break
			}
		}
	}

	if d.f("canonical").value == "" && opts.BaseURL != "" {
		d.f("canonical").setIfHigher(opts.BaseURL, sourceHeuristic)
	}

	if d.f("description").value == "" {
		firstP := strings.TrimSpace(doc.Find("p").First().Text())
		if len(firstP) > 200 {
			firstP = firstP[:200]
		}
		d.f("description").setIfHigher(firstP, sourceHeuristic)
	}
}
