package htmlmeta

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SiteSpecificExtractor is an optional shortcut that replaces the generic
// fusion pipeline when a URL matches a known site.
type SiteSpecificExtractor func(doc *goquery.Document, opts Options) *Document

var siteSpecificExtractors = map[string]SiteSpecificExtractor{
	"news.ycombinator.com": extractHackerNews,
	"github.com":           extractGitHub,
	"wikipedia.org":        extractWikipedia,
	"bbc.com":              extractBBC,
	"bbc.co.uk":            extractBBC,
}

// MatchSiteSpecific looks up a shortcut extractor by host suffix match.
func MatchSiteSpecific(host string) (SiteSpecificExtractor, bool) {
	host = strings.ToLower(host)
	for domain, fn := range siteSpecificExtractors {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return fn, true
		}
	}
	return nil, false
}

func extractHackerNews(doc *goquery.Document, opts Options) *Document {
	d := newDocument()
	d.f("title").setIfHigher(strings.TrimSpace(doc.Find(".titleline > a").First().Text()), sourceHeuristic)
	d.f("author").setIfHigher(strings.TrimSpace(doc.Find(".hnuser").First().Text()), sourceHeuristic)
	d.SiteType = "SocialMedia"
	finalize(d, opts)
	return d
}

func extractGitHub(doc *goquery.Document, opts Options) *Document {
	d := newDocument()
	title := strings.TrimSpace(doc.Find(`strong[itemprop="name"] a`).First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	d.f("title").setIfHigher(title, sourceHeuristic)
	d.f("description").setIfHigher(strings.TrimSpace(doc.Find(`p.f4`).First().Text()), sourceHeuristic)
	d.SiteType = "Documentation"
	finalize(d, opts)
	return d
}

func extractWikipedia(doc *goquery.Document, opts Options) *Document {
	d := newDocument()
	d.f("title").setIfHigher(strings.TrimSpace(doc.Find("#firstHeading").First().Text()), sourceHeuristic)
	d.f("description").setIfHigher(strings.TrimSpace(doc.Find("#mw-content-text p").First().Text()), sourceHeuristic)
	d.SiteType = "Documentation"
	finalize(d, opts)
	return d
}

func extractBBC(doc *goquery.Document, opts Options) *Document {
	d := newDocument()
	applyOpenGraph(d, extractOpenGraph(doc))
	applyMetaTags(d, extractMetaTags(doc))
	d.SiteType = "News"
	finalize(d, opts)
	return d
}
