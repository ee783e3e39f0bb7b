package htmlmeta

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractOpenGraph parses og: meta tags.
func extractOpenGraph(doc *goquery.Document) map[string]string {
	data := make(map[string]string)
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, sel *goquery.Selection) {
		property, _ := sel.Attr("property")
		content, _ := sel.Attr("content")
		if property == "" || content == "" {
			return
		}
		data[strings.TrimPrefix(property, "og:")] = content
	})
	return data
}

func applyOpenGraph(d *Document, og map[string]string) {
	d.f("title").setIfHigher(og["title"], sourceOpenGraph)
	d.f("description").setIfHigher(og["description"], sourceOpenGraph)
	d.f("author").setIfHigher(og["author"], sourceOpenGraph)
	if locale := og["locale"]; locale != "" {
		d.f("language").setIfHigher(locale, sourceOpenGraph)
	}
	if t := og["type"]; t != "" && d.SiteType == "" {
		d.SiteType = t
	}
}
