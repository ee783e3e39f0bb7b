package htmlmeta

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractMicrodata parses top-level itemscope/itemtype/itemprop elements
// (Schema.org via microdata).
func extractMicrodata(doc *goquery.Document) map[string]string {
	data := make(map[string]string)

	doc.Find("[itemscope]:not([itemscope] [itemscope])").Each(func(_ int, sel *goquery.Selection) {
		sel.Find("[itemprop]").Each(func(_ int, prop *goquery.Selection) {
			name, _ := prop.Attr("itemprop")
			if name == "" {
				return
			}
			var value string
			switch {
			case hasAttr(prop, "content"):
				value, _ = prop.Attr("content")
			case hasAttr(prop, "datetime"):
				value, _ = prop.Attr("datetime")
			case hasAttr(prop, "href"):
				value, _ = prop.Attr("href")
			default:
				value = strings.TrimSpace(prop.Text())
			}
			if value != "" {
				// First writer for a given itemprop wins among microdata nodes.
				if _, exists := data[name]; !exists {
					data[name] = value
				}
			}
		})
	})

	return data
}

func hasAttr(sel *goquery.Selection, attr string) bool {
	_, ok := sel.Attr(attr)
	return ok
}

func applyMicrodata(d *Document, md map[string]string) {
	d.f("title").setIfHigher(md["headline"], sourceMicrodata)
	d.f("title").setIfHigher(md["name"], sourceMicrodata)
	d.f("author").setIfHigher(md["author"], sourceMicrodata)
	d.f("description").setIfHigher(md["description"], sourceMicrodata)
	if dp := parseDate(md["datePublished"]); dp != nil && d.DatePublished == nil {
		d.DatePublished = dp
	}
}
