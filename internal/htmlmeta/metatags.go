package htmlmeta

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractMetaTags parses standard meta tags: description, keywords, author,
// language.
func extractMetaTags(doc *goquery.Document) map[string]string {
	data := make(map[string]string)

	for _, name := range []string{"description", "keywords", "author"} {
		if content, ok := doc.Find(`meta[name="` + name + `"]`).Attr("content"); ok {
			data[name] = content
		}
	}

	if lang, ok := doc.Find("html").Attr("lang"); ok {
		data["language"] = lang
	} else if contentLang, ok := doc.Find(`meta[http-equiv="content-language"]`).Attr("content"); ok {
		data["language"] = contentLang
	}

	if canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		data["canonical"] = canonical
	}

	return data
}

func applyMetaTags(d *Document, meta map[string]string) {
	d.f("description").setIfHigher(meta["description"], sourceMeta)
	d.f("keywords").setIfHigher(meta["keywords"], sourceMeta)
	d.f("author").setIfHigher(meta["author"], sourceMeta)
	d.f("language").setIfHigher(meta["language"], sourceMeta)
	d.f("canonical").setIfHigher(meta["canonical"], sourceMeta)
}

func dedupeKeywords(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range raw {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		lower := strings.ToLower(k)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, k)
	}
	return out
}
