package htmlmeta

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ldEntry is one flattened JSON-LD node.
type ldEntry map[string]any

// extractJSONLD walks <script type="application/ld+json"> blocks, flattens
// @graph arrays, and recognizes Event/Article/NewsArticle/BlogPosting nodes
// .
func extractJSONLD(doc *goquery.Document) []ldEntry {
	var entries []ldEntry

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}

		var single map[string]any
		if err := json.Unmarshal([]byte(raw), &single); err == nil {
			entries = append(entries, flattenGraph(single)...)
			return
		}

		var arr []map[string]any
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			for _, n := range arr {
				entries = append(entries, flattenGraph(n)...)
			}
		}
	})

	return entries
}

// flattenGraph expands an @graph array into its member nodes; a node
// without @graph is returned as-is.
func flattenGraph(node map[string]any) []ldEntry {
	graph, ok := node["@graph"]
	if !ok {
		return []ldEntry{ldEntry(node)}
	}
	arr, ok := graph.([]any)
	if !ok {
		return []ldEntry{ldEntry(node)}
	}
	var out []ldEntry
	for _, g := range arr {
		if m, ok := g.(map[string]any); ok {
			out = append(out, ldEntry(m))
		}
	}
	return out
}

func ldString(e ldEntry, key string) string {
	v, ok := e[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			return name
		}
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
			if m, ok := t[0].(map[string]any); ok {
				if name, ok := m["name"].(string); ok {
					return name
				}
			}
		}
	}
	return ""
}

// ldDate parses ISO-8601 first, then falls back to a handful of common
// locale formats.
func ldDate(e ldEntry, key string) *time.Time {
	return parseDate(ldString(e, key))
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
		"January 2, 2006",
		"Jan 2, 2006",
		"02 Jan 2006",
		"01/02/2006",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return &t
		}
	}
	return nil
}

var articleLikeTypes = map[string]bool{
	"Article":     true,
	"NewsArticle": true,
	"BlogPosting": true,
}

// applyJSONLD fuses the recognized types into d. For Article-like types,
// the `name` field is only used when `headline` is absent, to avoid
// picking up an Organization/Publisher's name instead of the article's.
func applyJSONLD(d *Document, entries []ldEntry) {
	for _, e := range entries {
		typ := ldString(e, "@type")
		switch {
		case typ == "Event":
			d.f("title").setIfHigher(ldString(e, "name"), sourceJSONLD)
			d.f("location").setIfHigher(ldString(e, "location"), sourceJSONLD)
			if t := ldDate(e, "startDate"); t != nil {
				d.DatePublished = t
			}
			d.SiteType = "Event"

		case articleLikeTypes[typ]:
			headline := ldString(e, "headline")
			title := headline
			if title == "" {
				title = ldString(e, "name")
			}
			d.f("title").setIfHigher(title, sourceJSONLD)
			d.f("author").setIfHigher(ldString(e, "author"), sourceJSONLD)
			d.f("description").setIfHigher(ldString(e, "description"), sourceJSONLD)
			if t := ldDate(e, "datePublished"); t != nil {
				d.DatePublished = t
			}
			if t := ldDate(e, "dateModified"); t != nil {
				d.DateModified = t
			}
			if d.SiteType == "" {
				d.SiteType = typ
			}
		}
	}
}
