// Package htmlmeta implements the structured-HTML metadata fusion pipeline
// : JSON-LD first, then OpenGraph, standard meta, microdata, and
// heuristic fallbacks, each only filling fields a higher-precedence source
// left unset.
package htmlmeta

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// source ranks precedence; a higher value wins when a field is already set.
type source int

const (
	sourceNone source = iota
	sourceHeuristic
	sourceMicrodata
	sourceMeta
	sourceOpenGraph
	sourceJSONLD
)

// field tracks a value plus the source that set it, so later passes can
// check precedence before overwriting.
type field struct {
	value string
	src   source
}

func (f *field) setIfHigher(value string, src source) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if src >= f.src {
		f.value = value
		f.src = src
	}
}

// Document is the fused metadata record produced by Extract.
type Document struct {
	Title          string
	Author         string
	DatePublished  *time.Time
	DateModified   *time.Time
	Description    string
	Keywords       []string
	Language       string
	CanonicalURL   string
	SiteType       string // JSON-LD @type (Event, Article, NewsArticle, BlogPosting), else og:type, a site-specific label, or ""
	ReadingTimeMin int

	// FieldConfidence maps field name -> confidence in [0,1], fixed by the
	// source that supplied the field (JSON-LD 1.0 down to heuristics 0.4).
	FieldConfidence map[string]float64
	Confidence      float64 // mean of FieldConfidence

	fields map[string]*field
}

func newDocument() *Document {
	return &Document{
		FieldConfidence: make(map[string]float64),
		fields:          make(map[string]*field),
	}
}

func (d *Document) f(name string) *field {
	fl, ok := d.fields[name]
	if !ok {
		fl = &field{}
		d.fields[name] = fl
	}
	return fl
}

// Options configures Extract.
type Options struct {
	BaseURL            string
	EnableShortCircuit bool // skip lower-precedence sources once JSON-LD is complete
}

// Extract runs the full fusion pipeline over an already-parsed document.
// Order of extraction and precedence are contractual:
// JSON-LD (highest) > OpenGraph > standard meta > microdata > heuristics.
func Extract(doc *goquery.Document, opts Options) *Document {
	d := newDocument()

	ld := extractJSONLD(doc)
	applyJSONLD(d, ld)

	if opts.EnableShortCircuit && jsonLDComplete(d) {
		finalize(d, opts)
		return d
	}

	applyOpenGraph(d, extractOpenGraph(doc))
	applyMetaTags(d, extractMetaTags(doc))
	applyMicrodata(d, extractMicrodata(doc))
	applyHeuristics(d, doc, opts)

	finalize(d, opts)
	return d
}

// jsonLDComplete reports whether JSON-LD alone produced a complete Event
// (name, startDate, location) or Article (headline, author, datePublished,
// description) record, which licenses skipping all later, more expensive
// sources.
func jsonLDComplete(d *Document) bool {
	hasTitle := d.f("title").value != ""
	hasAuthor := d.f("author").value != ""
	hasDate := d.DatePublished != nil
	hasDescription := d.f("description").value != ""
	hasLocation := d.f("location").value != ""

	isCompleteEvent := hasTitle && hasDate && hasLocation
	isCompleteArticle := hasTitle && hasAuthor && hasDate && hasDescription
	return isCompleteEvent || isCompleteArticle
}

// finalize copies tracked fields into the public struct, runs the
// validation pass, and computes overall confidence.
func finalize(d *Document, opts Options) {
	d.Title = d.f("title").value
	d.Author = d.f("author").value
	d.Description = d.f("description").value
	d.Language = d.f("language").value
	d.CanonicalURL = resolveURL(d.f("canonical").value, opts.BaseURL)

	if kw := d.f("keywords").value; kw != "" {
		d.Keywords = dedupeKeywords(strings.Split(kw, ","))
	}

	validate(d)
	computeConfidence(d)
}

func resolveURL(raw, base string) string {
	if raw == "" {
		return base
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.IsAbs() || base == "" {
		return raw
	}
	b, err := url.Parse(base)
	if err != nil {
		return raw
	}
	return b.ResolveReference(u).String()
}

func computeConfidence(d *Document) {
	names := []string{"title", "author", "description", "language", "canonical", "date_published"}
	var sum float64
	var n int
	for _, name := range names {
		f, ok := d.fields[name]
		if !ok || f.value == "" {
			continue
		}
		conf := sourceConfidence(f.src)
		d.FieldConfidence[name] = conf
		sum += conf
		n++
	}
	if n > 0 {
		d.Confidence = sum / float64(n)
	}
}

func sourceConfidence(s source) float64 {
	switch s {
	case sourceJSONLD:
		return 1.0
	case sourceOpenGraph:
		return 0.85
	case sourceMeta:
		return 0.7
	case sourceMicrodata:
		return 0.6
	case sourceHeuristic:
		return 0.4
	default:
		return 0
	}
}
