package urlutil

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/riptide-project/riptide/internal/config"
)

// Filter excludes URLs by extension, by regex pattern, and by scheme. It is
// built once per crawl from config and reused across FilterURLs calls.
type Filter struct {
	excludedExtensions map[string]struct{}
	excludedPatterns   []*regexp.Regexp
}

func NewFilter(cfg config.URLUtilConfig) *Filter {
	exts := make(map[string]struct{}, len(cfg.ExcludedExtensions))
	for _, e := range cfg.ExcludedExtensions {
		exts[strings.ToLower(e)] = struct{}{}
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.ExcludedPatterns))
	for _, p := range cfg.ExcludedPatterns {
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		}
	}

	return &Filter{excludedExtensions: exts, excludedPatterns: patterns}
}

// Allow reports whether rawURL should be crawled: HTTP(S) scheme only, not
// matching an excluded extension or regex pattern.
func (f *Filter) Allow(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	lowerPath := strings.ToLower(u.Path)
	for ext := range f.excludedExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return false
		}
	}

	for _, re := range f.excludedPatterns {
		if re.MatchString(rawURL) {
			return false
		}
	}

	return true
}

// FilterURLs normalizes, dedupes, and filters a batch of URLs in a single
// pass, returning the subset of urls that are new, allowed, and
// normalized. It must stay linear in len(urls) to meet the "100k URLs
// within a few seconds" requirement.
func FilterURLs(urls []string, dedup *Deduplicator, filter *Filter, cfg config.URLUtilConfig) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		if !filter.Allow(raw) {
			continue
		}
		normalized := Normalize(raw, cfg)
		fp := Fingerprint(normalized)
		if !dedup.CheckAndMark(fp) {
			continue
		}
		out = append(out, normalized)
	}
	return out
}
