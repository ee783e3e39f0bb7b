package spider

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/riptide-project/riptide/internal/extraction"
)

// markdownLinkPattern matches the [text](url) links the structured-text
// extractor emits; relative hrefs were already resolved against the page
// URL during extraction, so absolute http(s) targets are all that remain.
var markdownLinkPattern = regexp.MustCompile(`\]\((https?://[^)\s]+)\)`)

// extractLinks pulls the outbound link set from an extraction result,
// resolving any stragglers against baseURL and deduplicating in order.
func extractLinks(result *extraction.StrategyResult, baseURL string) []*url.URL {
	if result == nil {
		return nil
	}
	base, _ := url.Parse(baseURL)

	matches := markdownLinkPattern.FindAllStringSubmatch(result.Content.Content, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]*url.URL, 0, len(matches))
	for _, m := range matches {
		u, err := url.Parse(m[1])
		if err != nil {
			continue
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		key := u.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

func urlsToStrings(urls []*url.URL) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = u.String()
	}
	return out
}

func parseURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

func splitWords(text string) []string {
	return strings.Fields(text)
}

// countSentences is a cheap terminator count feeding the quality score; it
// does not try to be a real sentence segmenter.
func countSentences(text string) int {
	n := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			n++
		}
	}
	return n
}
