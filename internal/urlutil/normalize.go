// Package urlutil implements URL normalization, deduplication, and
// filtering, building on a canonicalize/dedup pattern and extended with a
// bloom-filter fast path plus extension/regex filtering.
package urlutil

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/riptide-project/riptide/internal/config"
)

// Normalize runs a deterministic, idempotent pipeline: drop invalid UTF-8
// from the path ->
// lowercase host -> remove default ports -> strip fragment -> sort query
// params by key -> optionally strip trailing "/" -> optionally strip
// "www." prefix.
func Normalize(rawURL string, cfg config.URLUtilConfig) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if !utf8.ValidString(rawURL) {
		u.Path = strings.ToValidUTF8(u.Path, "")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if cfg.StripWWWPrefix && strings.HasPrefix(u.Host, "www.") {
		u.Host = strings.TrimPrefix(u.Host, "www.")
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := append([]string(nil), params[k]...)
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path == "" {
		u.Path = "/"
	}
	if cfg.StripTrailingSlash && u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}

	return u.String()
}

// Fingerprint is the canonicalized-URL deduplication key.
type Fingerprint string

// NewFingerprint normalizes rawURL and returns its Fingerprint.
func NewFingerprint(rawURL string, cfg config.URLUtilConfig) Fingerprint {
	return Fingerprint(Normalize(rawURL, cfg))
}
