package urlutil

import (
	"net"
	"net/url"
	"strings"
)

// IsPrivateOrLocalhost reports whether rawURL targets localhost (or a
// *.localhost name), or an IP literal in a loopback/link-local/private/
// unspecified range. Other host names, including bare single-label ones,
// are not flagged and are not resolved through DNS. It is a defense against SSRF-style crawl
// targets reaching internal infrastructure and is checked before a
// request is admitted, not during normalization (normalization must stay
// a pure string transform).
func IsPrivateOrLocalhost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := u.Hostname()
	if host == "" {
		return true
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || lower == "0.0.0.0" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return true
		}
	}
	return false
}
