package crawl

import (
	"net/url"
	"strings"
)

// Normalize converts a raw href into an absolute URL on the crawler's
// domain. Links to other hosts, relative paths and non-HTTP schemes are
// discarded. The fragment is always removed.
func (c *Crawler) Normalize(raw string) (string, bool) {
	link := strings.TrimSpace(raw)
	if link == "" {
		return "", false
	}

	domain := strings.TrimRight(c.Domain, "/")
	base, err := url.Parse(domain)
	if err != nil || !isHTTP(base.Scheme) || base.Host == "" {
		return "", false
	}

	if strings.HasPrefix(link, "//") || (strings.Contains(link, ":") && !strings.HasPrefix(link, "/")) {
		u, err := url.Parse(link)
		if err != nil {
			return "", false
		}
		if u.Scheme != "" && !isHTTP(u.Scheme) {
			return "", false
		}
		if !sameHost(u, base) {
			return "", false
		}
		u.Fragment = ""
		link = u.RequestURI()
	}

	if !strings.HasPrefix(link, "/") {
		return "", false
	}
	if i := strings.IndexByte(link, '#'); i >= 0 {
		link = link[:i]
	}
	return domain + link, true
}

func isHTTP(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

// sameHost compares host names case-insensitively. A port equal to its
// scheme's default is treated as absent; a protocol-relative link takes the
// domain's scheme.
func sameHost(u, base *url.URL) bool {
	if u.Host == "" || !strings.EqualFold(u.Hostname(), base.Hostname()) {
		return false
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = base.Scheme
	}
	return effectivePort(scheme, u.Port()) == effectivePort(base.Scheme, base.Port())
}

func effectivePort(scheme, port string) string {
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return ""
	}
	return port
}
