package preset

import (
	"net/url"
	"strings"
)

// AllowsURL reports whether rawURL falls inside this preset's remit:
// the host must match the domain allow-list, and the URL must survive the
// include/exclude patterns. Patterns are plain substrings matched against
// the full URL. When both an include and an exclude pattern match the same
// URL, exclusion wins.
func (m *Match) AllowsURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !m.allowsHost(u.Hostname()) {
		return false
	}
	for _, pat := range m.Exclude {
		if pat != "" && strings.Contains(rawURL, pat) {
			return false
		}
	}
	if len(m.Include) == 0 {
		return true
	}
	for _, pat := range m.Include {
		if pat != "" && strings.Contains(rawURL, pat) {
			return true
		}
	}
	return false
}

// allowsHost matches a host against the domain allow-list: exact match or
// a subdomain of a listed domain.
func (m *Match) allowsHost(host string) bool {
	host = strings.ToLower(host)
	for _, d := range m.Domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
