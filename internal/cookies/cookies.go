// Package cookies reads the browser's cookie jar and active page.
//
// The bridge only ever needs cookies for a domain at send time, joined
// into a header value, plus a stream of "something changed for domain X"
// notifications for the heartbeat.
package cookies

import (
	"context"
	"net/http"
	"strings"

	"github.com/moderndownloader/bridge/internal/utils"
)

// Store returns the cookies the browser would send to domain.
type Store interface {
	Cookies(ctx context.Context, domain string) ([]*http.Cookie, error)
}

// SiteStore is implemented by stores that can list every cookie kept
// under a site, subdomain cookies included, the way the browser's cookie
// API filters by domain.
type SiteStore interface {
	SiteCookies(ctx context.Context, domain string) ([]*http.Cookie, error)
}

// ForSite returns the cookies stored for domain, its parent domains and
// its subdomains. Stores without SiteStore fall back to Cookies.
func ForSite(ctx context.Context, s Store, domain string) ([]*http.Cookie, error) {
	if ss, ok := s.(SiteStore); ok {
		return ss.SiteCookies(ctx, domain)
	}
	return s.Cookies(ctx, domain)
}

// Change reports that a cookie stored for Domain was added, updated or
// removed. Domain is as the browser stores it and may carry a leading dot.
type Change struct {
	Domain  string
	Name    string
	Removed bool
}

// Watcher streams cookie changes until ctx is done.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}

// JoinHeader renders cookies as "name=value" pairs separated by "; ",
// in the order given.
func JoinHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// DomainMatch reports whether a cookie stored for cookieDomain applies to
// requests for host (RFC 6265 domain matching, leading dot ignored).
func DomainMatch(cookieDomain, host string) bool {
	cd := utils.NormalizeDomain(cookieDomain)
	h := utils.NormalizeDomain(host)
	if cd == "" || h == "" {
		return false
	}
	if h == cd {
		return true
	}
	return strings.HasSuffix(h, "."+cd)
}

// SiteMatch reports whether a cookie stored for cookieDomain belongs to
// the site domain: it domain-matches domain, or it is kept for a
// subdomain of domain (a host-only "www.x.com" cookie for "x.com").
func SiteMatch(cookieDomain, domain string) bool {
	return DomainMatch(cookieDomain, domain) || DomainMatch(domain, cookieDomain)
}
