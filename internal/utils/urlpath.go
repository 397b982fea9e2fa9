package utils

import (
	"net/url"
	"strings"
)

// HostOf returns the lower-cased hostname of rawURL, without port.
// Example: https://www.YouTube.com:443/watch?v=1 -> www.youtube.com
func HostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Hostname()), nil
}

// NormalizeDomain strips the leading dot browsers put on domain cookies
// (".youtube.com" -> "youtube.com") and lower-cases the result.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
}

// StripQuery drops everything from the first '?' on.
func StripQuery(rawURL string) string {
	if idx := strings.Index(rawURL, "?"); idx != -1 {
		return rawURL[:idx]
	}
	return rawURL
}

// ResolveReference resolves ref against base the way a browser resolves an
// anchor's href. Unparseable input is returned unchanged.
func ResolveReference(base string, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
