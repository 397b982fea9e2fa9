package protocol

import (
	"net/url"
	"strings"
)

// componentUnescaper undoes the QueryEscape escapes that
// encodeURIComponent leaves literal.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// ActivationURI builds the scheme://open?url=... link the desktop app
// registers with the OS. It works without a live connection; the bridge
// never reads anything back from it.
func ActivationURI(scheme string, target string) string {
	// Match encodeURIComponent: spaces become %20, not '+'
	escaped := componentUnescaper.Replace(url.QueryEscape(target))
	return scheme + "://open?url=" + escaped
}

// IsActivatable rejects browser-internal pages the desktop app cannot fetch.
func IsActivatable(target string) bool {
	t := strings.TrimSpace(target)
	if t == "" {
		return false
	}
	for _, prefix := range []string{"about:", "chrome://", "edge://", "moz-extension://", "chrome-extension://"} {
		if strings.HasPrefix(t, prefix) {
			return false
		}
	}
	return true
}
