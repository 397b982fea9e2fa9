package scanner

import (
	"net/url"
	"strings"

	"github.com/moderndownloader/bridge/internal/utils"
)

// VideoPatterns are substrings of permalink URLs on supported sites.
var VideoPatterns = []string{
	"/video-", "/watch?v=", "/reels/", "/reel/", "/status/",
	"/view_video.php", "/video_view", "/play/", "/v/", "/view/", "/watch/",
	"tiktok.com", "instagram.com/p/", "x.com/status",
}

// MaxAncestorDepth bounds the permalink search above a media element.
const MaxAncestorDepth = 8

// MatchesVideoPattern reports whether u looks like a media permalink.
func MatchesVideoPattern(u string) bool {
	for _, p := range VideoPatterns {
		if strings.Contains(u, p) {
			return true
		}
	}
	return false
}

// CleanPermalink drops the query string, except for the v parameter of
// /watch URLs which is the only thing identifying the video there.
func CleanPermalink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return utils.StripQuery(raw)
	}
	if strings.HasSuffix(u.Path, "/watch") {
		if v := u.Query().Get("v"); v != "" {
			u.RawQuery = url.Values{"v": {v}}.Encode()
			u.Fragment = ""
			return u.String()
		}
	}
	return utils.StripQuery(raw)
}

func isTransient(u string) bool {
	return strings.HasPrefix(u, "blob:") || strings.Contains(u, "preview")
}
