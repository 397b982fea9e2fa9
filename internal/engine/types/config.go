package types

import "time"

// Desktop app endpoint
const (
	DefaultServerHost = "localhost"
	DefaultServerPort = 6969
)

// Bridge timing. Reconnects use a constant delay, no backoff.
const (
	ReconnectDelay    = 5 * time.Second
	CookieSendDelay   = 2 * time.Second // one-shot current-tab cookies after connect
	HeartbeatDebounce = 2 * time.Second
	BadgeRevertDelay  = 3 * time.Second

	// Writes by other processes (CLI, status screen) are picked up this often
	StoreFollowInterval = time.Second

	DialTimeout  = 10 * time.Second
	WriteTimeout = 10 * time.Second
)

// MirrorCapacity is how many recent downloads the mirror keeps.
const MirrorCapacity = 10

// Persisted store keys
const (
	KeyServerPort       = "serverPort"
	KeyAutoSendCookies  = "autoSendCookies"
	KeyPreferredBrowser = "preferredBrowser"
	KeyRecentDownloads  = "recentDownloads"
	KeyBadge            = "badge"
)

// Channel buffer sizes
const (
	EventChannelBuffer = 256
)
