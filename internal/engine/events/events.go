// Package events defines the messages posted to the bridge loop. Producers
// (socket reader, dialer, timers, cookie watcher, intake server) never
// touch bridge state; they post one of these and the loop handles it.
package events

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/moderndownloader/bridge/internal/engine/types"
)

// ConnectionOpenedMsg signals that dial attempt Gen completed. The loop
// owns Conn from here on; a stale Gen means it must be closed.
type ConnectionOpenedMsg struct {
	Gen  uint64
	Conn *websocket.Conn
}

// ConnectionClosedMsg signals that connection Gen ended, cleanly or not.
type ConnectionClosedMsg struct {
	Gen uint64
	Err error
}

// DialFailedMsg signals that dial attempt Gen never opened.
type DialFailedMsg struct {
	Gen uint64
	Err error
}

// FrameReceivedMsg carries one inbound text frame from connection Gen.
type FrameReceivedMsg struct {
	Gen  uint64
	Data []byte
}

// CookieChangedMsg reports a browser cookie change for Domain.
type CookieChangedMsg struct {
	Domain  string
	Name    string
	Removed bool
}

// DownloadIntentMsg asks the bridge to send a DOWNLOAD for Intent. Reply,
// if set, receives the outcome exactly once.
type DownloadIntentMsg struct {
	ID     string
	Intent types.DownloadIntent
	Reply  chan<- error
}

// TaskMsg runs Fn on the loop. Timer callbacks and read-only queries use it.
type TaskMsg struct {
	Fn func()
}

// BadgeChangedMsg is published to status surfaces when the indicator changes.
type BadgeChangedMsg struct {
	Badge string `json:"badge"`
}

// RecentChangedMsg is published when the mirror was persisted.
type RecentChangedMsg struct {
	Items []types.DownloadItem `json:"items"`
}

// PreferenceChangedMsg is published when any other stored key changes.
type PreferenceChangedMsg struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
