// Package protocol defines the frames exchanged with the desktop app and
// the codec that puts them on the wire.
//
// Every frame is one JSON object with a "type" discriminator next to the
// message fields:
//
//	{"type":"HELLO","version":"1.0"}
//	{"type":"PROGRESS","data":{"id":"a1","status":3,"progress":0.42}}
package protocol

import "github.com/moderndownloader/bridge/internal/engine/types"

// ProtocolVersion is announced in HELLO.
const ProtocolVersion = "1.0"

// MessageType is the value of a frame's "type" field.
type MessageType string

const (
	TypeHello            MessageType = "HELLO"
	TypeDownload         MessageType = "DOWNLOAD"
	TypeHeartbeatCookies MessageType = "HEARTBEAT_COOKIES"
	TypeDebug            MessageType = "DEBUG"
	TypeProgress         MessageType = "PROGRESS"
)

// Message is anything that can be framed.
type Message interface {
	MessageType() MessageType
}

// Hello announces the bridge once per connection.
type Hello struct {
	Version string `json:"version"`
}

// Download asks the desktop app to fetch URL with the browser's session.
type Download struct {
	URL              string `json:"url"`
	Cookies          string `json:"cookies"`
	UserAgent        string `json:"userAgent"`
	Referrer         string `json:"referrer"`
	IsAudioOnly      bool   `json:"isAudioOnly,omitempty"`
	PreferredQuality string `json:"preferredQuality,omitempty"`
}

// HeartbeatCookies forwards the current cookies of one supported domain.
type HeartbeatCookies struct {
	Domain  string `json:"domain"`
	Cookies string `json:"cookies"`
}

// Debug is a best-effort diagnostic echo.
type Debug struct {
	Message string `json:"message"`
}

// Progress carries the desktop app's latest view of one download.
type Progress struct {
	Data types.DownloadItem `json:"data"`
}

// Unknown is returned for frames with a type this bridge does not know.
type Unknown struct {
	Type string
}

func (Hello) MessageType() MessageType            { return TypeHello }
func (Download) MessageType() MessageType         { return TypeDownload }
func (HeartbeatCookies) MessageType() MessageType { return TypeHeartbeatCookies }
func (Debug) MessageType() MessageType            { return TypeDebug }
func (Progress) MessageType() MessageType         { return TypeProgress }
func (u Unknown) MessageType() MessageType        { return MessageType(u.Type) }

// NewDownload assembles a DOWNLOAD frame. Options can only add the audio
// and quality hints; they never replace the structural fields.
func NewDownload(url, cookies, userAgent, referrer string, opts types.IntentOptions) Download {
	return Download{
		URL:              url,
		Cookies:          cookies,
		UserAgent:        userAgent,
		Referrer:         referrer,
		IsAudioOnly:      opts.IsAudioOnly,
		PreferredQuality: opts.PreferredQuality,
	}
}
