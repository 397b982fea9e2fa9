package router

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moderndownloader/bridge/internal/cookies"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/protocol"
	"github.com/moderndownloader/bridge/internal/transport"
)

type fakeLink struct {
	connected bool
	failOn    protocol.MessageType
	sent      []protocol.Message
}

func (l *fakeLink) IsConnected() bool { return l.connected }

func (l *fakeLink) Send(msg protocol.Message) error {
	if !l.connected {
		return transport.ErrNotConnected
	}
	if msg.MessageType() == l.failOn {
		return errors.New("broken pipe")
	}
	l.sent = append(l.sent, msg)
	return nil
}

func (l *fakeLink) ofType(typ protocol.MessageType) []protocol.Message {
	var out []protocol.Message
	for _, m := range l.sent {
		if m.MessageType() == typ {
			out = append(out, m)
		}
	}
	return out
}

type fakeMirror struct {
	items []types.DownloadItem
}

func (m *fakeMirror) Upsert(_ context.Context, item types.DownloadItem) error {
	m.items = append(m.items, item)
	return nil
}

type brokenJar struct{}

func (brokenJar) Cookies(context.Context, string) ([]*http.Cookie, error) {
	return nil, errors.New("db locked")
}

func TestRoute_ProgressGoesToMirror(t *testing.T) {
	mir := &fakeMirror{}
	r := New(&fakeLink{connected: true}, mir, nil, "UA")

	r.Route(context.Background(), protocol.Progress{Data: types.DownloadItem{ID: "a1", Status: types.StatusDownloading}})
	r.Route(context.Background(), protocol.Unknown{Type: "FUTURE"})
	r.Route(context.Background(), protocol.Hello{Version: "2"})

	require.Len(t, mir.items, 1)
	assert.Equal(t, "a1", mir.items[0].ID)
}

func TestBuildDownloadRequest(t *testing.T) {
	jar := cookies.NewMemory()
	jar.Set(&http.Cookie{Name: "sid", Value: "abc", Domain: ".x.com", Path: "/"})
	jar.Set(&http.Cookie{Name: "lang", Value: "en", Domain: "x.com", Path: "/"})
	jar.Set(&http.Cookie{Name: "other", Value: "1", Domain: "y.com", Path: "/"})
	r := New(&fakeLink{connected: true}, &fakeMirror{}, jar, "Test/1.0")

	got := r.BuildDownloadRequest(context.Background(), types.DownloadIntent{
		MediaURL: "https://video.x.com/v/1.mp4",
		PageURL:  "https://x.com/user/status/1",
		Options:  types.IntentOptions{PreferredQuality: "720p"},
	})
	assert.Equal(t, protocol.Download{
		URL:              "https://video.x.com/v/1.mp4",
		Cookies:          "sid=abc; lang=en",
		UserAgent:        "Test/1.0",
		Referrer:         "https://x.com/user/status/1",
		PreferredQuality: "720p",
	}, got)
}

func TestBuildDownloadRequest_IntentUserAgentWins(t *testing.T) {
	r := New(&fakeLink{connected: true}, &fakeMirror{}, cookies.NewMemory(), "Default/1")
	got := r.BuildDownloadRequest(context.Background(), types.DownloadIntent{
		MediaURL:  "https://x.com/v",
		UserAgent: "Mozilla/5.0 Browser",
		Options:   types.IntentOptions{IsAudioOnly: true},
	})
	assert.Equal(t, "Mozilla/5.0 Browser", got.UserAgent)
	assert.True(t, got.IsAudioOnly)
	assert.Equal(t, "", got.Cookies)
}

func TestBuildDownloadRequest_LookupFaultDegrades(t *testing.T) {
	r := New(&fakeLink{connected: true}, &fakeMirror{}, brokenJar{}, "")
	got := r.BuildDownloadRequest(context.Background(), types.DownloadIntent{
		MediaURL: "https://x.com/v",
		PageURL:  "https://x.com/p",
	})
	assert.Equal(t, "", got.Cookies)
	assert.Equal(t, DefaultUserAgent(), got.UserAgent)
}

func TestHandleIntent_Connected(t *testing.T) {
	link := &fakeLink{connected: true}
	r := New(link, &fakeMirror{}, cookies.NewMemory(), "UA")

	err := r.HandleIntent(context.Background(), types.DownloadIntent{MediaURL: "https://x.com/v", PageURL: "https://x.com/p"})
	require.NoError(t, err)

	require.Len(t, link.ofType(protocol.TypeDownload), 1)
	debugs := link.ofType(protocol.TypeDebug)
	require.Len(t, debugs, 2)
	assert.True(t, strings.HasPrefix(debugs[0].(protocol.Debug).Message, "Download requested"))
	assert.True(t, strings.HasPrefix(debugs[1].(protocol.Debug).Message, "Download sent"))
	assert.Equal(t, protocol.TypeDebug, link.sent[0].MessageType(), "attempt echoed before the download")
}

func TestHandleIntent_DisconnectedSendsNothing(t *testing.T) {
	link := &fakeLink{connected: false}
	r := New(link, &fakeMirror{}, cookies.NewMemory(), "UA")

	err := r.HandleIntent(context.Background(), types.DownloadIntent{MediaURL: "https://x.com/v"})
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.Empty(t, link.sent)
}

func TestHandleIntent_DebugFailuresIgnored(t *testing.T) {
	link := &fakeLink{connected: true, failOn: protocol.TypeDebug}
	r := New(link, &fakeMirror{}, cookies.NewMemory(), "UA")

	require.NoError(t, r.HandleIntent(context.Background(), types.DownloadIntent{MediaURL: "https://x.com/v"}))
	assert.Len(t, link.ofType(protocol.TypeDownload), 1)
}

func TestHandleIntent_SendFailure(t *testing.T) {
	link := &fakeLink{connected: true, failOn: protocol.TypeDownload}
	r := New(link, &fakeMirror{}, cookies.NewMemory(), "UA")

	err := r.HandleIntent(context.Background(), types.DownloadIntent{MediaURL: "https://x.com/v"})
	assert.Error(t, err)
	debugs := link.ofType(protocol.TypeDebug)
	require.Len(t, debugs, 2)
	assert.Contains(t, debugs[1].(protocol.Debug).Message, "failed")
}

func TestHandleIntent_RequiresURL(t *testing.T) {
	link := &fakeLink{connected: true}
	r := New(link, &fakeMirror{}, nil, "UA")
	assert.Error(t, r.HandleIntent(context.Background(), types.DownloadIntent{}))
	assert.Empty(t, link.sent)
}

func TestDefaultUserAgent(t *testing.T) {
	ua := DefaultUserAgent()
	assert.True(t, strings.HasPrefix(ua, "Mozilla/5.0 ("), ua)
	assert.Contains(t, ua, "Firefox/"+firefoxVersion)
}

func TestIsBrowserUserAgent(t *testing.T) {
	h := http.Header{}
	h.Set("User-Agent", DefaultUserAgent())
	assert.True(t, IsBrowserUserAgent(h))

	h.Set("User-Agent", "curl/8.5.0")
	assert.False(t, IsBrowserUserAgent(h))

	assert.False(t, IsBrowserUserAgent(http.Header{}))
}
