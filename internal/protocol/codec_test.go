package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moderndownloader/bridge/internal/engine/types"
)

func TestEncode_Hello(t *testing.T) {
	b, err := Encode(Hello{Version: ProtocolVersion})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"HELLO","version":"1.0"}`, string(b))
}

func TestEncode_DownloadOmitsEmptyOptions(t *testing.T) {
	msg := NewDownload("https://x.com/v/1", "a=1; b=2", "UA/1", "https://x.com/page", types.IntentOptions{})
	b, err := Encode(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "DOWNLOAD", raw["type"])
	assert.Equal(t, "https://x.com/v/1", raw["url"])
	assert.Equal(t, "a=1; b=2", raw["cookies"])
	assert.Equal(t, "UA/1", raw["userAgent"])
	assert.Equal(t, "https://x.com/page", raw["referrer"])
	assert.NotContains(t, raw, "isAudioOnly")
	assert.NotContains(t, raw, "preferredQuality")
}

func TestEncode_DownloadWithOptions(t *testing.T) {
	msg := NewDownload("https://x.com/v/1", "", "UA", "", types.IntentOptions{IsAudioOnly: true, PreferredQuality: "720p"})
	b, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"DOWNLOAD","url":"https://x.com/v/1","cookies":"","userAgent":"UA","referrer":"","isAudioOnly":true,"preferredQuality":"720p"}`, string(b))
}

func TestEncode_HeartbeatCookies(t *testing.T) {
	b, err := Encode(HeartbeatCookies{Domain: "x.com", Cookies: "sid=1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"HEARTBEAT_COOKIES","domain":"x.com","cookies":"sid=1"}`, string(b))
}

func TestEncode_RejectsUnknown(t *testing.T) {
	_, err := Encode(Unknown{Type: "WHATEVER"})
	assert.Error(t, err)
	_, err = Encode(nil)
	assert.Error(t, err)
}

func TestDecode_Progress(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"PROGRESS","data":{"id":"a1","status":3,"progress":0.42,"title":"clip","request":{"url":"https://x.com/v"}}}`))
	require.NoError(t, err)

	p, ok := msg.(Progress)
	require.True(t, ok)
	assert.Equal(t, "a1", p.Data.ID)
	assert.Equal(t, types.StatusDownloading, p.Data.Status)
	assert.InDelta(t, 0.42, p.Data.Progress, 1e-9)
	assert.Equal(t, "https://x.com/v", p.Data.Request.URL)
}

func TestDecode_RoundTrip(t *testing.T) {
	in := []Message{
		Hello{Version: "1.0"},
		Debug{Message: "hi"},
		HeartbeatCookies{Domain: "x.com", Cookies: "a=b"},
		NewDownload("u", "c", "ua", "r", types.IntentOptions{PreferredQuality: "best"}),
	}
	for _, m := range in {
		b, err := Encode(m)
		require.NoError(t, err)
		out, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, m, out)
	}
}

func TestDecode_UnknownTypeIsNotAnError(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"PING","x":1}`))
	require.NoError(t, err)
	assert.Equal(t, Unknown{Type: "PING"}, msg)
	assert.Equal(t, MessageType("PING"), msg.MessageType())
}

func TestDecode_Faults(t *testing.T) {
	cases := map[string]string{
		"not json":        `not json`,
		"array":           `[1,2]`,
		"missing type":    `{"data":{}}`,
		"progress no id":  `{"type":"PROGRESS","data":{"status":1}}`,
		"bad status":      `{"type":"PROGRESS","data":{"id":"a","status":true}}`,
		"truncated frame": `{"type":"PROGRESS","data":{"id":"a"`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			msg, err := Decode([]byte(frame))
			assert.Nil(t, msg)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "want *DecodeError, got %v", err)
			assert.NotEmpty(t, de.Error())
		})
	}
}

func TestDecodeError_TruncatesFrame(t *testing.T) {
	big := make([]byte, 1000)
	for i := range big {
		big[i] = 'x'
	}
	_, err := Decode(big)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.LessOrEqual(t, len(de.Frame), maxFrameEcho+3)
}

func TestActivationURI(t *testing.T) {
	got := ActivationURI("moderndownloader", "https://x.com/watch?v=1&t=2 s")
	assert.Equal(t, "moderndownloader://open?url=https%3A%2F%2Fx.com%2Fwatch%3Fv%3D1%26t%3D2%20s", got)
}

func TestActivationURI_KeepsComponentSafeMarks(t *testing.T) {
	got := ActivationURI("moderndownloader", "https://x.com/a_(1)!*'~.-")
	assert.Equal(t, "moderndownloader://open?url=https%3A%2F%2Fx.com%2Fa_(1)!*'~.-", got)

	got = ActivationURI("moderndownloader", "https://x.com/?q=%2A+b")
	assert.Equal(t, "moderndownloader://open?url=https%3A%2F%2Fx.com%2F%3Fq%3D%252A%2Bb", got, "literal percent and plus stay escaped")
}

func TestIsActivatable(t *testing.T) {
	assert.True(t, IsActivatable("https://x.com"))
	assert.False(t, IsActivatable(""))
	assert.False(t, IsActivatable("about:blank"))
	assert.False(t, IsActivatable("chrome://settings"))
}
