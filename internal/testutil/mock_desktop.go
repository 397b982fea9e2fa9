// Package testutil provides test doubles for the bridge: a stand-in for
// the desktop app's socket server and an IPv4-only httptest helper.
package testutil

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// MockDesktop accepts bridge connections the way the desktop app does and
// records every frame it receives.
type MockDesktop struct {
	Server *httptest.Server

	// Configuration
	RejectFirst int           // Refuse this many upgrades with 503 before accepting
	Latency     time.Duration // Delay before completing each handshake

	// Tracking
	Accepted atomic.Int64
	Rejected atomic.Int64

	upgrader websocket.Upgrader
	frames   chan []byte

	mu    sync.Mutex
	conns []*websocket.Conn
}

// MockDesktopOption configures a MockDesktop.
type MockDesktopOption func(*MockDesktop)

// WithRejectFirst makes the first n connection attempts fail.
func WithRejectFirst(n int) MockDesktopOption {
	return func(m *MockDesktop) {
		m.RejectFirst = n
	}
}

// WithLatency delays each handshake.
func WithLatency(d time.Duration) MockDesktopOption {
	return func(m *MockDesktop) {
		m.Latency = d
	}
}

// NewMockDesktopT starts a mock desktop on 127.0.0.1 and closes it when
// the test ends.
func NewMockDesktopT(t *testing.T, opts ...MockDesktopOption) *MockDesktop {
	t.Helper()
	m := &MockDesktop{
		frames: make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Server = NewHTTPServerT(t, http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

// URL returns the ws:// address of the server.
func (m *MockDesktop) URL() string {
	return "ws" + strings.TrimPrefix(m.Server.URL, "http") + "/"
}

// Port returns the listening port.
func (m *MockDesktop) Port() int {
	_, p, _ := net.SplitHostPort(m.Server.Listener.Addr().String())
	port, _ := strconv.Atoi(p)
	return port
}

// Close drops all connections and stops the server.
func (m *MockDesktop) Close() {
	m.DropAll()
	m.Server.Close()
}

// Connections returns how many connections are currently open.
func (m *MockDesktop) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// DropAll closes every open connection from the server side.
func (m *MockDesktop) DropAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Send writes a raw text frame to every open connection.
func (m *MockDesktop) Send(t *testing.T, frame string) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		t.Fatalf("mock desktop: no connection to send %s", frame)
	}
	for _, c := range m.conns {
		if err := c.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("mock desktop: write: %v", err)
		}
	}
}

// NextFrame waits for the next received frame and decodes it as a JSON
// object.
func (m *MockDesktop) NextFrame(t *testing.T, timeout time.Duration) map[string]any {
	t.Helper()
	select {
	case raw := <-m.frames:
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("mock desktop: frame %q is not JSON: %v", raw, err)
		}
		return out
	case <-time.After(timeout):
		t.Fatalf("mock desktop: no frame within %v", timeout)
		return nil
	}
}

// NextFrameOfType skips frames until one with the given type arrives.
func (m *MockDesktop) NextFrameOfType(t *testing.T, typ string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("mock desktop: no %s frame within %v", typ, timeout)
		}
		f := m.NextFrame(t, remaining)
		if f["type"] == typ {
			return f
		}
	}
}

// ExpectNoFrame fails if a frame arrives within d.
func (m *MockDesktop) ExpectNoFrame(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case raw := <-m.frames:
		t.Fatalf("mock desktop: unexpected frame %s", raw)
	case <-time.After(d):
	}
}

func (m *MockDesktop) handle(w http.ResponseWriter, r *http.Request) {
	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}
	if int(m.Rejected.Load()) < m.RejectFirst {
		m.Rejected.Add(1)
		http.Error(w, "desktop app starting", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.Accepted.Add(1)

	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		for i, c := range m.conns {
			if c == conn {
				m.conns = append(m.conns[:i], m.conns[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case m.frames <- data:
		default:
		}
	}
}
