// Package transport owns the single socket to the desktop app: dialing,
// reconnecting on a fixed delay, the HELLO handshake and frame I/O.
//
// Manager is not safe for concurrent use. Every method runs on the bridge
// loop; the dialer and reader goroutines only post events back to it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moderndownloader/bridge/internal/clock"
	"github.com/moderndownloader/bridge/internal/engine/events"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/protocol"
	"github.com/moderndownloader/bridge/internal/utils"
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("not connected to desktop app")

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Hooks are called on the loop as the link changes.
type Hooks struct {
	// Connected runs after HELLO has been sent.
	Connected func()
	// Disconnected runs after a close or failed dial.
	Disconnected func()
	// Message receives every decoded inbound frame.
	Message func(protocol.Message)
	// SendSessionCookies runs once, CookieSendDelay after each connect,
	// if the connection is still open.
	SendSessionCookies func()
}

// Config configures a Manager.
type Config struct {
	// Endpoint returns the desktop app URL. It is called on every dial so
	// a changed port takes effect on the next reconnect.
	Endpoint func() string
	Clock    clock.Clock
	Post     func(any)
	Dialer   *websocket.Dialer
	Header   http.Header
	Metrics  *Metrics
	Hooks    Hooks
}

// Manager keeps one connection to the desktop app.
type Manager struct {
	cfg   Config
	state State
	conn  *websocket.Conn
	gen   uint64

	reconnect   *clock.Slot
	cookieSend  *clock.Slot
	stopped     bool
	connectedAt time.Time
}

// Endpoint builds the socket URL for a local port.
func Endpoint(port int) string {
	return "ws://" + net.JoinHostPort(types.DefaultServerHost, strconv.Itoa(port)) + "/"
}

// New creates a disconnected Manager. Timer callbacks go through cfg.Post
// wrapped in events.TaskMsg.
func New(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: types.DialTimeout}
	}
	if cfg.Endpoint == nil {
		cfg.Endpoint = func() string { return Endpoint(types.DefaultServerPort) }
	}
	post := func(fn func()) { cfg.Post(events.TaskMsg{Fn: fn}) }
	m := &Manager{
		cfg:        cfg,
		reconnect:  clock.NewSlot(cfg.Clock, post),
		cookieSend: clock.NewSlot(cfg.Clock, post),
	}
	cfg.Metrics.setState(Disconnected)
	return m
}

// State reports the current connection state.
func (m *Manager) State() State { return m.state }

// IsConnected reports whether frames can be sent right now.
func (m *Manager) IsConnected() bool { return m.state == Connected }

// ConnectedSince is the time the current connection opened, or zero.
func (m *Manager) ConnectedSince() time.Time {
	if m.state != Connected {
		return time.Time{}
	}
	return m.connectedAt
}

// ReconnectPending reports whether a reconnect timer is armed.
func (m *Manager) ReconnectPending() bool { return m.reconnect.Pending() }

// Connect starts a dial unless one is in flight or a connection is open.
func (m *Manager) Connect() {
	if m.stopped || m.state != Disconnected {
		return
	}
	m.gen++
	gen := m.gen
	m.setState(Connecting)

	url := m.cfg.Endpoint()
	dialer := m.cfg.Dialer
	header := m.cfg.Header
	post := m.cfg.Post
	utils.Debug("Transport: dialing %s (attempt %d)", url, gen)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), types.DialTimeout)
		defer cancel()
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			post(events.DialFailedMsg{Gen: gen, Err: err})
			return
		}
		post(events.ConnectionOpenedMsg{Gen: gen, Conn: conn})
	}()
}

// HandleOpened completes a dial.
func (m *Manager) HandleOpened(msg events.ConnectionOpenedMsg) {
	if msg.Gen != m.gen || m.state != Connecting || m.stopped {
		if msg.Conn != nil {
			_ = msg.Conn.Close()
		}
		return
	}
	m.conn = msg.Conn
	m.connectedAt = m.cfg.Clock.Now()
	m.reconnect.Stop()
	m.setState(Connected)
	utils.Debug("Transport: connected (attempt %d)", msg.Gen)

	go readLoop(msg.Conn, msg.Gen, m.cfg.Post)

	if err := m.Send(protocol.Hello{Version: protocol.ProtocolVersion}); err != nil {
		utils.Debug("Transport: HELLO failed: %v", err)
		return
	}
	if m.cfg.Hooks.Connected != nil {
		m.cfg.Hooks.Connected()
	}
	if m.cfg.Hooks.SendSessionCookies != nil {
		m.cookieSend.Reset(types.CookieSendDelay, func() {
			if m.state == Connected {
				m.cfg.Hooks.SendSessionCookies()
			}
		})
	}
}

// HandleDialFailed records a failed dial and schedules the retry.
func (m *Manager) HandleDialFailed(msg events.DialFailedMsg) {
	if msg.Gen != m.gen || m.state != Connecting {
		return
	}
	utils.Debug("Transport: dial failed: %v", msg.Err)
	m.lost()
}

// HandleClosed records the end of a connection and schedules the retry.
func (m *Manager) HandleClosed(msg events.ConnectionClosedMsg) {
	if msg.Gen != m.gen || m.state != Connected {
		return
	}
	if msg.Err != nil && websocket.IsUnexpectedCloseError(msg.Err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		utils.Debug("Transport: connection lost: %v", msg.Err)
	} else {
		utils.Debug("Transport: connection closed")
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.lost()
}

// HandleFrame decodes an inbound frame and hands it to Hooks.Message.
// Frames from an older connection and undecodable frames are dropped.
func (m *Manager) HandleFrame(msg events.FrameReceivedMsg) {
	if msg.Gen != m.gen || m.state != Connected {
		return
	}
	decoded, err := protocol.Decode(msg.Data)
	if err != nil {
		m.cfg.Metrics.fault()
		utils.Debug("Transport: dropping frame: %v", err)
		return
	}
	m.cfg.Metrics.received(string(decoded.MessageType()))
	if m.cfg.Hooks.Message != nil {
		m.cfg.Hooks.Message(decoded)
	}
}

// Send writes one frame. It fails with ErrNotConnected unless connected;
// nothing is queued.
func (m *Manager) Send(msg protocol.Message) error {
	if m.state != Connected || m.conn == nil {
		return ErrNotConnected
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	// Socket deadlines are wall-clock regardless of the injected clock
	_ = m.conn.SetWriteDeadline(time.Now().Add(types.WriteTimeout))
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The reader sees the closed socket and posts ConnectionClosedMsg
		_ = m.conn.Close()
		return fmt.Errorf("send %s: %w", msg.MessageType(), err)
	}
	m.cfg.Metrics.sent(string(msg.MessageType()))
	return nil
}

// Close shuts the link down for good. No reconnect follows.
func (m *Manager) Close() {
	m.stopped = true
	m.reconnect.Stop()
	m.cookieSend.Stop()
	m.gen++
	if m.conn != nil {
		_ = m.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = m.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bridge shutting down"))
		_ = m.conn.Close()
		m.conn = nil
	}
	m.setState(Disconnected)
}

func (m *Manager) lost() {
	m.cookieSend.Stop()
	m.setState(Disconnected)
	if m.cfg.Hooks.Disconnected != nil {
		m.cfg.Hooks.Disconnected()
	}
	m.scheduleReconnect()
}

// scheduleReconnect arms the fixed-delay retry. At most one is pending.
func (m *Manager) scheduleReconnect() {
	if m.stopped {
		return
	}
	if m.reconnect.Arm(types.ReconnectDelay, m.Connect) {
		m.cfg.Metrics.reconnect()
	}
}

func (m *Manager) setState(s State) {
	m.state = s
	m.cfg.Metrics.setState(s)
}

func readLoop(conn *websocket.Conn, gen uint64, post func(any)) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			post(events.ConnectionClosedMsg{Gen: gen, Err: err})
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		post(events.FrameReceivedMsg{Gen: gen, Data: data})
	}
}
