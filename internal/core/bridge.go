// Package core assembles the bridge: one loop goroutine owning the
// transport, mirror, badge, heartbeat and router, fed by the socket,
// timers, the cookie watcher and the intake server.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/moderndownloader/bridge/internal/clock"
	"github.com/moderndownloader/bridge/internal/cookies"
	"github.com/moderndownloader/bridge/internal/engine/events"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/heartbeat"
	"github.com/moderndownloader/bridge/internal/mirror"
	"github.com/moderndownloader/bridge/internal/protocol"
	"github.com/moderndownloader/bridge/internal/router"
	"github.com/moderndownloader/bridge/internal/store"
	"github.com/moderndownloader/bridge/internal/transport"
	"github.com/moderndownloader/bridge/internal/utils"
)

// Options wires a Bridge.
type Options struct {
	Store         *store.Store
	Cookies       cookies.Store
	CookieWatcher cookies.Watcher // optional
	Page          cookies.ActivePage
	Clock         clock.Clock
	UserAgent     string
	AllowList     []string
	Registry      prometheus.Registerer
	Dialer        *websocket.Dialer

	// Endpoint overrides the desktop URL. By default it is rebuilt from
	// the stored serverPort on every dial.
	Endpoint func() string
}

// Bridge is the local BridgeService.
type Bridge struct {
	opts Options
	loop *Loop

	manager   *transport.Manager
	badge     *mirror.Badge
	mirror    *mirror.Mirror
	router    *router.Router
	heartbeat *heartbeat.Engine

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown sync.Once
}

// NewBridge seeds missing preferences, restores the persisted mirror and
// builds every component. Nothing runs until Start.
func NewBridge(ctx context.Context, opts Options) (*Bridge, error) {
	if opts.Store == nil {
		return nil, errors.New("bridge: store is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Page == nil {
		opts.Page = cookies.StaticPage{}
	}
	if err := opts.Store.Seed(ctx, store.Defaults()); err != nil {
		return nil, fmt.Errorf("seed preferences: %w", err)
	}
	recent, err := opts.Store.RecentDownloads(ctx)
	if err != nil {
		utils.Debug("Bridge: discarding unreadable recent downloads: %v", err)
		recent = nil
	}

	b := &Bridge{opts: opts, loop: NewLoop(types.EventChannelBuffer)}
	if b.opts.Endpoint == nil {
		st := opts.Store
		b.opts.Endpoint = func() string {
			return transport.Endpoint(st.ServerPort(context.Background()))
		}
	}

	b.badge = mirror.NewBadge(opts.Clock, b.loop.PostFunc, opts.Store)
	b.mirror = mirror.New(opts.Store, b.badge, types.MirrorCapacity, recent)
	b.manager = transport.New(transport.Config{
		Endpoint: b.opts.Endpoint,
		Clock:    opts.Clock,
		Post:     b.loop.Post,
		Dialer:   opts.Dialer,
		Metrics:  transport.NewMetrics(opts.Registry),
		Hooks: transport.Hooks{
			Connected:          func() { b.badge.SetConnected(true) },
			Disconnected:       func() { b.badge.SetConnected(false) },
			Message:            func(msg protocol.Message) { b.router.Route(b.ctx, msg) },
			SendSessionCookies: func() { b.heartbeat.SendCurrentTabCookies(b.ctx) },
		},
	})
	b.router = router.New(b.manager, b.mirror, opts.Cookies, opts.UserAgent)
	b.heartbeat = heartbeat.New(heartbeat.Config{
		AllowList: opts.AllowList,
		Link:      b.manager,
		Cookies:   opts.Cookies,
		Page:      opts.Page,
		Prefs:     opts.Store,
		Clock:     opts.Clock,
		Post:      b.loop.PostFunc,
	})
	return b, nil
}

// Start runs the loop, begins connecting and forwards cookie changes.
// It returns once the first connect attempt is queued.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	go b.loop.Run(b.ctx, b.handle)

	b.loop.PostFunc(func() {
		b.badge.SetConnected(false)
		b.manager.Connect()
	})

	go func() {
		err := b.opts.Store.Follow(b.ctx, types.StoreFollowInterval)
		if err != nil && !errors.Is(err, context.Canceled) {
			utils.Debug("Bridge: not following external store writes: %v", err)
		}
	}()

	if b.opts.CookieWatcher != nil {
		changes, err := b.opts.CookieWatcher.Watch(b.ctx)
		if err != nil {
			utils.Debug("Bridge: cookie watcher unavailable: %v", err)
			return nil
		}
		go b.forwardCookies(changes)
	}
	return nil
}

func (b *Bridge) forwardCookies(changes <-chan cookies.Change) {
	for c := range changes {
		b.loop.Post(events.CookieChangedMsg{Domain: c.Domain, Name: c.Name, Removed: c.Removed})
	}
}

// handle runs on the loop.
func (b *Bridge) handle(ev any) {
	switch msg := ev.(type) {
	case events.ConnectionOpenedMsg:
		b.manager.HandleOpened(msg)
	case events.DialFailedMsg:
		b.manager.HandleDialFailed(msg)
	case events.ConnectionClosedMsg:
		b.manager.HandleClosed(msg)
	case events.FrameReceivedMsg:
		b.manager.HandleFrame(msg)
	case events.CookieChangedMsg:
		if b.heartbeat.OnCookieChanged(msg.Domain) {
			utils.Debug("Bridge: cookie %s changed for %s", msg.Name, msg.Domain)
		}
	case events.DownloadIntentMsg:
		err := b.router.HandleIntent(b.ctx, msg.Intent)
		if err != nil {
			utils.Debug("Bridge: intent %s: %v", msg.ID, err)
		}
		if msg.Reply != nil {
			msg.Reply <- err
		}
	default:
		utils.Debug("Bridge: unhandled event %T", ev)
	}
}

// SendIntent implements BridgeService.
func (b *Bridge) SendIntent(ctx context.Context, intent types.DownloadIntent) (string, error) {
	if intent.MediaURL == "" {
		return "", errors.New("intent without url")
	}
	id := uuid.NewString()
	reply := make(chan error, 1)
	b.loop.Post(events.DownloadIntentMsg{ID: id, Intent: intent, Reply: reply})
	select {
	case err := <-reply:
		return id, err
	case <-b.loop.Done():
		return id, ErrLoopStopped
	case <-ctx.Done():
		return id, ctx.Err()
	}
}

// Recent implements BridgeService.
func (b *Bridge) Recent(ctx context.Context) ([]types.DownloadItem, error) {
	var items []types.DownloadItem
	err := b.loop.Call(ctx, func() { items = b.mirror.Items() })
	return items, err
}

// Status implements BridgeService.
func (b *Bridge) Status(ctx context.Context) (*Status, error) {
	var st *Status
	err := b.loop.Call(ctx, func() {
		st = &Status{
			State:            b.manager.State().String(),
			Badge:            string(b.badge.Current()),
			Endpoint:         b.opts.Endpoint(),
			ConnectedSince:   b.manager.ConnectedSince(),
			ReconnectPending: b.manager.ReconnectPending(),
			HeartbeatPending: b.heartbeat.Pending(),
			Tracked:          b.mirror.Len(),
		}
	})
	return st, err
}

// Shutdown closes the connection, cancels pending timers and stops the
// loop. Safe to call more than once.
func (b *Bridge) Shutdown() error {
	b.shutdown.Do(func() {
		if b.cancel == nil {
			return
		}
		stop := func() {
			b.heartbeat.Stop()
			b.manager.Close()
		}
		err := b.loop.Call(context.Background(), stop)
		b.cancel()
		<-b.loop.Done()
		if err != nil {
			// The loop exited first; nothing else touches the components now
			stop()
		}
	})
	return nil
}
