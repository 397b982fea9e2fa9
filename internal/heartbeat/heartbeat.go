// Package heartbeat forwards session cookies for supported media sites to
// the desktop app so it can fetch with the user's logged-in session.
//
// Cookie writes arrive in bursts (a login sets a dozen cookies in quick
// succession), so changes are debounced through one shared timer and
// produce a single HEARTBEAT_COOKIES frame.
package heartbeat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/moderndownloader/bridge/internal/clock"
	"github.com/moderndownloader/bridge/internal/cookies"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/protocol"
	"github.com/moderndownloader/bridge/internal/utils"
)

// SupportedDomains are the media sites whose cookies are forwarded.
var SupportedDomains = []string{
	"youtube.com",
	"youtu.be",
	"x.com",
	"twitter.com",
	"instagram.com",
	"tiktok.com",
	"facebook.com",
	"vimeo.com",
	"reddit.com",
	"twitch.tv",
	"dailymotion.com",
}

const lookupTimeout = 5 * time.Second

// Link is the outbound side of the transport.
type Link interface {
	IsConnected() bool
	Send(protocol.Message) error
}

// Preferences exposes the user's cookie forwarding toggle.
type Preferences interface {
	AutoSendCookies(ctx context.Context) (bool, error)
}

// Engine debounces cookie changes and sends heartbeats. Loop-owned.
type Engine struct {
	allow    []string
	link     Link
	jar      cookies.Store
	page     cookies.ActivePage
	prefs    Preferences
	debounce *clock.Slot
	pending  string
}

// Config wires an Engine.
type Config struct {
	AllowList []string // defaults to SupportedDomains
	Link      Link
	Cookies   cookies.Store
	Page      cookies.ActivePage
	Prefs     Preferences
	Clock     clock.Clock
	Post      func(func())
}

// New creates an Engine.
func New(cfg Config) *Engine {
	allow := cfg.AllowList
	if allow == nil {
		allow = SupportedDomains
	}
	normalized := make([]string, 0, len(allow))
	for _, d := range allow {
		if d = utils.NormalizeDomain(d); d != "" {
			normalized = append(normalized, d)
		}
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	return &Engine{
		allow:    normalized,
		link:     cfg.Link,
		jar:      cfg.Cookies,
		page:     cfg.Page,
		prefs:    cfg.Prefs,
		debounce: clock.NewSlot(c, cfg.Post),
	}
}

// Matches reports whether domain belongs to an allow-listed site. A
// leading dot is ignored and entries match on label boundaries, so
// "login.x.com" matches "x.com" but "notx.com" does not.
func (e *Engine) Matches(domain string) bool {
	d := utils.NormalizeDomain(domain)
	if d == "" {
		return false
	}
	for _, entry := range e.allow {
		if containsLabels(d, entry) {
			return true
		}
	}
	return false
}

func containsLabels(domain, entry string) bool {
	for from := 0; from <= len(domain)-len(entry); {
		i := strings.Index(domain[from:], entry)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(entry)
		if (i == 0 || domain[i-1] == '.') && (end == len(domain) || domain[end] == '.') {
			return true
		}
		from = i + 1
	}
	return false
}

// OnCookieChanged handles one credential-store change. A qualifying
// change restarts the shared debounce timer; the heartbeat goes out for
// the most recent qualifying domain once changes stop for the debounce
// interval. Returns whether the change qualified.
func (e *Engine) OnCookieChanged(domain string) bool {
	if !e.Matches(domain) {
		return false
	}
	e.pending = utils.NormalizeDomain(domain)
	e.debounce.Reset(types.HeartbeatDebounce, e.fire)
	return true
}

// Pending reports whether a heartbeat is waiting on the debounce timer.
func (e *Engine) Pending() bool { return e.debounce.Pending() }

// Stop cancels a pending heartbeat.
func (e *Engine) Stop() {
	e.debounce.Stop()
	e.pending = ""
}

func (e *Engine) fire() {
	domain := e.pending
	e.pending = ""
	if domain == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	if err := e.send(ctx, domain); err != nil {
		utils.Debug("Heartbeat: %s skipped: %v", domain, err)
	}
}

var errDisabled = errors.New("cookie forwarding disabled")

// send collects and forwards cookies for domain, subdomain cookies
// included. The preference is read on every call so a toggle takes
// effect on the next heartbeat.
func (e *Engine) send(ctx context.Context, domain string) error {
	if e.prefs != nil {
		enabled, err := e.prefs.AutoSendCookies(ctx)
		if err != nil {
			return err
		}
		if !enabled {
			return errDisabled
		}
	}
	if e.link == nil || !e.link.IsConnected() {
		return errors.New("not connected")
	}
	if e.jar == nil {
		return errors.New("no cookie store")
	}
	jar, err := cookies.ForSite(ctx, e.jar, domain)
	if err != nil {
		return err
	}
	return e.link.Send(protocol.HeartbeatCookies{Domain: domain, Cookies: cookies.JoinHeader(jar)})
}

// SendCurrentTabCookies forwards cookies for the focused page's domain,
// if it is a supported site. Failures are logged and otherwise ignored.
func (e *Engine) SendCurrentTabCookies(ctx context.Context) {
	if e.page == nil {
		return
	}
	p, err := e.page.Current(ctx)
	if err != nil {
		utils.Debug("Heartbeat: no active page: %v", err)
		return
	}
	host, err := utils.HostOf(p.URL)
	if err != nil || host == "" || !e.Matches(host) {
		return
	}
	if err := e.send(ctx, host); err != nil {
		utils.Debug("Heartbeat: current tab %s skipped: %v", host, err)
	}
}
