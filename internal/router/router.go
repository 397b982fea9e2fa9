// Package router dispatches inbound desktop frames and turns page-level
// download intents into DOWNLOAD frames.
package router

import (
	"context"
	"fmt"

	"github.com/moderndownloader/bridge/internal/cookies"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/protocol"
	"github.com/moderndownloader/bridge/internal/transport"
	"github.com/moderndownloader/bridge/internal/utils"
)

// Link is the outbound side of the transport.
type Link interface {
	IsConnected() bool
	Send(protocol.Message) error
}

// Mirror receives progress updates.
type Mirror interface {
	Upsert(ctx context.Context, item types.DownloadItem) error
}

// Router is loop-owned.
type Router struct {
	link      Link
	mirror    Mirror
	jar       cookies.Store
	userAgent string
}

// New creates a Router. userAgent is used for intents that carry none;
// empty means DefaultUserAgent.
func New(link Link, mirror Mirror, jar cookies.Store, userAgent string) *Router {
	if userAgent == "" {
		userAgent = DefaultUserAgent()
	}
	return &Router{link: link, mirror: mirror, jar: jar, userAgent: userAgent}
}

// Route handles one decoded inbound message. Only PROGRESS carries state;
// every other type is ignored.
func (r *Router) Route(ctx context.Context, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Progress:
		if err := r.mirror.Upsert(ctx, m.Data); err != nil {
			utils.Debug("Router: progress %s: %v", m.Data.ID, err)
		}
	default:
		utils.Debug("Router: ignoring %s", msg.MessageType())
	}
}

// BuildDownloadRequest assembles a DOWNLOAD frame for mediaURL carrying
// the cookies the browser holds for pageURL's host. A failed cookie
// lookup degrades to an empty cookie string.
func (r *Router) BuildDownloadRequest(ctx context.Context, intent types.DownloadIntent) protocol.Download {
	var header string
	if host, err := utils.HostOf(intent.PageURL); err == nil && host != "" && r.jar != nil {
		jar, err := r.jar.Cookies(ctx, host)
		if err != nil {
			utils.Debug("Router: cookie lookup for %s failed: %v", host, err)
		} else {
			header = cookies.JoinHeader(jar)
		}
	}
	ua := intent.UserAgent
	if ua == "" {
		ua = r.userAgent
	}
	return protocol.NewDownload(intent.MediaURL, header, ua, intent.PageURL, intent.Options)
}

// HandleIntent sends a DOWNLOAD for intent. DEBUG echoes of the attempt
// and its outcome are best effort; their failures are ignored.
func (r *Router) HandleIntent(ctx context.Context, intent types.DownloadIntent) error {
	if intent.MediaURL == "" {
		return fmt.Errorf("intent without url")
	}
	r.debug("Download requested: " + intent.MediaURL)

	if !r.link.IsConnected() {
		utils.Debug("Router: dropping intent for %s, not connected", intent.MediaURL)
		return transport.ErrNotConnected
	}

	msg := r.BuildDownloadRequest(ctx, intent)
	if err := r.link.Send(msg); err != nil {
		r.debug(fmt.Sprintf("Download send failed: %v", err))
		return err
	}
	r.debug("Download sent: " + intent.MediaURL)
	return nil
}

func (r *Router) debug(message string) {
	_ = r.link.Send(protocol.Debug{Message: message})
}
