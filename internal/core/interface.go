package core

import (
	"context"
	"time"

	"github.com/moderndownloader/bridge/internal/engine/types"
)

// Status is a snapshot of the bridge for status surfaces.
type Status struct {
	State            string    `json:"state"`
	Badge            string    `json:"badge"`
	Endpoint         string    `json:"endpoint"`
	ConnectedSince   time.Time `json:"connectedSince,omitzero"`
	ReconnectPending bool      `json:"reconnectPending"`
	HeartbeatPending bool      `json:"heartbeatPending"`
	Tracked          int       `json:"tracked"`
}

// BridgeService is what CLI commands and the intake server talk to. The
// local implementation is *Bridge; RemoteBridgeService reaches a bridge
// running in another process through its intake.
type BridgeService interface {
	// SendIntent forwards a download intent to the desktop app and returns
	// the request id. Fails with transport.ErrNotConnected when the
	// desktop app is not reachable; nothing is queued.
	SendIntent(ctx context.Context, intent types.DownloadIntent) (string, error)

	// Recent returns the mirrored downloads, newest first.
	Recent(ctx context.Context) ([]types.DownloadItem, error)

	// Status returns the connection snapshot.
	Status(ctx context.Context) (*Status, error)

	// StreamEvents delivers BadgeChangedMsg, RecentChangedMsg and
	// PreferenceChangedMsg values until ctx is done or cleanup is called.
	StreamEvents(ctx context.Context) (<-chan any, func(), error)

	// Shutdown releases the service.
	Shutdown() error
}

var (
	_ BridgeService = (*Bridge)(nil)
	_ BridgeService = (*RemoteBridgeService)(nil)
)
