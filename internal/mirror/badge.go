package mirror

import (
	"context"

	"github.com/moderndownloader/bridge/internal/clock"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/utils"
)

// Indicator is the short status the bridge advertises to status surfaces.
type Indicator string

const (
	IndicatorNone         Indicator = ""
	IndicatorConnected    Indicator = "connected"
	IndicatorDisconnected Indicator = "disconnected"
	IndicatorActive       Indicator = "active"
	IndicatorDone         Indicator = "done"
)

// BadgeStore persists the indicator.
type BadgeStore interface {
	SetBadge(ctx context.Context, badge string) error
}

// Badge derives the indicator from connection state and mirror contents.
// Loop-owned.
type Badge struct {
	current   Indicator
	connected bool
	active    bool // some visible item is queued, extracting or downloading
	revert    *clock.Slot
	store     BadgeStore
}

// NewBadge creates a badge. post delivers the revert timer to the loop.
func NewBadge(c clock.Clock, post func(func()), store BadgeStore) *Badge {
	return &Badge{
		revert: clock.NewSlot(c, post),
		store:  store,
	}
}

// Current returns the indicator being shown.
func (b *Badge) Current() Indicator { return b.current }

// SetConnected records a link change.
func (b *Badge) SetConnected(connected bool) {
	b.connected = connected
	if connected {
		b.set(b.resting())
	} else {
		b.set(IndicatorDisconnected)
	}
}

// Summarize updates the indicator after a mirror change. completedNow is
// true when the change moved an item into Completed.
func (b *Badge) Summarize(items []types.DownloadItem, completedNow bool) {
	b.Track(items)
	if completedNow {
		b.set(IndicatorDone)
		b.revert.Reset(types.BadgeRevertDelay, b.revertDone)
		return
	}
	if b.active {
		b.set(IndicatorActive)
		return
	}
	if b.connected && b.current == IndicatorActive {
		b.set(IndicatorConnected)
	}
}

// Track records whether items hold an active download without changing
// the indicator. The mirror calls it with persisted items on start.
func (b *Badge) Track(items []types.DownloadItem) {
	b.active = false
	for _, it := range items {
		if it.Status.IsActive() {
			b.active = true
			return
		}
	}
}

// resting is the indicator shown while connected and nothing just finished.
func (b *Badge) resting() Indicator {
	if b.active {
		return IndicatorActive
	}
	return IndicatorConnected
}

// revertDone leaves the done indicator unless something changed in the
// meantime, including a disconnect.
func (b *Badge) revertDone() {
	if !b.connected || b.current != IndicatorDone {
		return
	}
	b.set(b.resting())
}

func (b *Badge) set(ind Indicator) {
	if b.current == ind {
		return
	}
	b.current = ind
	if b.store == nil {
		return
	}
	if err := b.store.SetBadge(context.Background(), string(ind)); err != nil {
		utils.Debug("Badge: persist %s failed: %v", ind, err)
	}
}
