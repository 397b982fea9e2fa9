// Package mirror keeps the bridge's copy of the desktop app's most recent
// downloads and the status indicator derived from it.
package mirror

import (
	"context"
	"fmt"

	"github.com/moderndownloader/bridge/internal/engine/types"
)

// Persister stores the mirror after every change.
type Persister interface {
	SetRecentDownloads(ctx context.Context, items []types.DownloadItem) error
}

// Mirror is a bounded, newest-first list of downloads keyed by id. It is
// owned by the bridge loop and not safe for concurrent use.
type Mirror struct {
	items    []types.DownloadItem
	capacity int
	store    Persister
	badge    *Badge
}

// New creates a mirror seeded with previously persisted items.
func New(store Persister, badge *Badge, capacity int, initial []types.DownloadItem) *Mirror {
	if capacity <= 0 {
		capacity = types.MirrorCapacity
	}
	items := make([]types.DownloadItem, 0, capacity+1)
	for _, it := range initial {
		if it.ID == "" || indexOf(items, it.ID) >= 0 {
			continue
		}
		items = append(items, it)
		if len(items) == capacity {
			break
		}
	}
	if badge != nil {
		badge.Track(items)
	}
	return &Mirror{items: items, capacity: capacity, store: store, badge: badge}
}

// Upsert replaces the entry with item.ID in place, or inserts item at the
// front and evicts anything beyond capacity. The result is persisted
// before Upsert returns; the badge is updated even if persisting fails.
func (m *Mirror) Upsert(ctx context.Context, item types.DownloadItem) error {
	if item.ID == "" {
		return fmt.Errorf("upsert: download without id")
	}

	completedNow := item.Status == types.StatusCompleted
	if i := indexOf(m.items, item.ID); i >= 0 {
		completedNow = completedNow && m.items[i].Status != types.StatusCompleted
		m.items[i] = item
	} else {
		m.items = append(m.items, types.DownloadItem{})
		copy(m.items[1:], m.items)
		m.items[0] = item
		if len(m.items) > m.capacity {
			m.items = m.items[:m.capacity]
		}
	}

	var err error
	if m.store != nil {
		if perr := m.store.SetRecentDownloads(ctx, m.Items()); perr != nil {
			err = fmt.Errorf("persist recent downloads: %w", perr)
		}
	}
	if m.badge != nil {
		m.badge.Summarize(m.items, completedNow)
	}
	return err
}

// Items returns a copy of the mirror, newest first.
func (m *Mirror) Items() []types.DownloadItem {
	out := make([]types.DownloadItem, len(m.items))
	copy(out, m.items)
	return out
}

// Len returns the number of tracked downloads.
func (m *Mirror) Len() int { return len(m.items) }

func indexOf(items []types.DownloadItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
