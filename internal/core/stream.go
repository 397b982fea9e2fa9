package core

import (
	"context"
	"encoding/json"

	"github.com/moderndownloader/bridge/internal/engine/events"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/store"
	"github.com/moderndownloader/bridge/internal/utils"
)

// ChangeEvent converts a store write into the event status surfaces
// consume. Undecodable values are dropped.
func ChangeEvent(c store.Change) (any, bool) {
	switch c.Key {
	case types.KeyBadge:
		var badge string
		if err := json.Unmarshal(c.Value, &badge); err != nil {
			return nil, false
		}
		return events.BadgeChangedMsg{Badge: badge}, true
	case types.KeyRecentDownloads:
		var items []types.DownloadItem
		if err := json.Unmarshal(c.Value, &items); err != nil {
			utils.Debug("Stream: bad recentDownloads value: %v", err)
			return nil, false
		}
		return events.RecentChangedMsg{Items: items}, true
	default:
		return events.PreferenceChangedMsg{Key: c.Key, Value: c.Value}, true
	}
}

// StreamEvents implements BridgeService by following the store.
func (b *Bridge) StreamEvents(ctx context.Context) (<-chan any, func(), error) {
	return streamStore(ctx, b.opts.Store)
}

func streamStore(ctx context.Context, st *store.Store) (<-chan any, func(), error) {
	changes, cancel := st.Subscribe(64)
	out := make(chan any, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case c, ok := <-changes:
				if !ok {
					return
				}
				ev, ok := ChangeEvent(c)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out, cancel, nil
}
