package store

import (
	"context"

	"github.com/moderndownloader/bridge/internal/engine/types"
)

// Browser names accepted for preferredBrowser.
const (
	BrowserFirefox = "firefox"
	BrowserChrome  = "chrome"
)

// Defaults are the values seeded on first run.
func Defaults() map[string]any {
	return map[string]any{
		types.KeyServerPort:       types.DefaultServerPort,
		types.KeyAutoSendCookies:  true,
		types.KeyPreferredBrowser: BrowserFirefox,
		types.KeyRecentDownloads:  []types.DownloadItem{},
	}
}

// ServerPort returns the desktop app port, falling back to the default
// when unset or invalid.
func (s *Store) ServerPort(ctx context.Context) int {
	var port int
	found, err := s.Get(ctx, types.KeyServerPort, &port)
	if err != nil || !found || port <= 0 || port > 65535 {
		return types.DefaultServerPort
	}
	return port
}

// AutoSendCookies reads the heartbeat toggle. Missing means enabled.
func (s *Store) AutoSendCookies(ctx context.Context) (bool, error) {
	enabled := true
	if _, err := s.Get(ctx, types.KeyAutoSendCookies, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// PreferredBrowser returns the configured browser name.
func (s *Store) PreferredBrowser(ctx context.Context) string {
	var name string
	found, err := s.Get(ctx, types.KeyPreferredBrowser, &name)
	if err != nil || !found || name == "" {
		return BrowserFirefox
	}
	return name
}

// RecentDownloads returns the persisted mirror, newest first.
func (s *Store) RecentDownloads(ctx context.Context) ([]types.DownloadItem, error) {
	var items []types.DownloadItem
	if _, err := s.Get(ctx, types.KeyRecentDownloads, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SetRecentDownloads replaces the persisted mirror.
func (s *Store) SetRecentDownloads(ctx context.Context, items []types.DownloadItem) error {
	if items == nil {
		items = []types.DownloadItem{}
	}
	return s.Set(ctx, types.KeyRecentDownloads, items)
}

// Badge returns the persisted indicator, or "" when never set.
func (s *Store) Badge(ctx context.Context) string {
	var b string
	_, _ = s.Get(ctx, types.KeyBadge, &b)
	return b
}

// SetBadge persists the indicator.
func (s *Store) SetBadge(ctx context.Context, badge string) error {
	return s.Set(ctx, types.KeyBadge, badge)
}
