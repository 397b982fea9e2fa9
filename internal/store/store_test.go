package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moderndownloader/bridge/internal/engine/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	var v string
	found, err := s.Get(context.Background(), "nope", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_SetGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", map[string]int{"a": 1}))
	var got map[string]int
	found, err := s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got["a"])

	require.NoError(t, s.Set(ctx, "k", map[string]int{"a": 2}))
	_, err = s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.Equal(t, 2, got["a"])
}

func TestStore_SeedKeepsExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, types.KeyServerPort, 7000))
	require.NoError(t, s.Seed(ctx, Defaults()))

	assert.Equal(t, 7000, s.ServerPort(ctx))
	enabled, err := s.AutoSendCookies(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, BrowserFirefox, s.PreferredBrowser(ctx))

	items, err := s.RecentDownloads(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_TypedFallbacks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assert.Equal(t, types.DefaultServerPort, s.ServerPort(ctx))
	require.NoError(t, s.Set(ctx, types.KeyServerPort, -1))
	assert.Equal(t, types.DefaultServerPort, s.ServerPort(ctx))

	enabled, err := s.AutoSendCookies(ctx)
	require.NoError(t, err)
	assert.True(t, enabled, "missing toggle means enabled")

	require.NoError(t, s.Set(ctx, types.KeyAutoSendCookies, false))
	enabled, err = s.AutoSendCookies(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	assert.Equal(t, "", s.Badge(ctx))
	require.NoError(t, s.SetBadge(ctx, "done"))
	assert.Equal(t, "done", s.Badge(ctx))
}

func TestStore_RecentDownloadsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := []types.DownloadItem{
		{ID: "b", Status: types.StatusDownloading, Progress: 0.5},
		{ID: "a", Status: types.StatusCompleted, Progress: 1},
	}
	require.NoError(t, s.SetRecentDownloads(ctx, in))
	out, err := s.RecentDownloads(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.NoError(t, s.SetRecentDownloads(ctx, nil))
	out, err = s.RecentDownloads(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStore_ChangesSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", 1))
	require.NoError(t, s.Set(ctx, "b", 2))

	changes, rev, err := s.ChangesSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "a", changes[0].Key)
	assert.Equal(t, "b", changes[1].Key)

	require.NoError(t, s.Set(ctx, "a", 3))
	changes, rev2, err := s.ChangesSince(ctx, rev)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "a", changes[0].Key)
	assert.JSONEq(t, "3", string(changes[0].Value))
	assert.Greater(t, rev2, rev)

	changes, _, err = s.ChangesSince(ctx, rev2)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestStore_Subscribe(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ch, cancel := s.Subscribe(4)
	require.NoError(t, s.Set(ctx, "x", "y"))

	c := <-ch
	assert.Equal(t, "x", c.Key)
	var v string
	require.NoError(t, json.Unmarshal(c.Value, &v))
	assert.Equal(t, "y", v)

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, types.KeyPreferredBrowser, BrowserChrome))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, BrowserChrome, s.PreferredBrowser(ctx))
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set(context.Background(), "a", 1), ErrClosed)
	var v int
	_, err = s.Get(context.Background(), "a", &v)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_FollowPublishesExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.db")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = bridge.Close() }()
	cli, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = cli.Close() }()

	ch, unsubscribe := bridge.Subscribe(8)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- bridge.Follow(ctx, 10*time.Millisecond) }()
	require.Eventually(t, func() bool {
		bridge.mu.Lock()
		defer bridge.mu.Unlock()
		return bridge.following
	}, 2*time.Second, 5*time.Millisecond)

	// Written by this process: published once by Set, not again by the poll
	require.NoError(t, bridge.Set(ctx, types.KeyBadge, "connected"))
	select {
	case c := <-ch:
		assert.Equal(t, types.KeyBadge, c.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("local write not published")
	}

	require.NoError(t, cli.Set(ctx, types.KeyAutoSendCookies, false))
	select {
	case c := <-ch:
		assert.Equal(t, types.KeyAutoSendCookies, c.Key)
		assert.JSONEq(t, "false", string(c.Value))
	case <-time.After(2 * time.Second):
		t.Fatal("external write not published")
	}

	select {
	case c := <-ch:
		t.Fatalf("unexpected extra change %s", c.Key)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
