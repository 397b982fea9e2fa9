package mirror

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moderndownloader/bridge/internal/clock"
	"github.com/moderndownloader/bridge/internal/engine/types"
)

type memStore struct {
	saved  [][]types.DownloadItem
	badges []string
	err    error
}

func (s *memStore) SetRecentDownloads(_ context.Context, items []types.DownloadItem) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, items)
	return nil
}

func (s *memStore) SetBadge(_ context.Context, badge string) error {
	s.badges = append(s.badges, badge)
	return nil
}

func (s *memStore) last() []types.DownloadItem {
	if len(s.saved) == 0 {
		return nil
	}
	return s.saved[len(s.saved)-1]
}

func newTestMirror(t *testing.T) (*Mirror, *Badge, *memStore, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	st := &memStore{}
	b := NewBadge(clk, clock.Inline, st)
	b.SetConnected(true)
	return New(st, b, types.MirrorCapacity, nil), b, st, clk
}

func ids(items []types.DownloadItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestMirror_InsertThenCompleteSameID(t *testing.T) {
	m, b, st, clk := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "a1", Status: types.StatusDownloading, Progress: 0.42}))
	require.Equal(t, 1, m.Len())
	assert.Equal(t, "a1", m.Items()[0].ID)
	assert.Equal(t, IndicatorActive, b.Current())
	assert.Equal(t, m.Items(), st.last(), "persisted on every upsert")

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "a1", Status: types.StatusCompleted, Progress: 1}))
	require.Equal(t, 1, m.Len())
	assert.Equal(t, types.StatusCompleted, m.Items()[0].Status)
	assert.Equal(t, IndicatorDone, b.Current())

	clk.Advance(types.BadgeRevertDelay - time.Millisecond)
	assert.Equal(t, IndicatorDone, b.Current())
	clk.Advance(time.Millisecond)
	assert.Equal(t, IndicatorConnected, b.Current())
	assert.Equal(t, []string{"connected", "active", "done", "connected"}, st.badges)
}

func TestMirror_DoneRevertDoesNotOverrideDisconnect(t *testing.T) {
	m, b, _, clk := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "a1", Status: types.StatusCompleted}))
	assert.Equal(t, IndicatorDone, b.Current())

	clk.Advance(time.Second)
	b.SetConnected(false)
	clk.Advance(types.BadgeRevertDelay)
	assert.Equal(t, IndicatorDisconnected, b.Current())
}

func TestMirror_RepeatedCompletedDoesNotRetrigger(t *testing.T) {
	m, b, _, clk := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "a1", Status: types.StatusCompleted}))
	clk.Advance(types.BadgeRevertDelay)
	assert.Equal(t, IndicatorConnected, b.Current())

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "a1", Status: types.StatusCompleted, Title: "renamed"}))
	assert.Equal(t, IndicatorConnected, b.Current())
}

func TestMirror_UpsertPreservesPosition(t *testing.T) {
	m, _, _, _ := newTestMirror(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: id, Status: types.StatusQueued}))
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids(m.Items()))

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "b", Status: types.StatusDownloading, Progress: 0.3}))
	assert.Equal(t, []string{"c", "b", "a"}, ids(m.Items()))
	assert.Equal(t, 3, m.Len())
	assert.InDelta(t, 0.3, m.Items()[1].Progress, 1e-9)
}

func TestMirror_CapacityEvictsOldest(t *testing.T) {
	m, _, st, _ := newTestMirror(t)
	ctx := context.Background()

	for i := 1; i <= 11; i++ {
		require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: strconv.Itoa(i), Status: types.StatusQueued}))
	}
	require.Equal(t, types.MirrorCapacity, m.Len())
	assert.Equal(t, []string{"11", "10", "9", "8", "7", "6", "5", "4", "3", "2"}, ids(m.Items()))
	assert.Len(t, st.last(), types.MirrorCapacity)

	// Evicted ids come back as new entries at the front
	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "1", Status: types.StatusQueued}))
	assert.Equal(t, "1", m.Items()[0].ID)
	assert.Equal(t, "3", m.Items()[types.MirrorCapacity-1].ID)
}

func TestMirror_PersistFailureKeepsMemory(t *testing.T) {
	m, b, st, _ := newTestMirror(t)
	st.err = errors.New("disk full")

	err := m.Upsert(context.Background(), types.DownloadItem{ID: "a1", Status: types.StatusDownloading})
	assert.Error(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, IndicatorActive, b.Current())
}

func TestMirror_RejectsMissingID(t *testing.T) {
	m, _, st, _ := newTestMirror(t)
	assert.Error(t, m.Upsert(context.Background(), types.DownloadItem{Status: types.StatusQueued}))
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, st.saved)
}

func TestMirror_SeededFromStore(t *testing.T) {
	var initial []types.DownloadItem
	for i := 0; i < 15; i++ {
		initial = append(initial, types.DownloadItem{ID: strconv.Itoa(i)})
	}
	initial = append([]types.DownloadItem{{ID: "3"}, {ID: ""}}, initial...)

	m := New(nil, nil, 10, initial)
	assert.Equal(t, []string{"3", "0", "1", "2", "4", "5", "6", "7", "8", "9"}, ids(m.Items()))
}

func TestBadge_ActiveClearsWhenNothingActive(t *testing.T) {
	m, b, _, _ := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "a", Status: types.StatusExtracting}))
	assert.Equal(t, IndicatorActive, b.Current())

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "a", Status: types.StatusFailed}))
	assert.Equal(t, IndicatorConnected, b.Current())
}

func TestBadge_LaterDoneSupersedesEarlierRevert(t *testing.T) {
	m, b, _, clk := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "a", Status: types.StatusCompleted}))
	clk.Advance(2 * time.Second)
	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "b", Status: types.StatusCompleted}))

	clk.Advance(2 * time.Second)
	assert.Equal(t, IndicatorDone, b.Current(), "first revert was replaced")
	clk.Advance(time.Second)
	assert.Equal(t, IndicatorConnected, b.Current())
}

func TestBadge_DoneRevertsToActiveWhileOthersDownload(t *testing.T) {
	m, b, st, clk := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "a1", Status: types.StatusDownloading}))
	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "b1", Status: types.StatusDownloading}))
	require.NoError(t, m.Upsert(ctx, types.DownloadItem{ID: "b1", Status: types.StatusCompleted}))
	assert.Equal(t, IndicatorDone, b.Current())

	clk.Advance(types.BadgeRevertDelay)
	assert.Equal(t, IndicatorActive, b.Current(), "a1 is still downloading")
	assert.Equal(t, []string{"connected", "active", "done", "active"}, st.badges)
}

func TestBadge_ReconnectWithActiveItemsShowsActive(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	st := &memStore{}
	b := NewBadge(clk, clock.Inline, st)
	b.SetConnected(false)
	m := New(st, b, types.MirrorCapacity, []types.DownloadItem{
		{ID: "done", Status: types.StatusCompleted},
		{ID: "live", Status: types.StatusDownloading},
	})
	require.Equal(t, 2, m.Len())
	assert.Equal(t, IndicatorDisconnected, b.Current(), "seeding does not change the indicator")

	b.SetConnected(true)
	assert.Equal(t, IndicatorActive, b.Current())

	require.NoError(t, m.Upsert(context.Background(), types.DownloadItem{ID: "live", Status: types.StatusFailed}))
	assert.Equal(t, IndicatorConnected, b.Current())

	b.SetConnected(false)
	b.SetConnected(true)
	assert.Equal(t, IndicatorConnected, b.Current())
}
