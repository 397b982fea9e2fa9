package tui

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moderndownloader/bridge/internal/core"
	"github.com/moderndownloader/bridge/internal/engine/events"
	"github.com/moderndownloader/bridge/internal/engine/types"
)

type fakeService struct {
	status *core.Status
	items  []types.DownloadItem
}

func (f *fakeService) SendIntent(context.Context, types.DownloadIntent) (string, error) {
	return "", errors.New("unused")
}
func (f *fakeService) Recent(context.Context) ([]types.DownloadItem, error) { return f.items, nil }
func (f *fakeService) Status(context.Context) (*core.Status, error)        { return f.status, nil }
func (f *fakeService) StreamEvents(context.Context) (<-chan any, func(), error) {
	return nil, func() {}, nil
}
func (f *fakeService) Shutdown() error { return nil }

func sized(m RootModel) RootModel {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(RootModel)
}

func update(t *testing.T, m RootModel, msg tea.Msg) (RootModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	rm, ok := next.(RootModel)
	require.True(t, ok)
	return rm, cmd
}

func sampleItems() []types.DownloadItem {
	return []types.DownloadItem{
		{ID: "a", Title: "Concert", Status: types.StatusDownloading, Progress: 0.5, TotalSize: "120 MB", Speed: "2 MB/s"},
		{ID: "b", Title: "Podcast", Status: types.StatusCompleted, Progress: 1},
	}
}

func TestUpdate_StatusAndRecent(t *testing.T) {
	svc := &fakeService{
		status: &core.Status{State: "connected", Badge: "active", Endpoint: "ws://localhost:6969/", ConnectedSince: time.Now().Add(-time.Minute)},
		items:  sampleItems(),
	}
	m := sized(InitialRootModel(svc, nil, nil, true, "dev"))

	m, _ = update(t, m, fetchStatus(svc)())
	m, _ = update(t, m, fetchRecent(svc)())

	require.NotNil(t, m.status)
	assert.Len(t, m.items, 2)

	view := m.View()
	assert.Contains(t, view, "active")
	assert.Contains(t, view, "Concert")
	assert.Contains(t, view, "Downloading")
	assert.Contains(t, view, "50%")
	assert.Contains(t, view, "Cookie forwarding: on")
}

func TestUpdate_StreamEvents(t *testing.T) {
	stream := make(chan any, 1)
	m := sized(InitialRootModel(&fakeService{}, stream, nil, true, ""))
	m.status = &core.Status{Badge: "active"}

	m, cmd := update(t, m, events.BadgeChangedMsg{Badge: "done"})
	assert.Equal(t, "done", m.status.Badge)
	require.NotNil(t, cmd, "must keep listening")

	m, _ = update(t, m, events.RecentChangedMsg{Items: sampleItems()[:1]})
	assert.Len(t, m.items, 1)

	m, _ = update(t, m, events.PreferenceChangedMsg{Key: types.KeyAutoSendCookies, Value: json.RawMessage("false")})
	assert.False(t, m.autoSend)

	close(stream)
	msg := listenForActivity(stream)()
	m, cmd = update(t, m, msg)
	assert.Nil(t, m.stream)
	assert.Nil(t, cmd)
}

func TestUpdate_CursorClampsToItems(t *testing.T) {
	m := sized(InitialRootModel(&fakeService{}, nil, nil, false, ""))
	m, _ = update(t, m, recentMsg{items: sampleItems()})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)

	m, _ = update(t, m, events.RecentChangedMsg{Items: sampleItems()[:1]})
	assert.Equal(t, 0, m.cursor)
}

func TestUpdate_ToggleCookies(t *testing.T) {
	var got []bool
	toggle := func(enabled bool) error {
		got = append(got, enabled)
		return nil
	}
	m := sized(InitialRootModel(&fakeService{}, nil, toggle, true, ""))

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, []bool{false}, got)
	assert.False(t, m.autoSend)
	assert.Contains(t, m.View(), "Cookie forwarding: off")
}

func TestUpdate_ToggleFailureShown(t *testing.T) {
	toggle := func(bool) error { return errors.New("store locked") }
	m := sized(InitialRootModel(&fakeService{}, nil, toggle, true, ""))

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m, _ = update(t, m, cmd())
	assert.True(t, m.autoSend)
	assert.Contains(t, m.View(), "store locked")
}

func TestUpdate_Quit(t *testing.T) {
	m := sized(InitialRootModel(&fakeService{}, nil, nil, false, ""))
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	out := truncate("a very long download title", 10)
	assert.LessOrEqual(t, len([]rune(out)), 10)
	assert.True(t, []rune(out)[len([]rune(out))-1] == '…')
}
