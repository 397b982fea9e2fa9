// Package tui is the terminal status surface: connection state, the
// badge and the mirrored recent downloads of a running bridge.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/moderndownloader/bridge/internal/core"
	"github.com/moderndownloader/bridge/internal/engine/types"
)

// CookieToggle persists the cookie forwarding preference.
type CookieToggle func(enabled bool) error

type statusMsg struct {
	status *core.Status
	err    error
}

type recentMsg struct {
	items []types.DownloadItem
	err   error
}

type cookiesToggledMsg struct {
	enabled bool
	err     error
}

type tickMsg time.Time

type streamClosedMsg struct{}

// RootModel is the bubbletea model for `mdbridge status --watch`.
type RootModel struct {
	service core.BridgeService
	toggle  CookieToggle
	stream  <-chan any
	version string

	status   *core.Status
	items    []types.DownloadItem
	autoSend bool
	err      error

	width  int
	height int
	cursor int

	bar  progress.Model
	help help.Model
	keys KeyMap
}

// InitialRootModel builds the model. stream may be nil, in which case the
// screen relies on polling alone.
func InitialRootModel(service core.BridgeService, stream <-chan any, toggle CookieToggle, autoSend bool, version string) RootModel {
	return RootModel{
		service:  service,
		toggle:   toggle,
		stream:   stream,
		version:  version,
		autoSend: autoSend,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:     help.New(),
		keys:     Keys,
	}
}

func (m RootModel) Init() tea.Cmd {
	return tea.Batch(
		fetchStatus(m.service),
		fetchRecent(m.service),
		listenForActivity(m.stream),
		tick(),
	)
}

func listenForActivity(sub <-chan any) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-sub
		if !ok {
			return streamClosedMsg{}
		}
		return msg
	}
}

func fetchStatus(svc core.BridgeService) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
		defer cancel()
		st, err := svc.Status(ctx)
		return statusMsg{status: st, err: err}
	}
}

func fetchRecent(svc core.BridgeService) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
		defer cancel()
		items, err := svc.Recent(ctx)
		return recentMsg{items: items, err: err}
	}
}

func toggleCookies(toggle CookieToggle, enabled bool) tea.Cmd {
	return func() tea.Msg {
		return cookiesToggledMsg{enabled: enabled, err: toggle(enabled)}
	}
}

func tick() tea.Cmd {
	return tea.Tick(StatusPollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
