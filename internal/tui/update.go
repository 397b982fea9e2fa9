package tui

import (
	"encoding/json"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/moderndownloader/bridge/internal/engine/events"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/utils"
)

// Update handles messages and updates the model
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.bar.Width = clampBarWidth(msg.Width - ProgressBarWidthOffset*2)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Cookies):
			if m.toggle != nil {
				return m, toggleCookies(m.toggle, !m.autoSend)
			}
		case key.Matches(msg, m.keys.Refresh):
			return m, tea.Batch(fetchStatus(m.service), fetchRecent(m.service))
		}
		return m, nil

	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
		}
		return m, nil

	case recentMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.setItems(msg.items)
		return m, nil

	case cookiesToggledMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.autoSend = msg.enabled
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchStatus(m.service), tick())

	case events.BadgeChangedMsg:
		if m.status != nil {
			m.status.Badge = msg.Badge
		}
		return m, listenForActivity(m.stream)

	case events.RecentChangedMsg:
		m.setItems(msg.Items)
		return m, listenForActivity(m.stream)

	case events.PreferenceChangedMsg:
		if msg.Key == types.KeyAutoSendCookies {
			var enabled bool
			if err := json.Unmarshal(msg.Value, &enabled); err == nil {
				m.autoSend = enabled
			}
		}
		return m, listenForActivity(m.stream)

	case streamClosedMsg:
		utils.Debug("TUI: event stream closed")
		m.stream = nil
		return m, nil
	}

	return m, nil
}

func (m *RootModel) setItems(items []types.DownloadItem) {
	m.items = items
	if m.cursor >= len(items) {
		m.cursor = max(len(items)-1, 0)
	}
}

func clampBarWidth(w int) int {
	return min(max(w, MinProgressBarWidth), MaxProgressBarWidth)
}
