package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/moderndownloader/bridge/internal/engine/types"
)

func (m RootModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sections := []string{m.renderHeader()}
	if len(m.items) == 0 {
		sections = append(sections, StatsStyle.Render("No downloads yet. Intents sent to the desktop app show up here."))
	}
	for i, item := range m.items {
		sections = append(sections, m.renderItem(item, i == m.cursor))
	}
	sections = append(sections, m.renderFooter())

	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m RootModel) renderHeader() string {
	title := "mdbridge"
	if m.version != "" {
		title += " " + m.version
	}

	badge, state, detail := "unknown", "unknown", ""
	if st := m.status; st != nil {
		badge, state = st.Badge, st.State
		switch {
		case st.State == "connected" && !st.ConnectedSince.IsZero():
			detail = fmt.Sprintf("%s, since %s", st.Endpoint, humanize.Time(st.ConnectedSince))
		case st.ReconnectPending:
			detail = st.Endpoint + ", retrying"
		default:
			detail = st.Endpoint
		}
	}

	pill := BadgeStyle.Foreground(badgeColor(badge)).Render("● " + badge)
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		HeaderStyle.Render(title),
		pill,
	)
	stats := StatsStyle.Render(fmt.Sprintf("Desktop app: %s  %s", state, detail))
	return lipgloss.JoinVertical(lipgloss.Left, header, stats)
}

func (m RootModel) renderItem(item types.DownloadItem, selected bool) string {
	style := CardStyle
	if selected {
		style = SelectedCardStyle
	}
	width := max(m.width-HeaderWidthOffset*2, MinTitleWidth)

	title := truncate(item.DisplayTitle(), width-HeaderWidthOffset*2)
	lines := []string{CardTitleStyle.Render(title)}

	stats := []string{statusStyle(item.Status).Render(item.Status.String())}
	if item.Status.ShowsProgress() {
		stats = append(stats, fmt.Sprintf("%.0f%%", item.Progress*100))
	}
	if item.TotalSize != "" {
		stats = append(stats, item.TotalSize)
	}
	if item.Speed != "" && item.Status == types.StatusDownloading {
		stats = append(stats, item.Speed)
	}
	lines = append(lines, CardStatsStyle.Render(strings.Join(stats, " • ")))

	if item.Status.ShowsProgress() {
		lines = append(lines, m.bar.ViewAs(item.Progress))
	}
	return style.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m RootModel) renderFooter() string {
	cookies := "off"
	if m.autoSend {
		cookies = "on"
	}
	line := StatusBarStyle.Render(fmt.Sprintf("Cookie forwarding: %s  •  tracking %d", cookies, len(m.items)))
	parts := []string{line}
	if m.err != nil {
		parts = append(parts, ErrorStyle.Render("Error: "+m.err.Error()))
	}
	parts = append(parts, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func statusStyle(s types.Status) lipgloss.Style {
	switch s {
	case types.StatusCompleted:
		return lipgloss.NewStyle().Foreground(ColorSuccess)
	case types.StatusFailed, types.StatusCanceled:
		return lipgloss.NewStyle().Foreground(ColorError)
	case types.StatusPaused, types.StatusDuplicate:
		return lipgloss.NewStyle().Foreground(ColorWarning)
	}
	return lipgloss.NewStyle().Foreground(ColorSecondary)
}

func truncate(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
