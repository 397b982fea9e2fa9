package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/moderndownloader/bridge/internal/config"
	"github.com/moderndownloader/bridge/internal/core"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connection state and recent downloads",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		watch, _ := cmd.Flags().GetBool("watch")

		svc, err := connectService()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = svc.Shutdown() }()

		if watch {
			runStatusTUI(svc)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := svc.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to reach bridge: %v\n", err)
			os.Exit(1)
		}
		items, err := svc.Recent(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list downloads: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(formatStatus(st, items, time.Now()))
	},
}

func init() {
	statusCmd.Flags().BoolP("watch", "w", false, "Open the live status screen")
	rootCmd.AddCommand(statusCmd)
}

func formatStatus(st *core.Status, items []types.DownloadItem, now time.Time) string {
	out := fmt.Sprintf("Desktop app: %s (%s)\n", st.State, st.Endpoint)
	if !st.ConnectedSince.IsZero() && st.State == "connected" {
		out += fmt.Sprintf("Connected:   %s\n", humanize.RelTime(st.ConnectedSince, now, "ago", "from now"))
	}
	if st.ReconnectPending {
		out += "Reconnect:   pending\n"
	}
	out += fmt.Sprintf("Badge:       %s\n", st.Badge)
	if len(items) == 0 {
		return out + "No recent downloads.\n"
	}
	out += "\n"
	for _, item := range items {
		line := fmt.Sprintf("%-11s %s", item.Status, item.DisplayTitle())
		if item.Status.ShowsProgress() {
			line += fmt.Sprintf(" %.0f%%", item.Progress*100)
		}
		if item.TotalSize != "" {
			line += " " + item.TotalSize
		}
		out += line + "\n"
	}
	return out
}

func runStatusTUI(svc *core.RemoteBridgeService) {
	settings, err := config.LoadSettings()
	if err != nil {
		settings = config.DefaultSettings()
	}
	tui.ApplyTheme(settings.General.Theme)

	stream, cleanup, err := svc.StreamEvents(context.Background())
	if err != nil {
		fmt.Printf("Failed to start event stream: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// The preference lives in the local store; a remote bridge is read-only
	autoSend := true
	var toggle tui.CookieToggle
	if resolveHostTarget() == "" {
		if st, err := openStore(); err == nil {
			defer func() { _ = st.Close() }()
			if enabled, err := st.AutoSendCookies(context.Background()); err == nil {
				autoSend = enabled
			}
			toggle = func(enabled bool) error {
				return st.Set(context.Background(), types.KeyAutoSendCookies, enabled)
			}
		}
	}

	m := tui.InitialRootModel(svc, stream, toggle, autoSend, Version)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
