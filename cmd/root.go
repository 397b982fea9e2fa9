package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/moderndownloader/bridge/internal/config"
	"github.com/moderndownloader/bridge/internal/core"
	"github.com/moderndownloader/bridge/internal/engine/events"
	"github.com/moderndownloader/bridge/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "mdbridge",
	Short:   "Bridge between your browser session and the desktop downloader",
	Long:    `mdbridge keeps a connection to the desktop download app, forwards download intents with your browser cookies, and mirrors download progress.`,
	Version: Version,
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runBridge(cmd)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge in the foreground (default)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runBridge(cmd)
	},
}

func runBridge(cmd *cobra.Command) {
	initializeGlobalState()

	// Attempt to acquire lock
	isMaster, err := AcquireLock()
	if err != nil {
		fmt.Printf("Error acquiring lock: %v\n", err)
		os.Exit(1)
	}
	if !isMaster {
		fmt.Fprintln(os.Stderr, "Error: mdbridge is already running.")
		fmt.Fprintln(os.Stderr, "Use 'mdbridge send <url>' to hand a download to the running bridge.")
		os.Exit(1)
	}
	defer func() {
		if err := ReleaseLock(); err != nil {
			utils.Debug("Error releasing lock: %v", err)
		}
	}()

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: settings unreadable, using defaults: %v\n", err)
		settings = config.DefaultSettings()
	}
	portFlag, _ := cmd.Flags().GetInt("port")
	demo, _ := cmd.Flags().GetBool("demo")

	st, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := openCookieSource(ctx, st, settings, demo)
	registry := prometheus.NewRegistry()

	bridge, err := core.NewBridge(ctx, core.Options{
		Store:         st,
		Cookies:       source.Store,
		CookieWatcher: source.Watcher,
		Page:          source.Page,
		UserAgent:     settings.Bridge.UserAgent,
		Registry:      registry,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := bridge.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = bridge.Shutdown() }()

	var port int
	var listener net.Listener
	if portFlag > 0 {
		// Strict port mode
		port = portFlag
		listener, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not bind to port %d: %v\n", port, err)
			os.Exit(1)
		}
	} else {
		// Auto-discovery mode
		port, listener = findAvailablePort(settings.Bridge.IntakePort)
		if listener == nil {
			fmt.Fprintf(os.Stderr, "Error: could not find available port\n")
			os.Exit(1)
		}
	}

	// Save port for producers AND CLI discovery
	saveActivePort(port)
	defer removeActivePort()

	go func() {
		err := core.ServeIntake(ctx, listener, core.IntakeConfig{
			Service:  bridge,
			Token:    ensureAuthToken(),
			Gatherer: registry,
			Port:     port,
		})
		if err != nil {
			utils.Debug("Intake stopped: %v", err)
		}
	}()

	fmt.Printf("mdbridge %s running (cookies: %s).\n", Version, source.Name)
	fmt.Printf("Intake listening on http://127.0.0.1:%d\n", port)
	fmt.Println("Press Ctrl+C to exit.")

	StartHeadlessConsumer(ctx, bridge)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
}

// StartHeadlessConsumer prints badge changes and download transitions.
func StartHeadlessConsumer(ctx context.Context, svc core.BridgeService) {
	stream, _, err := svc.StreamEvents(ctx)
	if err != nil {
		utils.Debug("Headless consumer: %v", err)
		return
	}
	go func() {
		seen := make(map[string]string)
		for msg := range stream {
			for _, line := range describeEvent(msg, seen) {
				fmt.Println(line)
			}
		}
	}()
}

// describeEvent renders one stream event as console lines. seen tracks the
// last printed status per download so only transitions are reported.
func describeEvent(msg any, seen map[string]string) []string {
	switch m := msg.(type) {
	case events.BadgeChangedMsg:
		if m.Badge == "connected" || m.Badge == "disconnected" {
			return []string{fmt.Sprintf("Desktop app: %s", m.Badge)}
		}
	case events.RecentChangedMsg:
		var lines []string
		for _, item := range m.Items {
			status := item.Status.String()
			if seen[item.ID] == status {
				continue
			}
			seen[item.ID] = status
			lines = append(lines, fmt.Sprintf("%s: %s [%s]", status, item.DisplayTitle(), shortID(item.ID)))
		}
		return lines
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// findAvailablePort tries ports starting from 'start' until one is available
func findAvailablePort(start int) (int, net.Listener) {
	for port := start; port < start+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

// saveActivePort writes the active intake port for CLI discovery
func saveActivePort(port int) {
	portFile := filepath.Join(config.GetRuntimeDir(), "port")
	if err := os.MkdirAll(filepath.Dir(portFile), 0o755); err != nil {
		utils.Debug("Error creating runtime dir: %v", err)
	}
	if err := os.WriteFile(portFile, []byte(fmt.Sprintf("%d", port)), 0o644); err != nil {
		utils.Debug("Error writing port file: %v", err)
	}
	utils.Debug("Intake listening on port %d", port)
}

// removeActivePort cleans up the port file on exit
func removeActivePort() {
	portFile := filepath.Join(config.GetRuntimeDir(), "port")
	if err := os.Remove(portFile); err != nil && !os.IsNotExist(err) {
		utils.Debug("Error removing port file: %v", err)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().IntP("port", "p", 0, "Intake port (default: settings intake_port or first available after it)")
		c.Flags().Bool("demo", false, "Use an in-memory cookie jar instead of the browser profile")
	}
	rootCmd.PersistentFlags().StringVar(&globalHost, "host", "", "Intake of a bridge to talk to (default: local instance)")
	rootCmd.PersistentFlags().StringVar(&globalToken, "token", "", "Bearer token for --host (or set MDBRIDGE_TOKEN)")
	rootCmd.AddCommand(runCmd)
	rootCmd.SetVersionTemplate("mdbridge version {{.Version}}\n")
}

// initializeGlobalState sets up directories and logging
func initializeGlobalState() {
	_ = config.LoadEnv()

	for _, dir := range []string{config.GetStateDir(), config.GetLogsDir(), config.GetRuntimeDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot create %s: %v\n", dir, err)
		}
	}

	// Config logging
	utils.ConfigureDebug(config.GetLogsDir())

	// Clean up old logs
	retention := config.DefaultSettings().General.LogRetentionCount
	if settings, err := config.LoadSettings(); err == nil {
		retention = settings.General.LogRetentionCount
	}
	utils.CleanupLogs(retention)
}
