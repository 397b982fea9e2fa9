package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moderndownloader/bridge/internal/config"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read or change persisted bridge state",
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one key, or all keys",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening state: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = st.Close() }()
		ctx := context.Background()

		keys := args
		if len(keys) == 0 {
			keys = storeKeys()
		}
		for _, key := range keys {
			var raw json.RawMessage
			found, err := st.Get(ctx, key, &raw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", key, err)
				os.Exit(1)
			}
			value := "(unset)"
			if found {
				value = string(raw)
			}
			if len(args) == 1 {
				fmt.Println(value)
			} else {
				fmt.Printf("%s = %s\n", key, value)
			}
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a key (serverPort, autoSendCookies, preferredBrowser)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		value, err := parseConfigValue(args[0], args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		st, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening state: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = st.Close() }()
		if err := st.Set(context.Background(), args[0], value); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s = %v\n", args[0], value)
	},
}

var configSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "List settings.json values with their descriptions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initFile, _ := cmd.Flags().GetBool("init")

		settings, err := config.LoadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", config.GetSettingsPath(), err)
			os.Exit(1)
		}
		if initFile {
			if _, err := os.Stat(config.GetSettingsPath()); err == nil {
				fmt.Fprintf(os.Stderr, "%s already exists\n", config.GetSettingsPath())
				os.Exit(1)
			}
			if err := config.SaveSettings(config.DefaultSettings()); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Wrote %s\n", config.GetSettingsPath())
			return
		}
		out, err := formatSettings(settings)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
	},
}

func init() {
	configSettingsCmd.Flags().Bool("init", false, "Write a settings.json with the defaults")
	configCmd.AddCommand(configGetCmd, configSetCmd, configSettingsCmd)
	rootCmd.AddCommand(configCmd)
}

// formatSettings renders settings grouped the way GetSettingsMetadata
// orders them.
func formatSettings(settings *config.Settings) (string, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return "", err
	}
	var byCategory map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &byCategory); err != nil {
		return "", err
	}

	var b strings.Builder
	metadata := config.GetSettingsMetadata()
	for _, category := range config.CategoryOrder() {
		fmt.Fprintf(&b, "[%s]\n", category)
		values := byCategory[strings.ToLower(category)]
		for _, meta := range metadata[category] {
			raw := values[meta.Key]
			value := string(raw)
			if meta.Type == "duration" {
				var d time.Duration
				if err := json.Unmarshal(raw, &d); err == nil {
					value = d.String()
				}
			}
			fmt.Fprintf(&b, "  %-22s %-12s %s\n", meta.Key, value, meta.Description)
		}
	}
	return b.String(), nil
}

func storeKeys() []string {
	keys := []string{types.KeyBadge}
	for k := range store.Defaults() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseConfigValue validates a user-supplied value for a writable key.
// recentDownloads and badge belong to the bridge and are read-only here.
func parseConfigValue(key, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch key {
	case types.KeyServerPort:
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("serverPort must be a port number, got %q", raw)
		}
		return port, nil
	case types.KeyAutoSendCookies:
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("autoSendCookies must be true or false, got %q", raw)
		}
		return enabled, nil
	case types.KeyPreferredBrowser:
		name := strings.ToLower(raw)
		if name != store.BrowserFirefox && name != store.BrowserChrome {
			return nil, fmt.Errorf("preferredBrowser must be %s or %s", store.BrowserFirefox, store.BrowserChrome)
		}
		return name, nil
	case types.KeyRecentDownloads, types.KeyBadge:
		return nil, fmt.Errorf("%s is maintained by the bridge", key)
	}
	return nil, fmt.Errorf("unknown key %q", key)
}
