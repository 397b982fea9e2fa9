package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Settings holds all user-configurable bridge settings organized by category.
type Settings struct {
	General GeneralSettings `json:"general"`
	Bridge  BridgeSettings  `json:"bridge"`
	Browser BrowserSettings `json:"browser"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	LogRetentionCount int `json:"log_retention_count"`
	Theme             int `json:"theme"`
}

const (
	ThemeAdaptive = 0
	ThemeLight    = 1
	ThemeDark     = 2
)

// BridgeSettings controls the local intake and the requests sent to the desktop app.
type BridgeSettings struct {
	IntakePort       int    `json:"intake_port"`
	UserAgent        string `json:"user_agent"`
	ActivationScheme string `json:"activation_scheme"`
}

// BrowserSettings points the bridge at the browser profile it mirrors.
type BrowserSettings struct {
	FirefoxProfile     string        `json:"firefox_profile"`
	CookiePollInterval time.Duration `json:"cookie_poll_interval"`
	ScanInterval       time.Duration `json:"scan_interval"`
}

// SettingMeta provides metadata for a single setting (for UI rendering).
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string // Help text
	Type        string // "string", "int", "bool", "duration"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "log_retention_count", Label: "Log Retention Count", Description: "Number of recent log files to keep.", Type: "int"},
			{Key: "theme", Label: "App Theme", Description: "Status UI theme (System, Light, Dark).", Type: "int"},
		},
		"Bridge": {
			{Key: "intake_port", Label: "Intake Port", Description: "Loopback port page-side producers post download intents to.", Type: "int"},
			{Key: "user_agent", Label: "User Agent", Description: "User-Agent forwarded with download requests. Leave empty for default.", Type: "string"},
			{Key: "activation_scheme", Label: "Activation Scheme", Description: "URI scheme registered by the desktop app (scheme://open?url=...).", Type: "string"},
		},
		"Browser": {
			{Key: "firefox_profile", Label: "Firefox Profile", Description: "Profile directory holding cookies.sqlite. Leave empty to auto-detect.", Type: "string"},
			{Key: "cookie_poll_interval", Label: "Cookie Poll Interval", Description: "How often the cookie database is checked for changes (e.g., 1s).", Type: "duration"},
			{Key: "scan_interval", Label: "Scan Interval", Description: "Periodic page rescan interval for the scanner (e.g., 2s).", Type: "duration"},
		},
	}
}

// CategoryOrder returns the order of categories for UI tabs.
func CategoryOrder() []string {
	return []string{"General", "Bridge", "Browser"}
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		General: GeneralSettings{
			LogRetentionCount: 5,
			Theme:             ThemeAdaptive,
		},
		Bridge: BridgeSettings{
			IntakePort:       6970,
			UserAgent:        "", // Empty means use default UA
			ActivationScheme: "moderndownloader",
		},
		Browser: BrowserSettings{
			FirefoxProfile:     "",
			CookiePollInterval: time.Second,
			ScanInterval:       2 * time.Second,
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
// The file may carry // and /* */ comments.
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnvOverrides(DefaultSettings()), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(jsonc.ToJSON(data), settings); err != nil {
		return nil, err
	}

	return applyEnvOverrides(settings), nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// LoadEnv reads an optional .env file from the app directory. Variables
// already present in the environment win.
func LoadEnv() error {
	path := filepath.Join(GetAppDir(), ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

func applyEnvOverrides(s *Settings) *Settings {
	if v := strings.TrimSpace(os.Getenv("MDBRIDGE_INTAKE_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			s.Bridge.IntakePort = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("MDBRIDGE_FIREFOX_PROFILE")); v != "" {
		s.Browser.FirefoxProfile = v
	}
	if v := strings.TrimSpace(os.Getenv("MDBRIDGE_USER_AGENT")); v != "" {
		s.Bridge.UserAgent = v
	}
	return s
}
