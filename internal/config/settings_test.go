package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "mdbridge-config-test-*")
	if err == nil {
		_ = os.Setenv("XDG_CONFIG_HOME", tmpDir)
		_ = os.Setenv("APPDATA", tmpDir)
	}

	code := m.Run()

	if err == nil {
		_ = os.RemoveAll(tmpDir)
	}
	os.Exit(code)
}

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	if settings == nil {
		t.Fatal("DefaultSettings returned nil")
	}

	t.Run("GeneralSettings", func(t *testing.T) {
		if settings.General.LogRetentionCount <= 0 {
			t.Errorf("LogRetentionCount should be positive, got: %d", settings.General.LogRetentionCount)
		}
		if settings.General.Theme != ThemeAdaptive {
			t.Errorf("Theme should default to adaptive, got: %d", settings.General.Theme)
		}
	})

	t.Run("BridgeSettings", func(t *testing.T) {
		if settings.Bridge.IntakePort <= 0 || settings.Bridge.IntakePort > 65535 {
			t.Errorf("IntakePort out of range: %d", settings.Bridge.IntakePort)
		}
		if settings.Bridge.IntakePort == 6969 {
			t.Error("IntakePort must not collide with the desktop app's default port")
		}
		if settings.Bridge.ActivationScheme == "" {
			t.Error("ActivationScheme should not be empty")
		}
	})

	t.Run("BrowserSettings", func(t *testing.T) {
		if settings.Browser.CookiePollInterval <= 0 {
			t.Errorf("CookiePollInterval should be positive, got: %v", settings.Browser.CookiePollInterval)
		}
		if settings.Browser.ScanInterval != 2*time.Second {
			t.Errorf("ScanInterval should default to 2s, got: %v", settings.Browser.ScanInterval)
		}
	})
}

func TestDefaultSettings_Consistency(t *testing.T) {
	s1 := DefaultSettings()
	s2 := DefaultSettings()

	if s1 == s2 {
		t.Error("DefaultSettings should return new instance each time")
	}
	if s1.Bridge.IntakePort != s2.Bridge.IntakePort {
		t.Error("Default settings should be consistent")
	}
}

func TestGetSettingsPath(t *testing.T) {
	path := GetSettingsPath()

	if !strings.HasPrefix(path, GetAppDir()) {
		t.Errorf("Settings path should be under app dir. Path: %s, AppDir: %s", path, GetAppDir())
	}
	if !strings.HasSuffix(path, "settings.json") {
		t.Errorf("Settings path should end with 'settings.json', got: %s", path)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("Settings path should be absolute, got: %s", path)
	}
}

func TestDirsAreUnderAppDir(t *testing.T) {
	app := GetAppDir()
	for name, dir := range map[string]string{
		"state":   GetStateDir(),
		"logs":    GetLogsDir(),
		"runtime": GetRuntimeDir(),
		"store":   GetStorePath(),
	} {
		if !strings.HasPrefix(dir, app) {
			t.Errorf("%s dir %q is not under %q", name, dir, app)
		}
	}
}

func TestLoadSettings_PartialJSON(t *testing.T) {
	partial := `{
		"bridge": {
			"user_agent": "Custom/1.0"
		}
	}`

	settings := DefaultSettings()
	if err := json.Unmarshal([]byte(partial), settings); err != nil {
		t.Fatalf("Failed to unmarshal partial JSON: %v", err)
	}

	if settings.Bridge.UserAgent != "Custom/1.0" {
		t.Errorf("Custom field not set: %s", settings.Bridge.UserAgent)
	}
	if settings.Bridge.IntakePort != 6970 {
		t.Error("Default values should be preserved for missing fields")
	}
}

func TestLoadSettings_AcceptsComments(t *testing.T) {
	content := `{
		// forwarded with every DOWNLOAD request
		"bridge": {
			"user_agent": "Commented/2.0", /* trailing */
		},
	}`
	if err := os.MkdirAll(GetAppDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(GetSettingsPath(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = SaveSettings(DefaultSettings()) }()

	loaded, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if loaded.Bridge.UserAgent != "Commented/2.0" {
		t.Errorf("UserAgent mismatch: got %q", loaded.Bridge.UserAgent)
	}
}

func TestLoadSettings_CorruptedJSON(t *testing.T) {
	if err := os.MkdirAll(GetAppDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(GetSettingsPath(), []byte("{invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = SaveSettings(DefaultSettings()) }()

	if _, err := LoadSettings(); err == nil {
		t.Error("Expected error when loading invalid JSON")
	}
}

func TestSaveAndLoadSettings_RoundTrip(t *testing.T) {
	original := DefaultSettings()
	original.General.LogRetentionCount = 9
	original.Bridge.IntakePort = 7100
	original.Bridge.UserAgent = "RoundTripTest/1.0"
	original.Browser.CookiePollInterval = 3 * time.Second

	if err := SaveSettings(original); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	defer func() { _ = SaveSettings(DefaultSettings()) }()

	if _, err := os.Stat(GetSettingsPath()); os.IsNotExist(err) {
		t.Fatal("Settings file was not created by SaveSettings")
	}

	loaded, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}

	if loaded.General.LogRetentionCount != 9 {
		t.Errorf("LogRetentionCount mismatch: got %d", loaded.General.LogRetentionCount)
	}
	if loaded.Bridge.IntakePort != 7100 {
		t.Errorf("IntakePort mismatch: got %d", loaded.Bridge.IntakePort)
	}
	if loaded.Bridge.UserAgent != "RoundTripTest/1.0" {
		t.Errorf("UserAgent mismatch: got %q", loaded.Bridge.UserAgent)
	}
	if loaded.Browser.CookiePollInterval != 3*time.Second {
		t.Errorf("CookiePollInterval mismatch: got %v", loaded.Browser.CookiePollInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MDBRIDGE_INTAKE_PORT", "7200")
	t.Setenv("MDBRIDGE_FIREFOX_PROFILE", "/tmp/profile")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if settings.Bridge.IntakePort != 7200 {
		t.Errorf("IntakePort override not applied: %d", settings.Bridge.IntakePort)
	}
	if settings.Browser.FirefoxProfile != "/tmp/profile" {
		t.Errorf("FirefoxProfile override not applied: %q", settings.Browser.FirefoxProfile)
	}
}

func TestEnvOverrides_InvalidPortIgnored(t *testing.T) {
	t.Setenv("MDBRIDGE_INTAKE_PORT", "not-a-port")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if settings.Bridge.IntakePort != DefaultSettings().Bridge.IntakePort {
		t.Errorf("invalid override should be ignored, got %d", settings.Bridge.IntakePort)
	}
}

func TestLoadEnv_ReadsDotEnv(t *testing.T) {
	if err := os.MkdirAll(GetAppDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(GetAppDir(), ".env")
	if err := os.WriteFile(envPath, []byte("MDBRIDGE_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(envPath)
		_ = os.Unsetenv("MDBRIDGE_TEST_DOTENV")
	}()

	if err := LoadEnv(); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if got := os.Getenv("MDBRIDGE_TEST_DOTENV"); got != "loaded" {
		t.Errorf("expected .env value to be loaded, got %q", got)
	}
}

func TestGetSettingsMetadata(t *testing.T) {
	metadata := GetSettingsMetadata()

	for _, cat := range CategoryOrder() {
		if _, ok := metadata[cat]; !ok {
			t.Errorf("Missing metadata for category: %s", cat)
		}
	}

	validTypes := map[string]bool{"string": true, "int": true, "bool": true, "duration": true}
	for category, settings := range metadata {
		for i, setting := range settings {
			if setting.Key == "" {
				t.Errorf("Category %s, index %d: Key is empty", category, i)
			}
			if setting.Label == "" || setting.Description == "" {
				t.Errorf("Category %s, key %s: Label/Description empty", category, setting.Key)
			}
			if !validTypes[setting.Type] {
				t.Errorf("Category %s, key %s: Invalid type %q", category, setting.Key, setting.Type)
			}
		}
	}
}
