package cookies

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNoProfile is returned when no Firefox profile can be located.
var ErrNoProfile = errors.New("no firefox profile found")

// FirefoxRoots lists the directories that may hold profiles.ini on this OS.
func FirefoxRoots() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		return []string{filepath.Join(os.Getenv("APPDATA"), "Mozilla", "Firefox")}
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "Firefox")}
	default:
		return []string{
			filepath.Join(home, ".mozilla", "firefox"),
			filepath.Join(home, "snap", "firefox", "common", ".mozilla", "firefox"),
			filepath.Join(home, ".var", "app", "org.mozilla.firefox", ".mozilla", "firefox"),
		}
	}
}

// FindFirefoxProfile returns the default profile directory under the
// first root that has a usable profiles.ini.
func FindFirefoxProfile(roots []string) (string, error) {
	for _, root := range roots {
		dir, err := profileFromIni(root)
		if err == nil {
			return dir, nil
		}
	}
	return "", ErrNoProfile
}

type iniSection struct {
	name   string
	values map[string]string
}

func profileFromIni(root string) (string, error) {
	f, err := os.Open(filepath.Join(root, "profiles.ini"))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var sections []*iniSection
	var cur *iniSection
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			cur = &iniSection{name: line[1 : len(line)-1], values: map[string]string{}}
			sections = append(sections, cur)
			continue
		}
		if cur == nil {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			cur.values[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read profiles.ini: %w", err)
	}

	// Install sections name the profile the installed build actually uses
	for _, s := range sections {
		if strings.HasPrefix(s.name, "Install") && s.values["Default"] != "" {
			return resolveProfile(root, s.values["Default"], "1"), nil
		}
	}
	var fallback string
	for _, s := range sections {
		if !strings.HasPrefix(s.name, "Profile") || s.values["Path"] == "" {
			continue
		}
		dir := resolveProfile(root, s.values["Path"], s.values["IsRelative"])
		if s.values["Default"] == "1" {
			return dir, nil
		}
		if fallback == "" {
			fallback = dir
		}
	}
	if fallback == "" {
		return "", ErrNoProfile
	}
	return fallback, nil
}

func resolveProfile(root, path, isRelative string) string {
	if isRelative == "0" || filepath.IsAbs(path) {
		return filepath.FromSlash(path)
	}
	return filepath.Join(root, filepath.FromSlash(path))
}
