package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	debugFile *os.File
	debugOnce sync.Once
	debugMu   sync.Mutex
	logsDir   string
)

// ConfigureDebug sets the directory that receives debug logs. Must be
// called before the first Debug call to take effect.
func ConfigureDebug(dir string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	logsDir = dir
}

// Debug writes a message to the debug log file
func Debug(format string, args ...any) {
	// add timestamp to each debug message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	debugOnce.Do(func() {
		debugMu.Lock()
		dir := logsDir
		debugMu.Unlock()

		name := "debug.log"
		if dir != "" {
			_ = os.MkdirAll(dir, 0o755)
			name = filepath.Join(dir, fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405")))
		}
		debugFile, _ = os.Create(name)
	})
	if debugFile != nil {
		debugMu.Lock()
		fmt.Fprintf(debugFile, "[%s] %s\n", timestamp, fmt.Sprintf(format, args...))
		_ = debugFile.Sync() // Flush immediately
		debugMu.Unlock()
	}
}

// CleanupLogs keeps the newest retention debug logs in the configured
// directory and removes the rest.
func CleanupLogs(retention int) {
	debugMu.Lock()
	dir := logsDir
	debugMu.Unlock()
	if dir == "" || retention < 0 {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var logs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "debug-") || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		logs = append(logs, e.Name())
	}
	if len(logs) <= retention {
		return
	}

	// Timestamped names sort chronologically
	sort.Strings(logs)
	for _, name := range logs[:len(logs)-retention] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}
