package cmd

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/moderndownloader/bridge/internal/config"
)

var (
	instanceLock   *flock.Flock
	instanceLockMu sync.Mutex
)

// AcquireLock takes the single-instance lock. It returns false when
// another bridge already holds it.
func AcquireLock() (bool, error) {
	instanceLockMu.Lock()
	defer instanceLockMu.Unlock()

	dir := config.GetRuntimeDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	lock := flock.New(filepath.Join(dir, "mdbridge.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if !locked {
		return false, nil
	}
	instanceLock = lock
	return true, nil
}

// ReleaseLock drops the lock taken by AcquireLock.
func ReleaseLock() error {
	instanceLockMu.Lock()
	defer instanceLockMu.Unlock()
	if instanceLock == nil {
		return nil
	}
	err := instanceLock.Unlock()
	instanceLock = nil
	return err
}
