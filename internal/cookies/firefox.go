package cookies

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "modernc.org/sqlite"

	"github.com/moderndownloader/bridge/internal/clock"
	"github.com/moderndownloader/bridge/internal/utils"
)

const firefoxCookieDB = "cookies.sqlite"

// Firefox reads cookies from a Firefox profile's cookies.sqlite. Firefox
// keeps the database locked while running, so every read works on a
// private copy of the database and its WAL.
type Firefox struct {
	ProfileDir   string
	Clock        clock.Clock
	PollInterval time.Duration
}

// NewFirefox returns a reader for the given profile directory.
func NewFirefox(profileDir string, c clock.Clock, poll time.Duration) *Firefox {
	if c == nil {
		c = clock.Real()
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Firefox{ProfileDir: profileDir, Clock: c, PollInterval: poll}
}

type firefoxCookie struct {
	host     string
	path     string
	name     string
	value    string
	expiry   int64
	secure   bool
	httpOnly bool
}

func (c firefoxCookie) id() string {
	return c.host + "\x00" + c.path + "\x00" + c.name
}

func (c firefoxCookie) expires() time.Time {
	if c.expiry <= 0 {
		return time.Time{}
	}
	// Newer profiles store milliseconds
	if c.expiry > 1e12 {
		return time.UnixMilli(c.expiry)
	}
	return time.Unix(c.expiry, 0)
}

// Cookies returns the unexpired cookies that domain-match domain, in
// creation order.
func (f *Firefox) Cookies(ctx context.Context, domain string) ([]*http.Cookie, error) {
	return f.collect(ctx, domain, DomainMatch)
}

// SiteCookies also returns cookies kept for subdomains of domain.
func (f *Firefox) SiteCookies(ctx context.Context, domain string) ([]*http.Cookie, error) {
	return f.collect(ctx, domain, SiteMatch)
}

func (f *Firefox) collect(ctx context.Context, domain string, match func(cookieDomain, domain string) bool) ([]*http.Cookie, error) {
	all, err := f.readAll(ctx)
	if err != nil {
		return nil, err
	}
	now := f.Clock.Now()
	var out []*http.Cookie
	for _, c := range all {
		if !match(c.host, domain) {
			continue
		}
		exp := c.expires()
		if !exp.IsZero() && exp.Before(now) {
			continue
		}
		out = append(out, &http.Cookie{
			Name:     c.name,
			Value:    c.value,
			Domain:   c.host,
			Path:     c.path,
			Expires:  exp,
			Secure:   c.secure,
			HttpOnly: c.httpOnly,
		})
	}
	return out, nil
}

// Watch reports cookie changes by diffing snapshots. File-system events
// mark the jar dirty; the poll tick rescans when dirty or when the files'
// modification times moved (for file systems without notifications).
func (f *Firefox) Watch(ctx context.Context) (<-chan Change, error) {
	prev, err := f.fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	lastMod := f.modTime()

	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		utils.Debug("Cookies: fsnotify unavailable, polling only: %v", err)
	} else if err := watcher.Add(f.ProfileDir); err != nil {
		utils.Debug("Cookies: cannot watch %s, polling only: %v", f.ProfileDir, err)
		_ = watcher.Close()
		watcher = nil
	} else {
		fsEvents = watcher.Events
		fsErrors = watcher.Errors
	}

	out := make(chan Change, 64)
	ticks, stop := f.Clock.NewTicker(f.PollInterval)

	go func() {
		defer close(out)
		defer stop()
		if watcher != nil {
			defer func() { _ = watcher.Close() }()
		}

		dirty := false
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsEvents:
				if !ok {
					fsEvents = nil
					continue
				}
				if strings.HasPrefix(filepath.Base(ev.Name), firefoxCookieDB) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					dirty = true
				}
			case err, ok := <-fsErrors:
				if !ok {
					fsErrors = nil
					continue
				}
				utils.Debug("Cookies: watcher error: %v", err)
			case <-ticks:
				mod := f.modTime()
				if !dirty && mod.Equal(lastMod) {
					continue
				}
				dirty = false
				lastMod = mod

				next, err := f.fingerprint(ctx)
				if err != nil {
					utils.Debug("Cookies: rescan failed: %v", err)
					continue
				}
				for _, c := range diff(prev, next) {
					select {
					case out <- c:
					case <-ctx.Done():
						return
					}
				}
				prev = next
			}
		}
	}()
	return out, nil
}

type cookieState struct {
	host  string
	name  string
	value string
}

func (f *Firefox) fingerprint(ctx context.Context) (map[string]cookieState, error) {
	all, err := f.readAll(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]cookieState, len(all))
	for _, c := range all {
		sum := sha256.Sum256([]byte(c.value))
		m[c.id()] = cookieState{host: c.host, name: c.name, value: hex.EncodeToString(sum[:8])}
	}
	return m, nil
}

func diff(prev, next map[string]cookieState) []Change {
	var out []Change
	for id, n := range next {
		if p, ok := prev[id]; !ok || p.value != n.value {
			out = append(out, Change{Domain: n.host, Name: n.name})
		}
	}
	for id, p := range prev {
		if _, ok := next[id]; !ok {
			out = append(out, Change{Domain: p.host, Name: p.name, Removed: true})
		}
	}
	return out
}

func (f *Firefox) modTime() time.Time {
	var latest time.Time
	for _, suffix := range []string{"", "-wal"} {
		if fi, err := os.Stat(filepath.Join(f.ProfileDir, firefoxCookieDB+suffix)); err == nil {
			if fi.ModTime().After(latest) {
				latest = fi.ModTime()
			}
		}
	}
	return latest
}

func (f *Firefox) readAll(ctx context.Context) ([]firefoxCookie, error) {
	src := filepath.Join(f.ProfileDir, firefoxCookieDB)
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("firefox cookie db: %w", err)
	}

	tmp, err := os.MkdirTemp("", "mdbridge-cookies-*")
	if err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	dst := filepath.Join(tmp, firefoxCookieDB)
	if err := copyFile(src, dst); err != nil {
		return nil, fmt.Errorf("snapshot cookie db: %w", err)
	}
	if err := copyFile(src+"-wal", dst+"-wal"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("snapshot cookie wal: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dst+"?_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("open cookie snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `
		SELECT host, path, name, value, expiry, isSecure, isHttpOnly
		FROM moz_cookies ORDER BY creationTime, id`)
	if err != nil {
		return nil, fmt.Errorf("query moz_cookies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []firefoxCookie
	for rows.Next() {
		var c firefoxCookie
		var secure, httpOnly int
		if err := rows.Scan(&c.host, &c.path, &c.name, &c.value, &c.expiry, &secure, &httpOnly); err != nil {
			return nil, fmt.Errorf("scan moz_cookies: %w", err)
		}
		c.secure = secure != 0
		c.httpOnly = httpOnly != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
