// Package store persists the bridge's small key-value state (settings the
// page-side surfaces share, the recent downloads list and the badge) in a
// single SQLite file.
//
// Values are JSON. Every write bumps a store-wide revision so readers in
// other processes can poll for changes with ChangesSince.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	rev   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS kv_rev ON kv(rev);
`

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Change describes one write.
type Change struct {
	Key   string
	Value json.RawMessage
	Rev   int64
}

// Store is a JSON key-value store backed by SQLite.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	subs    map[int]chan Change
	nextSub int
	closed  bool

	// Revisions written by this process while Follow runs, so the poll
	// does not republish them.
	following bool
	local     map[int64]struct{}
	// wmu orders a write and its local-revision record against the poll.
	wmu sync.Mutex
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One writer; SQLite serializes anyway and this keeps busy errors away.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db, subs: make(map[int]chan Change)}, nil
}

// Close releases the database and ends all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// Get decodes the value stored under key into dst. found is false when
// the key has never been written.
func (s *Store) Get(ctx context.Context, key string, dst any) (found bool, err error) {
	if s.isClosed() {
		return false, ErrClosed
	}
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key and notifies subscribers. It returns once the
// write is durable.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	if s.isClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.wmu.Lock()
	var rev int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO kv (key, value, rev)
		VALUES (?, ?, (SELECT COALESCE(MAX(rev), 0) + 1 FROM kv))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, rev = excluded.rev
		RETURNING rev`, key, string(data)).Scan(&rev)
	if err != nil {
		s.wmu.Unlock()
		return fmt.Errorf("set %s: %w", key, err)
	}
	s.mu.Lock()
	if s.following {
		s.local[rev] = struct{}{}
	}
	s.mu.Unlock()
	s.wmu.Unlock()
	s.publish(Change{Key: key, Value: data, Rev: rev})
	return nil
}

// Seed writes each default whose key is absent. Existing values win.
func (s *Store) Seed(ctx context.Context, defaults map[string]any) error {
	for key, v := range defaults {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode default %s: %w", key, err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO kv (key, value, rev)
			VALUES (?, ?, (SELECT COALESCE(MAX(rev), 0) + 1 FROM kv))
			ON CONFLICT(key) DO NOTHING`, key, string(data))
		if err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return nil
}

// ChangesSince returns the current value of every key written after rev,
// oldest first, and the highest revision seen.
func (s *Store) ChangesSince(ctx context.Context, rev int64) ([]Change, int64, error) {
	if s.isClosed() {
		return nil, rev, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, rev FROM kv WHERE rev > ? ORDER BY rev`, rev)
	if err != nil {
		return nil, rev, fmt.Errorf("query changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	latest := rev
	var out []Change
	for rows.Next() {
		var c Change
		var raw string
		if err := rows.Scan(&c.Key, &raw, &c.Rev); err != nil {
			return nil, rev, fmt.Errorf("scan change: %w", err)
		}
		c.Value = json.RawMessage(raw)
		out = append(out, c)
		if c.Rev > latest {
			latest = c.Rev
		}
	}
	if err := rows.Err(); err != nil {
		return nil, rev, fmt.Errorf("iterate changes: %w", err)
	}
	return out, latest, nil
}

// Subscribe delivers in-process writes. Slow subscribers miss changes
// rather than block writers. Call cancel to unsubscribe.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

// Follow polls for writes made by other processes (the CLI, the status
// screen) and publishes them to subscribers until ctx is done or the
// store is closed.
func (s *Store) Follow(ctx context.Context, interval time.Duration) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.wmu.Lock()
	s.mu.Lock()
	if s.following {
		s.mu.Unlock()
		s.wmu.Unlock()
		return errors.New("store already followed")
	}
	s.following = true
	s.local = make(map[int64]struct{})
	s.mu.Unlock()
	rev, err := s.latestRev(ctx)
	s.wmu.Unlock()
	defer func() {
		s.mu.Lock()
		s.following = false
		s.local = nil
		s.mu.Unlock()
	}()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		s.wmu.Lock()
		changes, latest, err := s.ChangesSince(ctx, rev)
		if err != nil {
			s.wmu.Unlock()
			if errors.Is(err, ErrClosed) {
				return nil
			}
			continue
		}
		rev = latest

		s.mu.Lock()
		var external []Change
		for _, c := range changes {
			if _, mine := s.local[c.Rev]; mine {
				continue
			}
			external = append(external, c)
		}
		for r := range s.local {
			if r <= latest {
				delete(s.local, r)
			}
		}
		s.mu.Unlock()
		s.wmu.Unlock()

		for _, c := range external {
			s.publish(c)
		}
	}
}

func (s *Store) latestRev(ctx context.Context) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(rev), 0) FROM kv`).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("latest rev: %w", err)
	}
	return rev, nil
}

func (s *Store) publish(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
