package cookies

import (
	"context"
	"net/http"
	"sort"
	"sync"
)

type memKey struct {
	domain string
	path   string
	name   string
}

// Memory is an in-process cookie jar. It backs tests and the cookie
// source used when no browser profile is available.
type Memory struct {
	mu      sync.Mutex
	jar     map[memKey]*http.Cookie
	order   map[memKey]uint64
	seq     uint64
	watches map[int]chan Change
	nextW   int
}

// NewMemory returns an empty jar.
func NewMemory() *Memory {
	return &Memory{
		jar:     make(map[memKey]*http.Cookie),
		order:   make(map[memKey]uint64),
		watches: make(map[int]chan Change),
	}
}

// Set stores c (keyed by domain, path and name) and notifies watchers.
func (m *Memory) Set(c *http.Cookie) {
	k := memKey{domain: c.Domain, path: c.Path, name: c.Name}
	cp := *c

	m.mu.Lock()
	if _, exists := m.jar[k]; !exists {
		m.seq++
		m.order[k] = m.seq
	}
	m.jar[k] = &cp
	m.mu.Unlock()

	m.notify(Change{Domain: c.Domain, Name: c.Name})
}

// Remove deletes every cookie named name stored for domain.
func (m *Memory) Remove(domain, name string) {
	removed := false
	m.mu.Lock()
	for k := range m.jar {
		if k.domain == domain && k.name == name {
			delete(m.jar, k)
			delete(m.order, k)
			removed = true
		}
	}
	m.mu.Unlock()

	if removed {
		m.notify(Change{Domain: domain, Name: name, Removed: true})
	}
}

// Cookies returns the cookies that domain-match domain, oldest first.
func (m *Memory) Cookies(_ context.Context, domain string) ([]*http.Cookie, error) {
	return m.collect(domain, DomainMatch), nil
}

// SiteCookies also returns cookies kept for subdomains of domain.
func (m *Memory) SiteCookies(_ context.Context, domain string) ([]*http.Cookie, error) {
	return m.collect(domain, SiteMatch), nil
}

func (m *Memory) collect(domain string, match func(cookieDomain, domain string) bool) []*http.Cookie {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		c   *http.Cookie
		seq uint64
	}
	var matched []entry
	for k, c := range m.jar {
		if match(k.domain, domain) {
			cp := *c
			matched = append(matched, entry{c: &cp, seq: m.order[k]})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	out := make([]*http.Cookie, len(matched))
	for i, e := range matched {
		out[i] = e.c
	}
	return out
}

// Watch streams changes until ctx is done. Events that find the buffer
// full are dropped.
func (m *Memory) Watch(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 64)
	m.mu.Lock()
	id := m.nextW
	m.nextW++
	m.watches[id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watches, id)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

func (m *Memory) notify(c Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.watches {
		select {
		case ch <- c:
		default:
		}
	}
}
