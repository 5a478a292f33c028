package engine

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// memoryEntry is the engine remembered for one host.
type memoryEntry struct {
	engine    string
	expiresAt time.Time
}

// DomainMemory remembers which engine the next attempt on a host should
// use. A host that blocked the browser is routed to HTTP, and stays there
// for the TTL as long as HTTP keeps producing brands.
// It is safe for concurrent use.
type DomainMemory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewDomainMemory creates a DomainMemory whose entries live for ttl.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	return &DomainMemory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Preferred returns the remembered engine for the URL's host, or "".
func (m *DomainMemory) Preferred(rawURL string) string {
	if m == nil {
		return ""
	}
	host := HostKey(rawURL)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[host]
	if !ok {
		return ""
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, host)
		return ""
	}
	return e.engine
}

// Remember routes the URL's host to engine.
func (m *DomainMemory) Remember(rawURL, engine string) {
	if m == nil {
		return
	}
	host := HostKey(rawURL)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	m.entries[host] = memoryEntry{engine: engine, expiresAt: m.now().Add(m.ttl)}
}

// Forget drops the memory for the URL's host (e.g. after the remembered engine fails).
func (m *DomainMemory) Forget(rawURL string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.entries, HostKey(rawURL))
	m.mu.Unlock()
}

// prune removes expired entries; callers hold mu.
func (m *DomainMemory) prune() {
	now := m.now()
	for host, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, host)
		}
	}
}

// HostKey returns the lowercase host of rawURL without a leading "www.".
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
