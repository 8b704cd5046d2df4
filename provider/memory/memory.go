// Package memory is an in-process provider. Entries expire lazily: reads and
// listings skip (and drop) anything past its deadline.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kng-mtd/kvproxy/internal/wire"
	pr "github.com/kng-mtd/kvproxy/provider"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Memory struct {
	mu     sync.RWMutex
	m      map[string]entry
	now    func() time.Time
	closed bool
}

var _ pr.Provider = (*Memory)(nil)

func New() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

// NewWithClock is New with an injectable clock, used to test expiry.
func NewWithClock(now func() time.Time) *Memory {
	return &Memory{m: make(map[string]entry), now: now}
}

func (p *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, false, pr.ErrClosed
	}
	e, ok := p.m[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if wire.Expired(p.now(), e.exp) {
		p.mu.Lock()
		if cur, ok := p.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(p.m, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(e.v))
	copy(out, e.v)
	return out, true, nil
}

func (p *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	v := make([]byte, len(value))
	copy(v, value)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, pr.ErrClosed
	}
	p.m[key] = entry{v: v, exp: wire.ExpiresAt(p.now(), ttl)}
	return true, nil
}

func (p *Memory) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return pr.ErrClosed
	}
	delete(p.m, key)
	return nil
}

// List returns live keys sorted lexicographically, like a KV namespace listing.
func (p *Memory) List(_ context.Context, prefix string) ([]string, error) {
	now := p.now()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, pr.ErrClosed
	}
	keys := make([]string, 0, len(p.m))
	for k, e := range p.m {
		if !strings.HasPrefix(k, prefix) || wire.Expired(now, e.exp) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *Memory) Close(_ context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.m = make(map[string]entry)
	p.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (p *Memory) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}
