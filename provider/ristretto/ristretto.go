package ristretto

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/kng-mtd/kvproxy/internal/wire"
	pr "github.com/kng-mtd/kvproxy/provider"
)

// Provider keeps entries in Ristretto. Ristretto hashes keys and cannot enumerate
// them, so a side index of live keys backs List. The index follows evictions
// through OnEvict and is pruned of expired deadlines on read.
type Provider struct {
	c *rc.Cache

	mu    sync.Mutex
	index map[string]indexEntry
	seq   uint64
}

type indexEntry struct {
	seq uint64
	exp time.Time
}

// stored is what Ristretto holds; it carries the key so OnEvict can find the index entry.
type stored struct {
	key string
	seq uint64
	v   []byte
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes; cost of an entry is len(key)+len(value)
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	p := &Provider{index: make(map[string]indexEntry)}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		OnEvict:     p.onEvict,
	})
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

func (p *Provider) onEvict(item *rc.Item) {
	s, ok := item.Value.(stored)
	if !ok {
		return
	}
	p.mu.Lock()
	if cur, ok := p.index[s.key]; ok && cur.seq == s.seq {
		delete(p.index, s.key)
	}
	p.mu.Unlock()
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		p.forget(key)
		return nil, false, nil
	}
	s, ok := v.(stored)
	if !ok || s.key != key {
		// self-heal: drop unexpected entry shape or hash collision
		p.c.Del(key)
		p.forget(key)
		return nil, false, nil
	}
	out := make([]byte, len(s.v))
	copy(out, s.v)
	return out, true, nil
}

// Set waits for Ristretto's buffers to drain so a following Get observes the
// write. ok=false means the admission policy refused the entry.
func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	v := make([]byte, len(value))
	copy(v, value)

	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	cost := int64(len(key) + len(v))
	if !p.c.SetWithTTL(key, stored{key: key, seq: seq, v: v}, cost, ttl) {
		return false, nil
	}
	p.c.Wait()
	if _, ok := p.c.Get(key); !ok {
		return false, nil
	}

	p.mu.Lock()
	p.index[key] = indexEntry{seq: seq, exp: wire.ExpiresAt(time.Now(), ttl)}
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	p.c.Wait()
	p.forget(key)
	return nil
}

// List returns indexed keys sorted lexicographically.
func (p *Provider) List(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()
	p.mu.Lock()
	keys := make([]string, 0, len(p.index))
	for k, e := range p.index {
		if wire.Expired(now, e.exp) {
			delete(p.index, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	p.mu.Unlock()
	sort.Strings(keys)
	return keys, nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

func (p *Provider) forget(key string) {
	p.mu.Lock()
	delete(p.index, key)
	p.mu.Unlock()
}

// Helper to expose metrics if desired by the application (not part of provider.Provider).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
