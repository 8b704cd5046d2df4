package bigcache

import (
	"context"
	"errors"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/kng-mtd/kvproxy/internal/wire"
	pr "github.com/kng-mtd/kvproxy/provider"
)

// Provider keeps entries in BigCache. BigCache only knows a global LifeWindow, so
// per-entry TTLs are framed with internal/wire and enforced on read. An entry is
// gone at whichever comes first: its own TTL or the LifeWindow.
type Provider struct {
	c   *bc.BigCache
	now func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 30 days
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 30 * 24 * time.Hour
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, now: time.Now}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	exp, payload, err := wire.DecodeEntry(b)
	if err != nil {
		// self-heal: drop foreign/corrupt bytes
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	if wire.Expired(p.now(), exp) {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	return payload, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	framed := wire.EncodeEntry(wire.ExpiresAt(p.now(), ttl), value)
	if err := p.c.Set(key, framed); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	err := p.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

// List iterates every shard. Order follows BigCache's internal layout.
func (p *Provider) List(_ context.Context, prefix string) ([]string, error) {
	now := p.now()
	var keys []string
	it := p.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			// entry evicted while iterating
			continue
		}
		k := info.Key()
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		exp, _, err := wire.DecodeEntry(info.Value())
		if err != nil || wire.Expired(now, exp) {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
