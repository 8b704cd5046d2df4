// Package bolt is a durable single-file provider on go.etcd.io/bbolt.
// bbolt has no expiry, so values are framed with internal/wire; expired entries
// are hidden on read and removed by an optional sweep loop.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kng-mtd/kvproxy/internal/wire"
	pr "github.com/kng-mtd/kvproxy/provider"
)

const defaultBucket = "kv"

type Provider struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Path          string        // Required. Database file, created if missing.
	Bucket        string        // "" => "kv"
	OpenTimeout   time.Duration // file lock wait; 0 => 1s
	SweepInterval time.Duration // 0 => no background sweep
	NoSync        bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.Path == "" {
		return nil, errors.New("bolt: path is required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = defaultBucket
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Second
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", cfg.Path, err)
	}
	db.NoSync = cfg.NoSync

	p := &Provider{db: db, bucket: []byte(cfg.Bucket), now: time.Now}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(p.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: create bucket: %w", err)
	}

	if cfg.SweepInterval > 0 {
		p.ticker = time.NewTicker(cfg.SweepInterval)
		p.stopCh = make(chan struct{})
		p.wg.Add(1)
		go p.sweepLoop()
	}
	return p, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		out     []byte
		expired bool
	)
	err := p.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(p.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		exp, payload, err := wire.DecodeEntry(raw)
		if err != nil {
			return fmt.Errorf("bolt: key %q: %w", key, err)
		}
		if wire.Expired(p.now(), exp) {
			expired = true
			return nil
		}
		// bbolt memory is only valid inside the transaction
		out = make([]byte, len(payload))
		copy(out, payload)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if expired {
		_ = p.deleteIfExpired(key)
		return nil, false, nil
	}
	return out, out != nil, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	framed := wire.EncodeEntry(wire.ExpiresAt(p.now(), ttl), value)
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucket).Put([]byte(key), framed)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucket).Delete([]byte(key))
	})
}

// List seeks to prefix and walks forward, so keys come back in byte order.
func (p *Provider) List(_ context.Context, prefix string) ([]string, error) {
	now := p.now()
	pfx := []byte(prefix)
	var keys []string
	err := p.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(p.bucket).Cursor()
		for k, v := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = c.Next() {
			exp, _, err := wire.DecodeEntry(v)
			if err != nil || wire.Expired(now, exp) {
				continue
			}
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Sweep deletes every expired entry and returns how many were removed.
func (p *Provider) Sweep() (int, error) {
	now := p.now()
	var n int
	err := p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(p.bucket)
		var dead [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			exp, _, err := wire.DecodeEntry(v)
			if err == nil && wire.Expired(now, exp) {
				dead = append(dead, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range dead {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(dead)
		return nil
	})
	return n, err
}

func (p *Provider) Close(_ context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		if p.stopCh != nil {
			close(p.stopCh)
			p.ticker.Stop()
			p.wg.Wait()
		}
		err = p.db.Close()
	})
	return err
}

func (p *Provider) sweepLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ticker.C:
			_, _ = p.Sweep()
		case <-p.stopCh:
			return
		}
	}
}

// deleteIfExpired re-checks under a write transaction so a concurrent Set wins.
func (p *Provider) deleteIfExpired(key string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(p.bucket)
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		exp, _, err := wire.DecodeEntry(raw)
		if err != nil || !wire.Expired(p.now(), exp) {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
