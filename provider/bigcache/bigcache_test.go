package bigcache

import (
	"context"
	"testing"
	"time"

	pr "github.com/kng-mtd/kvproxy/provider"
	"github.com/kng-mtd/kvproxy/provider/providertest"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{LifeWindow: time.Hour, HardMaxCacheSizeMB: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestConformance(t *testing.T) {
	providertest.Run(t, func(t *testing.T) pr.Provider { return newTestProvider(t) }, providertest.Options{})
}

func TestForeignBytesSelfHeal(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	defer p.Close(ctx)

	// Bypass framing to simulate a foreign writer.
	if err := p.c.Set("t:raw", []byte(`{"not":"framed"}`)); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if _, ok, err := p.Get(ctx, "t:raw"); err != nil || ok {
		t.Fatalf("foreign entry should miss: ok=%v err=%v", ok, err)
	}
	if _, err := p.c.Get("t:raw"); err == nil {
		t.Fatalf("foreign entry should have been deleted")
	}
}

func TestExpiryUsesInjectedClock(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	defer p.Close(ctx)

	base := time.Unix(5000, 0)
	p.now = func() time.Time { return base }
	if _, err := p.Set(ctx, "t:k", []byte(`1`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	p.now = func() time.Time { return base.Add(2 * time.Minute) }

	if keys, _ := p.List(ctx, "t:"); len(keys) != 0 {
		t.Fatalf("List should hide expired entry: %v", keys)
	}
	if _, ok, _ := p.Get(ctx, "t:k"); ok {
		t.Fatalf("Get should miss expired entry")
	}
}
