package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	pr "github.com/kng-mtd/kvproxy/provider"
	"github.com/kng-mtd/kvproxy/provider/providertest"
)

func TestConformance(t *testing.T) {
	providertest.Run(t, func(*testing.T) pr.Provider { return New() }, providertest.Options{})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestExpiryIsLazyAndDropsEntry(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	p := NewWithClock(clk.Now)

	if _, err := p.Set(ctx, "t:k", []byte(`1`), 10*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clk.Advance(9 * time.Second)
	if _, ok, _ := p.Get(ctx, "t:k"); !ok {
		t.Fatalf("entry should be live before deadline")
	}

	clk.Advance(time.Second)
	keys, err := p.List(ctx, "t:")
	if err != nil || len(keys) != 0 {
		t.Fatalf("List should hide expired entries: %v err=%v", keys, err)
	}
	if p.Len() != 1 {
		t.Fatalf("List must not mutate; Len=%d", p.Len())
	}
	if _, ok, _ := p.Get(ctx, "t:k"); ok {
		t.Fatalf("entry should be expired at deadline")
	}
	if p.Len() != 0 {
		t.Fatalf("expired entry should be dropped on read; Len=%d", p.Len())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	p := New()
	in := []byte(`"abc"`)
	_, _ = p.Set(ctx, "t:k", in, 0)
	in[1] = 'X'

	got, _, _ := p.Get(ctx, "t:k")
	if string(got) != `"abc"` {
		t.Fatalf("Set must copy input, got %q", got)
	}
	got[1] = 'Y'
	again, _, _ := p.Get(ctx, "t:k")
	if string(again) != `"abc"` {
		t.Fatalf("Get must return a copy, got %q", again)
	}
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	p := New()
	_ = p.Close(ctx)
	if _, err := p.Set(ctx, "t:k", []byte(`1`), 0); err != pr.ErrClosed {
		t.Fatalf("Set after Close: %v", err)
	}
	if _, _, err := p.Get(ctx, "t:k"); err != pr.ErrClosed {
		t.Fatalf("Get after Close: %v", err)
	}
}
