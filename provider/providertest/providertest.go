// Package providertest holds behavioural tests every provider.Provider must pass.
package providertest

import (
	"bytes"
	"context"
	"sort"
	"testing"
	"time"

	"github.com/kng-mtd/kvproxy/internal/wire"
	pr "github.com/kng-mtd/kvproxy/provider"
)

// Factory returns a fresh, empty provider. The suite closes it.
type Factory func(t *testing.T) pr.Provider

// Options tune the suite for stores with coarse or missing features.
type Options struct {
	// SkipTTL disables the expiry test (e.g. stores with a global life window only).
	SkipTTL bool
	// TTLWait is how long to wait after a 1s TTL before expecting the entry gone.
	// 0 => 1500ms.
	TTLWait time.Duration
}

// Run executes the conformance suite as subtests of t.
func Run(t *testing.T, newProvider Factory, opts Options) {
	t.Helper()
	if opts.TTLWait == 0 {
		opts.TTLWait = 1500 * time.Millisecond
	}

	t.Run("GetMiss", func(t *testing.T) { testGetMiss(t, newProvider) })
	t.Run("SetGetTransparent", func(t *testing.T) { testSetGetTransparent(t, newProvider) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, newProvider) })
	t.Run("DelIdempotent", func(t *testing.T) { testDelIdempotent(t, newProvider) })
	t.Run("ListPrefix", func(t *testing.T) { testListPrefix(t, newProvider) })
	t.Run("LongestTTL", func(t *testing.T) { testLongestTTL(t, newProvider) })
	if !opts.SkipTTL {
		t.Run("TTL", func(t *testing.T) { testTTL(t, newProvider, opts.TTLWait) })
	}
}

func open(t *testing.T, newProvider Factory) (context.Context, pr.Provider) {
	t.Helper()
	ctx := context.Background()
	p := newProvider(t)
	t.Cleanup(func() { _ = p.Close(ctx) })
	return ctx, p
}

func mustSet(t *testing.T, ctx context.Context, p pr.Provider, key string, v []byte, ttl time.Duration) {
	t.Helper()
	ok, err := p.Set(ctx, key, v, ttl)
	if err != nil || !ok {
		t.Fatalf("Set(%q): ok=%v err=%v", key, ok, err)
	}
}

func testGetMiss(t *testing.T, newProvider Factory) {
	ctx, p := open(t, newProvider)
	v, ok, err := p.Get(ctx, "nope:missing")
	if err != nil || ok || v != nil {
		t.Fatalf("Get miss: v=%q ok=%v err=%v", v, ok, err)
	}
}

func testSetGetTransparent(t *testing.T, newProvider Factory) {
	ctx, p := open(t, newProvider)
	values := [][]byte{
		[]byte(`{"a":1,"b":[true,null]}`),
		[]byte(`0`),
		[]byte(`false`),
		[]byte(`null`),
		[]byte(`""`),
		{0x00, 0xFF, 'K', 'V', 'P', 'X'},
	}
	for i, want := range values {
		key := "t:k" + string(rune('a'+i))
		mustSet(t, ctx, p, key, want, 0)
		got, ok, err := p.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get(%q): ok=%v err=%v", key, ok, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get(%q) = %x, want %x", key, got, want)
		}
	}
}

func testOverwrite(t *testing.T, newProvider Factory) {
	ctx, p := open(t, newProvider)
	mustSet(t, ctx, p, "t:k", []byte(`"one"`), 0)
	mustSet(t, ctx, p, "t:k", []byte(`"two"`), 0)
	got, ok, err := p.Get(ctx, "t:k")
	if err != nil || !ok || string(got) != `"two"` {
		t.Fatalf("after overwrite: got=%q ok=%v err=%v", got, ok, err)
	}
}

func testDelIdempotent(t *testing.T, newProvider Factory) {
	ctx, p := open(t, newProvider)
	if err := p.Del(ctx, "t:never"); err != nil {
		t.Fatalf("Del missing: %v", err)
	}
	mustSet(t, ctx, p, "t:k", []byte(`1`), 0)
	if err := p.Del(ctx, "t:k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := p.Del(ctx, "t:k"); err != nil {
		t.Fatalf("Del twice: %v", err)
	}
	if _, ok, err := p.Get(ctx, "t:k"); err != nil || ok {
		t.Fatalf("Get after Del: ok=%v err=%v", ok, err)
	}
}

func testListPrefix(t *testing.T, newProvider Factory) {
	ctx, p := open(t, newProvider)
	for _, k := range []string{"app:a", "app:b", "apple:c", "other:d"} {
		mustSet(t, ctx, p, k, []byte(`1`), 0)
	}

	got, err := p.List(ctx, "app:")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "app:a" || got[1] != "app:b" {
		t.Fatalf("List(app:) = %v", got)
	}

	all, err := p.List(ctx, "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("List all = %v, want 4 keys", all)
	}

	if err := p.Del(ctx, "app:a"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	got, err = p.List(ctx, "app:")
	if err != nil || len(got) != 1 || got[0] != "app:b" {
		t.Fatalf("List after Del = %v err=%v", got, err)
	}
}

func testLongestTTL(t *testing.T, newProvider Factory) {
	ctx, p := open(t, newProvider)
	mustSet(t, ctx, p, "t:far", []byte(`1`), wire.MaxTTL)

	v, ok, err := p.Get(ctx, "t:far")
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get after longest TTL: v=%q ok=%v err=%v", v, ok, err)
	}
	keys, err := p.List(ctx, "t:")
	if err != nil || len(keys) != 1 || keys[0] != "t:far" {
		t.Fatalf("List = %v err=%v", keys, err)
	}
}

func testTTL(t *testing.T, newProvider Factory, wait time.Duration) {
	if testing.Short() {
		t.Skip("sleeps past a TTL")
	}
	ctx, p := open(t, newProvider)
	mustSet(t, ctx, p, "t:short", []byte(`1`), time.Second)
	mustSet(t, ctx, p, "t:long", []byte(`2`), time.Hour)
	mustSet(t, ctx, p, "t:forever", []byte(`3`), 0)

	if _, ok, err := p.Get(ctx, "t:short"); err != nil || !ok {
		t.Fatalf("fresh TTL entry: ok=%v err=%v", ok, err)
	}

	time.Sleep(wait)

	if _, ok, err := p.Get(ctx, "t:short"); err != nil || ok {
		t.Fatalf("expired entry still visible: ok=%v err=%v", ok, err)
	}
	for _, k := range []string{"t:long", "t:forever"} {
		if _, ok, err := p.Get(ctx, k); err != nil || !ok {
			t.Fatalf("%s should survive: ok=%v err=%v", k, ok, err)
		}
	}
}
