package redis

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/kng-mtd/kvproxy/provider"
	"github.com/kng-mtd/kvproxy/provider/providertest"
)

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("New(nil client) = %v, want ErrNilClient", err)
	}
}

func TestEscapeGlob(t *testing.T) {
	cases := map[string]string{
		"app:":   "app:",
		"a*b:":   `a\*b:`,
		"q?[x]:": `q\?\[x\]:`,
		`back\:`: `back\\:`,
		"":       "",
	}
	for in, want := range cases {
		if got := escapeGlob(in); got != want {
			t.Fatalf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestConformance runs against a live server; set KVPROXY_TEST_REDIS_ADDR to enable.
// Each subtest flushes the selected database (15 by default).
func TestConformance(t *testing.T) {
	addr := os.Getenv("KVPROXY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KVPROXY_TEST_REDIS_ADDR not set")
	}
	providertest.Run(t, func(t *testing.T) pr.Provider {
		client := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
		if err := client.FlushDB(context.Background()).Err(); err != nil {
			t.Fatalf("flushdb: %v", err)
		}
		p, err := New(Config{Client: client, CloseClient: true})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return p
	}, providertest.Options{})
}
