package promhook

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kng-mtd/kvproxy"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h.ItemFailed("kvproxy.BulkSet", 0, "t:a", kvproxy.EInvalid)
	h.ItemFailed("kvproxy.BulkSet", 1, "t:b", kvproxy.EInvalid)
	h.StoreFault("kvproxy.Get", "t:a", errors.New("x"))
	h.SetRejected("kvproxy.Set", "t:a")
	h.BackupTaken("", 10, time.Second)
	h.BackupTaken("acme", 3, time.Second)
	h.Restored(5, 2, time.Second)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"item_failed", testutil.ToFloat64(h.itemFailed.WithLabelValues("kvproxy.BulkSet", kvproxy.EInvalid)), 2},
		{"fault", testutil.ToFloat64(h.storeFaults.WithLabelValues("kvproxy.Get")), 1},
		{"rejected", testutil.ToFloat64(h.rejected.WithLabelValues("kvproxy.Set")), 1},
		{"backup all", testutil.ToFloat64(h.backups.WithLabelValues("all")), 1},
		{"backup tenant", testutil.ToFloat64(h.backups.WithLabelValues("tenant")), 1},
		{"restored written", testutil.ToFloat64(h.restored.WithLabelValues("written")), 5},
		{"restored failed", testutil.ToFloat64(h.restored.WithLabelValues("failed")), 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestDoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
