// Package promhook counts proxy events in Prometheus.
package promhook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kng-mtd/kvproxy"
)

const (
	namespace = "kvproxy"
	subsystem = "store"
)

type Hooks struct {
	itemFailed  *prometheus.CounterVec
	storeFaults *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	backups     *prometheus.CounterVec
	backupSize  prometheus.Histogram
	backupDur   prometheus.Histogram
	restored    *prometheus.CounterVec
}

var _ kvproxy.Hooks = (*Hooks)(nil)

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		itemFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "item_failed_total",
			Help:      "Number of bulk-set or restore elements that were not written",
		}, []string{"op", "code"}),
		storeFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fault_total",
			Help:      "Number of provider calls that returned an error",
		}, []string{"op"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "set_rejected_total",
			Help:      "Number of writes the provider refused under pressure",
		}, []string{"op"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backup_total",
			Help:      "Number of backups taken",
		}, []string{"scope"}),
		backupSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backup_entries",
			Help:      "Entries per backup",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		backupDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backup_duration_seconds",
			Help:      "Duration of backups",
			Buckets:   prometheus.DefBuckets,
		}),
		restored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "restored_entries_total",
			Help:      "Entries processed by restores, by outcome",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		h.itemFailed, h.storeFaults, h.rejected, h.backups, h.backupSize, h.backupDur, h.restored,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) ItemFailed(op string, _ int, _, code string) {
	h.itemFailed.WithLabelValues(op, code).Inc()
}

func (h *Hooks) StoreFault(op, _ string, _ error) {
	h.storeFaults.WithLabelValues(op).Inc()
}

func (h *Hooks) SetRejected(op, _ string) {
	h.rejected.WithLabelValues(op).Inc()
}

// BackupTaken labels by scope only; tenant names would explode cardinality.
func (h *Hooks) BackupTaken(tenant string, entries int, took time.Duration) {
	scope := "all"
	if tenant != "" {
		scope = "tenant"
	}
	h.backups.WithLabelValues(scope).Inc()
	h.backupSize.Observe(float64(entries))
	h.backupDur.Observe(took.Seconds())
}

func (h *Hooks) Restored(written, failed int, _ time.Duration) {
	h.restored.WithLabelValues("written").Add(float64(written))
	h.restored.WithLabelValues("failed").Add(float64(failed))
}
