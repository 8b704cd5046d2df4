// Package asynchook moves hook calls off the request path.
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{ItemFailedEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	px, _ := kvproxy.New(kvproxy.Options{Provider: p, Hooks: hooks})
//
// Events are dropped, and counted, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kng-mtd/kvproxy"
)

type Hooks struct {
	inner   kvproxy.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ kvproxy.Hooks = (*Hooks)(nil)

func New(inner kvproxy.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close: send on closed channel
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) ItemFailed(op string, i int, k, code string) {
	h.try(func() { h.inner.ItemFailed(op, i, k, code) })
}
func (h *Hooks) StoreFault(op, k string, err error) {
	h.try(func() { h.inner.StoreFault(op, k, err) })
}
func (h *Hooks) SetRejected(op, k string) { h.try(func() { h.inner.SetRejected(op, k) }) }
func (h *Hooks) BackupTaken(tenant string, n int, took time.Duration) {
	h.try(func() { h.inner.BackupTaken(tenant, n, took) })
}
func (h *Hooks) Restored(w, f int, took time.Duration) {
	h.try(func() { h.inner.Restored(w, f, took) })
}
