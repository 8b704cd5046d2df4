// Package sloghook logs proxy events with log/slog. Storage keys are redacted
// because they carry tenant identifiers.
package sloghook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kng-mtd/kvproxy"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ItemFailedEvery uint64
	StoreFaultEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	itemFailedCtr atomic.Uint64
	storeFaultCtr atomic.Uint64
}

var _ kvproxy.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ItemFailed(op string, index int, storageKey, code string) {
	if h.l == nil || !sample(h.opts.ItemFailedEvery, &h.itemFailedCtr) {
		return
	}
	h.l.Debug("kvproxy.item_failed",
		"op", op,
		"index", index,
		"key", h.redact(storageKey),
		"code", code)
}

func (h *Hooks) StoreFault(op, storageKey string, err error) {
	if h.l == nil || !sample(h.opts.StoreFaultEvery, &h.storeFaultCtr) {
		return
	}
	h.l.Warn("kvproxy.store_fault",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) SetRejected(op, storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("kvproxy.set_rejected",
		"op", op,
		"key", h.redact(storageKey))
}

func (h *Hooks) BackupTaken(tenant string, entries int, took time.Duration) {
	if h.l == nil {
		return
	}
	scope := "all"
	if tenant != "" {
		scope = h.redact(tenant)
	}
	h.l.Info("kvproxy.backup_taken",
		"scope", scope,
		"entries", entries,
		"took", took)
}

func (h *Hooks) Restored(written, failed int, took time.Duration) {
	if h.l == nil {
		return
	}
	lvl := slog.LevelInfo
	if failed > 0 {
		lvl = slog.LevelWarn
	}
	h.l.Log(context.Background(), lvl, "kvproxy.restored",
		"written", written,
		"failed", failed,
		"took", took)
}
