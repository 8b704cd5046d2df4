package kvproxy

import (
	"time"

	"github.com/kng-mtd/kvproxy/internal/wire"
)

const (
	defaultBackupConcurrency = 8
	defaultMaxBatchItems     = 10000

	maxTTLSeconds = int64(wire.MaxTTL / time.Second)
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
