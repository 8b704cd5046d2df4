package kvproxy

import (
	"context"
	"encoding/json"

	"github.com/kng-mtd/kvproxy/lock"
	pr "github.com/kng-mtd/kvproxy/provider"
)

// Proxy is the tenant-scoped key-value API. Every operation validates its input
// before touching the provider and returns *Error on failure.
type Proxy interface {
	// Single
	Set(ctx context.Context, it Item) error
	Get(ctx context.Context, tenant, key string) (json.RawMessage, error)
	Delete(ctx context.Context, tenant, key string) error
	List(ctx context.Context, tenant string) ([]string, error)
	Update(ctx context.Context, it Item) error

	// Batches run item by item in input order and never roll back.
	BulkSet(ctx context.Context, items []Item) (*BatchResult, error)
	Restore(ctx context.Context, pairs []Pair) (*BatchResult, error)

	// Backup snapshots one tenant, or every key when tenant is "".
	Backup(ctx context.Context, tenant string) ([]Pair, error)

	Close(ctx context.Context) error
}

// Options configure a Proxy. Only Provider is required.
type Options struct {
	Provider pr.Provider

	Logger            Logger      // nil => NopLogger
	Hooks             Hooks       // nil => NopHooks
	Locker            lock.Locker // serialises Update per key; nil => no locking
	BackupConcurrency int         // parallel value reads during Backup; 0 => 8
	MaxBatchItems     int         // BulkSet/Restore item cap; 0 => 10000
}

func New(opts Options) (Proxy, error) {
	return newProxy(opts)
}
