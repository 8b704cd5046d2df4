package kvproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kng-mtd/kvproxy/internal/util"
	"github.com/kng-mtd/kvproxy/lock"
	pr "github.com/kng-mtd/kvproxy/provider"
)

type proxy struct {
	provider pr.Provider
	log      Logger
	hooks    Hooks
	locker   lock.Locker

	backupConcurrency int
	maxBatchItems     int
}

func newProxy(opts Options) (*proxy, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("kvproxy: provider is required")
	}
	if opts.BackupConcurrency < 0 {
		return nil, fmt.Errorf("kvproxy: backup concurrency must not be negative")
	}
	if opts.MaxBatchItems < 0 {
		return nil, fmt.Errorf("kvproxy: max batch items must not be negative")
	}

	p := &proxy{
		provider: opts.Provider,
		locker:   opts.Locker,
	}

	// defaults
	p.log = coalesce[Logger](opts.Logger, NopLogger{})
	p.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	p.backupConcurrency = coalesce(opts.BackupConcurrency, defaultBackupConcurrency)
	p.maxBatchItems = coalesce(opts.MaxBatchItems, defaultMaxBatchItems)

	return p, nil
}

func (p *proxy) Close(ctx context.Context) error {
	return p.provider.Close(ctx)
}

func (p *proxy) Set(ctx context.Context, it Item) error {
	const op = "kvproxy.Set"
	sk, val, ttl, err := prepareItem(op, it)
	if err != nil {
		return err
	}
	return p.write(ctx, op, sk, val, ttl)
}

func (p *proxy) Get(ctx context.Context, tenant, key string) (json.RawMessage, error) {
	const op = "kvproxy.Get"
	sk, err := storageKey(op, tenant, key)
	if err != nil {
		return nil, err
	}
	raw, ok, err := p.provider.Get(ctx, sk)
	if err != nil {
		return nil, p.fault(op, sk, "store read failed", err)
	}
	if !ok {
		return nil, &Error{Code: ENotFound, Op: op, Msg: "key not found"}
	}
	return json.RawMessage(raw), nil
}

// Delete succeeds whether or not the key existed.
func (p *proxy) Delete(ctx context.Context, tenant, key string) error {
	const op = "kvproxy.Delete"
	sk, err := storageKey(op, tenant, key)
	if err != nil {
		return err
	}
	if err := p.provider.Del(ctx, sk); err != nil {
		return p.fault(op, sk, "store delete failed", err)
	}
	return nil
}

// List returns the tenant's logical keys in the provider's listing order.
func (p *proxy) List(ctx context.Context, tenant string) ([]string, error) {
	const op = "kvproxy.List"
	if err := util.ValidateSegment(tenant); err != nil {
		return nil, invalid(op, "tenant: "+err.Error())
	}
	sks, err := p.provider.List(ctx, util.TenantPrefix(tenant))
	if err != nil {
		return nil, p.fault(op, util.TenantPrefix(tenant), "store list failed", err)
	}
	keys := make([]string, 0, len(sks))
	seen := make(map[string]struct{}, len(sks))
	for _, sk := range sks {
		k, ok := util.TrimTenant(tenant, sk)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}

// Update replaces the value of an existing key. The existence check and the
// write hold the per-key lock when a Locker is configured.
func (p *proxy) Update(ctx context.Context, it Item) error {
	const op = "kvproxy.Update"
	sk, val, ttl, err := prepareItem(op, it)
	if err != nil {
		return err
	}

	if p.locker != nil {
		unlock, err := p.locker.Lock(ctx, sk)
		if err != nil {
			return p.fault(op, sk, "could not lock key", err)
		}
		defer unlock()
	}

	_, ok, err := p.provider.Get(ctx, sk)
	if err != nil {
		return p.fault(op, sk, "store read failed", err)
	}
	if !ok {
		return &Error{Code: ENotFound, Op: op, Msg: "key not found"}
	}
	return p.write(ctx, op, sk, val, ttl)
}

// BulkSet writes items one at a time in order. A failed item is reported and
// skipped; earlier writes stay.
func (p *proxy) BulkSet(ctx context.Context, items []Item) (*BatchResult, error) {
	const op = "kvproxy.BulkSet"
	if len(items) > p.maxBatchItems {
		return nil, invalid(op, fmt.Sprintf("too many items: %d > %d", len(items), p.maxBatchItems))
	}

	res := &BatchResult{Success: true, Results: make([]ItemResult, 0, len(items))}
	for i, it := range items {
		ir := ItemResult{Index: i, Tenant: it.Tenant, Key: it.Key}
		sk, val, ttl, err := prepareItem(op, it)
		if err == nil {
			err = p.write(ctx, op, sk, val, ttl)
		}
		if err != nil {
			p.itemFailed(op, i, it.Tenant, it.Key, err)
		}
		res.record(ir, err)
	}
	p.log.Debug("bulk set done", Fields{"items": len(items), "written": res.Written, "failed": res.Failed})
	return res, nil
}

func (p *proxy) write(ctx context.Context, op, sk string, val []byte, ttl time.Duration) error {
	ok, err := p.provider.Set(ctx, sk, val, ttl)
	if err != nil {
		return p.fault(op, sk, "store write failed", err)
	}
	if !ok {
		p.hooks.SetRejected(op, sk)
		p.log.Warn("store rejected write", Fields{"op": op, "key": sk})
		return storeFault(op, "store rejected write", nil)
	}
	return nil
}

func (p *proxy) fault(op, sk, msg string, err error) *Error {
	p.hooks.StoreFault(op, sk, err)
	p.log.Warn(msg, Fields{"op": op, "key": sk, "err": err})
	return storeFault(op, msg, err)
}

func (p *proxy) itemFailed(op string, index int, tenant, key string, err error) {
	code := ErrorCode(err)
	sk := tenant + util.Delimiter + key
	p.hooks.ItemFailed(op, index, sk, code)
	if code == EInvalid {
		p.log.Debug("batch item rejected", Fields{"op": op, "index": index, "err": err})
	}
}

func storageKey(op, tenant, key string) (string, error) {
	if err := util.ValidateSegment(tenant); err != nil {
		return "", invalid(op, "tenant: "+err.Error())
	}
	if err := util.ValidateSegment(key); err != nil {
		return "", invalid(op, "key: "+err.Error())
	}
	return util.StorageKey(tenant, key), nil
}

// prepareItem validates it and returns its storage key, compacted value and TTL.
func prepareItem(op string, it Item) (string, []byte, time.Duration, error) {
	if it.decodeErr != nil {
		return "", nil, 0, malformed(op, it.decodeErr)
	}
	sk, err := storageKey(op, it.Tenant, it.Key)
	if err != nil {
		return "", nil, 0, err
	}
	val, err := compactValue(op, it.Value)
	if err != nil {
		return "", nil, 0, err
	}
	if it.TTL < 0 {
		return "", nil, 0, invalid(op, "ttl must not be negative")
	}
	if it.TTL > maxTTLSeconds {
		return "", nil, 0, invalid(op, "ttl is too large")
	}
	return sk, val, time.Duration(it.TTL) * time.Second, nil
}

// compactValue rejects an absent or non-JSON value and returns its compact form.
func compactValue(op string, v json.RawMessage) ([]byte, error) {
	if len(v) == 0 {
		return nil, invalid(op, "value is required")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return nil, invalid(op, "value is not valid JSON")
	}
	return buf.Bytes(), nil
}
