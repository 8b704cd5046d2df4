package kvproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kng-mtd/kvproxy/internal/util"
)

// Backup lists keys, then reads their values with bounded parallelism.
// Output follows the listing order. Keys that disappear between the list and
// the read are left out; there is no isolation from concurrent writers.
func (p *proxy) Backup(ctx context.Context, tenant string) ([]Pair, error) {
	const op = "kvproxy.Backup"
	start := time.Now()

	prefix := ""
	if tenant != "" {
		if err := util.ValidateSegment(tenant); err != nil {
			return nil, invalid(op, "tenant: "+err.Error())
		}
		prefix = util.TenantPrefix(tenant)
	}

	keys, err := p.provider.List(ctx, prefix)
	if err != nil {
		return nil, p.fault(op, prefix, "store list failed", err)
	}

	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.backupConcurrency)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			raw, ok, err := p.provider.Get(gctx, k)
			if err != nil {
				return p.fault(op, k, "store read failed", err)
			}
			values[i], found[i] = raw, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0, len(keys))
	for i, k := range keys {
		if !found[i] {
			continue
		}
		if !json.Valid(values[i]) {
			p.log.Error("stored value is not JSON", Fields{"op": op, "key": k})
			return nil, &Error{Code: EInternal, Op: op, Msg: fmt.Sprintf("stored value for %q is not JSON", k)}
		}
		pairs = append(pairs, Pair{Key: k, Value: json.RawMessage(values[i])})
	}

	took := time.Since(start)
	p.hooks.BackupTaken(tenant, len(pairs), took)
	p.log.Info("backup taken", Fields{"tenant": tenant, "entries": len(pairs), "listed": len(keys), "took": took})
	return pairs, nil
}

// Restore writes each pair under its raw storage key, without TTL, in order.
// Bad pairs are reported and skipped, as in BulkSet.
func (p *proxy) Restore(ctx context.Context, pairs []Pair) (*BatchResult, error) {
	const op = "kvproxy.Restore"
	if len(pairs) > p.maxBatchItems {
		return nil, invalid(op, fmt.Sprintf("too many entries: %d > %d", len(pairs), p.maxBatchItems))
	}
	start := time.Now()

	res := &BatchResult{Success: true, Results: make([]ItemResult, 0, len(pairs))}
	for i, pair := range pairs {
		err := p.restoreOne(ctx, op, pair)
		if err != nil {
			p.hooks.ItemFailed(op, i, pair.Key, ErrorCode(err))
		}
		res.record(ItemResult{Index: i, Key: pair.Key}, err)
	}

	took := time.Since(start)
	p.hooks.Restored(res.Written, res.Failed, took)
	p.log.Info("restore done", Fields{"written": res.Written, "failed": res.Failed, "took": took})
	return res, nil
}

func (p *proxy) restoreOne(ctx context.Context, op string, pair Pair) error {
	if pair.decodeErr != nil {
		return malformed(op, pair.decodeErr)
	}
	if pair.Key == "" {
		return invalid(op, "key is required")
	}
	val, err := compactValue(op, pair.Value)
	if err != nil {
		return err
	}
	return p.write(ctx, op, pair.Key, val, 0)
}
