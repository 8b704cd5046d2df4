package kvproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var ignorePairDecodeErr = cmpopts.IgnoreUnexported(Pair{})

func seed(t *testing.T, px *proxy, items ...Item) {
	t.Helper()
	for _, it := range items {
		if err := px.Set(context.Background(), it); err != nil {
			t.Fatalf("Set(%s:%s): %v", it.Tenant, it.Key, err)
		}
	}
}

func TestBackupAllAndScoped(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	px := newTestProxy(t, newMemProvider(), func(o *Options) { o.Hooks = h })
	seed(t, px,
		Item{Tenant: "a", Key: "x", Value: raw(`1`)},
		Item{Tenant: "a", Key: "y", Value: raw(`{"n":null}`)},
		Item{Tenant: "b", Key: "x", Value: raw(`false`)},
	)

	all, err := px.Backup(ctx, "")
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	want := []Pair{
		{Key: "a:x", Value: raw(`1`)},
		{Key: "a:y", Value: raw(`{"n":null}`)},
		{Key: "b:x", Value: raw(`false`)},
	}
	if diff := cmp.Diff(want, all, ignorePairDecodeErr); diff != "" {
		t.Fatalf("Backup mismatch (-want +got):\n%s", diff)
	}

	scoped, err := px.Backup(ctx, "b")
	if err != nil {
		t.Fatalf("Backup(b): %v", err)
	}
	if diff := cmp.Diff(want[2:], scoped, ignorePairDecodeErr); diff != "" {
		t.Fatalf("Backup(b) mismatch (-want +got):\n%s", diff)
	}

	_, err = px.Backup(ctx, "a:b")
	wantCode(t, err, EInvalid)

	if h.backups != 2 {
		t.Fatalf("BackupTaken calls = %d", h.backups)
	}
}

func TestBackupKeepsListOrderUnderParallelReads(t *testing.T) {
	ctx := context.Background()
	px := newTestProxy(t, newMemProvider(), func(o *Options) { o.BackupConcurrency = 3 })

	var want []Pair
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%03d", i)
		v := fmt.Sprintf(`{"i":%d}`, i)
		seed(t, px, Item{Tenant: "t", Key: k, Value: raw(v)})
		want = append(want, Pair{Key: "t:" + k, Value: raw(v)})
	}
	got, err := px.Backup(ctx, "t")
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if diff := cmp.Diff(want, got, ignorePairDecodeErr); diff != "" {
		t.Fatalf("Backup order mismatch (-want +got):\n%s", diff)
	}
}

// vanishingProvider lists a key that is gone by the time it is read.
type vanishingProvider struct{ *memProvider }

func (p vanishingProvider) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.memProvider.List(ctx, prefix)
	return append(keys, "t:gone"), err
}

func TestBackupSkipsVanishedKeys(t *testing.T) {
	mp := newMemProvider()
	px := newTestProxy(t, vanishingProvider{mp}, nil)
	seed(t, px, Item{Tenant: "t", Key: "here", Value: raw(`1`)})

	got, err := px.Backup(context.Background(), "")
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if len(got) != 1 || got[0].Key != "t:here" {
		t.Fatalf("Backup = %+v", got)
	}
}

func TestBackupRejectsNonJSONValue(t *testing.T) {
	mp := newMemProvider()
	mp.m["t:bin"] = memEntry{v: []byte{0xff, 0x00}}
	px := newTestProxy(t, mp, nil)

	_, err := px.Backup(context.Background(), "")
	wantCode(t, err, EInternal)
}

func TestBackupReadFault(t *testing.T) {
	mp := newMemProvider()
	px := newTestProxy(t, mp, nil)
	seed(t, px, Item{Tenant: "t", Key: "k", Value: raw(`1`)})
	mp.getErr = errors.New("read timeout")

	_, err := px.Backup(context.Background(), "")
	wantCode(t, err, EStoreFault)
}

func TestBackupRestoreFixedPoint(t *testing.T) {
	ctx := context.Background()
	src := newTestProxy(t, newMemProvider(), nil)
	seed(t, src,
		Item{Tenant: "alpha", Key: "cfg", Value: raw(`{"on":true,"list":[1,2,3]}`)},
		Item{Tenant: "alpha", Key: "zero", Value: raw(`0`)},
		Item{Tenant: "beta", Key: "cfg", Value: raw(`null`)},
		Item{Tenant: "gamma", Key: "s", Value: raw(`"text"`)},
	)

	snap, err := src.Backup(ctx, "")
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	// restore into the same store: nothing changes
	res, err := src.Restore(ctx, snap)
	if err != nil || !res.Success || res.Written != len(snap) {
		t.Fatalf("Restore onto self: res=%+v err=%v", res, err)
	}
	again, _ := src.Backup(ctx, "")
	if diff := cmp.Diff(snap, again, ignorePairDecodeErr); diff != "" {
		t.Fatalf("restore(backup()) not a fixed point (-before +after):\n%s", diff)
	}

	// restore into an empty store through the JSON wire shape
	doc, err := json.Marshal(map[string]any{"backupData": snap})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var body struct {
		BackupData []Pair `json:"backupData"`
	}
	if err := json.Unmarshal(doc, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	dst := newTestProxy(t, newMemProvider(), nil)
	if _, err := dst.Restore(ctx, body.BackupData); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	copied, _ := dst.Backup(ctx, "")
	if diff := cmp.Diff(snap, copied, ignorePairDecodeErr); diff != "" {
		t.Fatalf("copy differs (-src +dst):\n%s", diff)
	}
	if got, _ := dst.Get(ctx, "beta", "cfg"); string(got) != "null" {
		t.Fatalf("null value lost: %s", got)
	}
}

func TestRestorePartialFailure(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	px := newTestProxy(t, newMemProvider(), func(o *Options) { o.Hooks = h })

	var body struct {
		BackupData []Pair `json:"backupData"`
	}
	doc := `{"backupData":[
		{"key":"t:a","value":{"x":1}},
		{"key":"","value":1},
		{"key":"t:b"},
		"junk",
		{"key":"raw:with:colons","value":[]}
	]}`
	if err := json.Unmarshal([]byte(doc), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	res, err := px.Restore(ctx, body.BackupData)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.Success || res.Written != 2 || res.Failed != 3 {
		t.Fatalf("Restore result = %+v", res)
	}
	for _, i := range []int{1, 2, 3} {
		if r := res.Results[i]; r.Success || r.Code != EInvalid || r.Index != i {
			t.Fatalf("result[%d] = %+v", i, r)
		}
	}
	if got, _, _ := px.provider.Get(ctx, "raw:with:colons"); string(got) != "[]" {
		t.Fatalf("raw key not written verbatim: %s", got)
	}
	if h.restores != 1 || len(h.itemFailed) != 3 {
		t.Fatalf("hooks: restores=%d itemFailed=%v", h.restores, h.itemFailed)
	}
}

func TestRestoreTooManyEntries(t *testing.T) {
	px := newTestProxy(t, newMemProvider(), func(o *Options) { o.MaxBatchItems = 1 })
	_, err := px.Restore(context.Background(), make([]Pair, 2))
	wantCode(t, err, EInvalid)
}
