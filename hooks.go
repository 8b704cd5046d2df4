package kvproxy

import "time"

// Hooks are callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; wrap slow sinks with hooks/async.
type Hooks interface {
	// A BulkSet or Restore element failed. code is one of the E* constants.
	ItemFailed(op string, index int, storageKey, code string)

	// A provider call returned an error.
	StoreFault(op, storageKey string, err error)

	// Provider returned ok=false on Set (pressure or admission policy).
	SetRejected(op, storageKey string)

	// A backup finished. tenant is "" for a full backup.
	BackupTaken(tenant string, entries int, took time.Duration)

	// A restore finished.
	Restored(written, failed int, took time.Duration)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ItemFailed(string, int, string, string) {}
func (NopHooks) StoreFault(string, string, error)       {}
func (NopHooks) SetRejected(string, string)             {}
func (NopHooks) BackupTaken(string, int, time.Duration) {}
func (NopHooks) Restored(int, int, time.Duration)       {}

// MultiHooks fans every event out to each of hs in order.
func MultiHooks(hs ...Hooks) Hooks { return multiHooks(hs) }

type multiHooks []Hooks

func (m multiHooks) ItemFailed(op string, i int, k, code string) {
	for _, h := range m {
		h.ItemFailed(op, i, k, code)
	}
}

func (m multiHooks) StoreFault(op, k string, err error) {
	for _, h := range m {
		h.StoreFault(op, k, err)
	}
}

func (m multiHooks) SetRejected(op, k string) {
	for _, h := range m {
		h.SetRejected(op, k)
	}
}

func (m multiHooks) BackupTaken(tenant string, n int, took time.Duration) {
	for _, h := range m {
		h.BackupTaken(tenant, n, took)
	}
}

func (m multiHooks) Restored(w, f int, took time.Duration) {
	for _, h := range m {
		h.Restored(w, f, took)
	}
}
