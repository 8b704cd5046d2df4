package sloghook

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("bad log line %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestKeysAreRedacted(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})
	h.StoreFault("kvproxy.Get", "acme:secret-plan", errors.New("timeout"))

	out := lines(t, buf)
	if len(out) != 1 {
		t.Fatalf("want 1 line, got %d", len(out))
	}
	if strings.Contains(buf.String(), "acme") {
		t.Fatalf("tenant leaked into log: %s", buf.String())
	}
	if k, _ := out[0]["key"].(string); len(k) != 16 {
		t.Fatalf("redacted key = %q", k)
	}
}

func TestCustomRedactor(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{Redact: func(string) string { return "X" }})
	h.SetRejected("kvproxy.Set", "acme:k")
	if out := lines(t, buf); out[0]["key"] != "X" {
		t.Fatalf("custom redactor not used: %v", out[0])
	}
}

func TestSampling(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{ItemFailedEvery: 3})
	for i := 0; i < 9; i++ {
		h.ItemFailed("kvproxy.BulkSet", i, "t:k", "invalid")
	}
	if n := len(lines(t, buf)); n != 3 {
		t.Fatalf("sampled lines = %d, want 3", n)
	}
}

func TestRestoredLevel(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})
	h.Restored(3, 0, time.Millisecond)
	h.Restored(2, 1, time.Millisecond)
	out := lines(t, buf)
	if out[0]["level"] != "INFO" || out[1]["level"] != "WARN" {
		t.Fatalf("levels = %v, %v", out[0]["level"], out[1]["level"])
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.ItemFailed("op", 0, "t:k", "invalid")
	h.BackupTaken("", 1, time.Second)
}
