//go:build go1.21

package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/kng-mtd/kvproxy"
)

func TestLoggerLevelsAndOrder(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo})
	l := Logger{L: stdslog.New(h)}

	l.Debug("hidden", kvproxy.Fields{"a": 1})
	l.Info("backup taken", kvproxy.Fields{"tenant": "t", "entries": 3})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug written at info level: %q", out)
	}
	if !strings.Contains(out, `msg="backup taken" entries=3 tenant=t`) {
		t.Fatalf("output = %q", out)
	}
}
