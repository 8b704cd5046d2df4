package logrus

import (
	"errors"
	"io"
	"testing"

	"github.com/kng-mtd/kvproxy"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLogrusLogger(t *testing.T) {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.DebugLevel)
	hook := test.NewLocal(base)

	l := LogrusLogger{E: logrus.NewEntry(base).WithField("component", "kvproxy")}
	cause := errors.New("dial tcp: refused")
	l.Error("store read failed", kvproxy.Fields{"key": "t:k", "err": cause})
	l.Debug("plain", nil)

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	e := entries[0]
	if e.Level != logrus.ErrorLevel || e.Message != "store read failed" {
		t.Fatalf("entry = %v %q", e.Level, e.Message)
	}
	if e.Data[logrus.ErrorKey] != cause || e.Data["key"] != "t:k" || e.Data["component"] != "kvproxy" {
		t.Fatalf("data = %v", e.Data)
	}
	if entries[1].Level != logrus.DebugLevel || len(entries[1].Data) != 1 {
		t.Fatalf("plain entry = %v %v", entries[1].Level, entries[1].Data)
	}
}
