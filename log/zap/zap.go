// Package zap adapts a *zap.Logger to kvproxy.Logger and builds the daemon's
// zap logger from Config.
package zap

import (
	"sort"

	"github.com/kng-mtd/kvproxy"
	"go.uber.org/zap"
)

var _ kvproxy.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

func (z ZapLogger) Debug(msg string, f kvproxy.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f kvproxy.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f kvproxy.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f kvproxy.Fields) { z.L.Error(msg, zf(f)...) }

// zf converts f to zap fields in key order. An error under "err" is kept as
// an error field.
func zf(f kvproxy.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		v := f[k]
		if err, ok := v.(error); ok && k == "err" {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
