// Package logrus adapts a *logrus.Entry to kvproxy.Logger.
package logrus

import (
	"github.com/kng-mtd/kvproxy"
	"github.com/sirupsen/logrus"
)

var _ kvproxy.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f kvproxy.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f kvproxy.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f kvproxy.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f kvproxy.Fields) { l.with(f).Error(msg) }

// with moves an error under "err" to logrus' own error key.
func (l LogrusLogger) with(f kvproxy.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
