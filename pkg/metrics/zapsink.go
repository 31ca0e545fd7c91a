package metrics

import (
	"time"

	"go.uber.org/zap"
)

// ZapSink writes metrics as structured debug log lines. It is the default
// sink for deployments without a metrics backend.
type ZapSink struct {
	Log *zap.Logger
}

func (s ZapSink) Inc(name string, labels map[string]string) {
	s.Log.Debug("metric inc", zap.String("name", name), zap.Any("labels", labels))
}

func (s ZapSink) Observe(name string, d time.Duration, labels map[string]string) {
	s.Log.Debug("metric observe", zap.String("name", name), zap.Duration("value", d), zap.Any("labels", labels))
}
