package telemetry

import "time"

// NoopProvider discards every metric.
type NoopProvider struct{}

func (NoopProvider) IncrementCounter(_ string, _ int64, _ ...string) {}
func (NoopProvider) Gauge(_ string, _ float64, _ ...string)          {}
func (NoopProvider) Timing(_ string, _ time.Duration, _ ...string)   {}
func (NoopProvider) Close() error                                    { return nil }
