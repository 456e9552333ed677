package engine

import "time"

// MetricsObserver defines the interface for observing engine events.
type MetricsObserver interface {
	// OnFreeze is called when the active table freezes.
	OnFreeze(records int)

	// OnFlush is called when a background flush completes.
	OnFlush(duration time.Duration, records int, bytes int64, err error)

	// OnCheckpoint is called when an explicit checkpoint completes.
	OnCheckpoint(duration time.Duration, err error)

	// OnCacheReset is called when the lookup cache is reset after
	// overflowing its capacity.
	OnCacheReset(evicted int)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnFreeze(int)                             {}
func (NoopMetricsObserver) OnFlush(time.Duration, int, int64, error) {}
func (NoopMetricsObserver) OnCheckpoint(time.Duration, error)        {}
func (NoopMetricsObserver) OnCacheReset(int)                         {}
