package lsmgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordPut is called after each put operation.
	RecordPut(duration time.Duration, err error)

	// RecordGet is called after each get operation. miss is true when the
	// key was absent (not an error).
	RecordGet(duration time.Duration, miss bool, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordCheckpoint is called after each checkpoint.
	RecordCheckpoint(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, error)        {}
func (NoopMetricsCollector) RecordGet(time.Duration, bool, error)  {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)     {}
func (NoopMetricsCollector) RecordCheckpoint(time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection,
// useful for debugging without external dependencies.
type BasicMetricsCollector struct {
	PutCount         atomic.Int64
	PutErrors        atomic.Int64
	PutTotalNanos    atomic.Int64
	GetCount         atomic.Int64
	GetMisses        atomic.Int64
	GetErrors        atomic.Int64
	GetTotalNanos    atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	CheckpointCount  atomic.Int64
	CheckpointErrors atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, miss bool, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if miss {
		b.GetMisses.Add(1)
	}
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(duration time.Duration, err error) {
	b.CheckpointCount.Add(1)
	if err != nil {
		b.CheckpointErrors.Add(1)
	}
}

// Stats is a snapshot of BasicMetricsCollector state.
type Stats struct {
	PutCount         int64
	PutErrors        int64
	PutAvgNanos      int64
	GetCount         int64
	GetMisses        int64
	GetErrors        int64
	GetAvgNanos      int64
	DeleteCount      int64
	DeleteErrors     int64
	CheckpointCount  int64
	CheckpointErrors int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() Stats {
	return Stats{
		PutCount:         b.PutCount.Load(),
		PutErrors:        b.PutErrors.Load(),
		PutAvgNanos:      avg(b.PutTotalNanos.Load(), b.PutCount.Load()),
		GetCount:         b.GetCount.Load(),
		GetMisses:        b.GetMisses.Load(),
		GetErrors:        b.GetErrors.Load(),
		GetAvgNanos:      avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		DeleteCount:      b.DeleteCount.Load(),
		DeleteErrors:     b.DeleteErrors.Load(),
		CheckpointCount:  b.CheckpointCount.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}
