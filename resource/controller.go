// Package resource manages the engine's global resource budgets: the memory
// ceiling table regions are carved out of, flush worker slots, and flush IO
// throughput.
//
// The controller is the allocator behind every table memory. A table acquires
// its one backing region at construction and releases it at close; with a
// hard limit configured the engine runs with a statically known memory
// ceiling.
package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrOutOfMemory is returned when an allocation would exceed the configured
// memory limit.
var ErrOutOfMemory = errors.New("resource: out of memory")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxFlushWorkers is the maximum number of concurrent background flush
	// jobs. If 0, defaults to 1.
	MaxFlushWorkers int64

	// FlushIOBytesPerSec is the maximum IO throughput for background flushes.
	// If 0, unlimited.
	FlushIOBytesPerSec int64
}

// Controller manages global resources (memory, flush concurrency, flush IO).
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Flush concurrency
	flushSem *semaphore.Weighted

	// Flush IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxFlushWorkers <= 0 {
		cfg.MaxFlushWorkers = 1
	}

	c := &Controller{
		cfg:      cfg,
		flushSem: semaphore.NewWeighted(cfg.MaxFlushWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.FlushIOBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.FlushIOBytesPerSec), int(cfg.FlushIOBytesPerSec))
	}

	return c
}

// AcquireMemory reserves memory for a region. With a hard limit configured,
// an allocation that cannot be satisfied fails immediately with
// ErrOutOfMemory: table regions are sized up front, so waiting for another
// table to release its region would deadlock the single writer.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrOutOfMemory
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	return c.memUsed.Load()
}

// AcquireFlushSlot reserves a flush worker slot. Blocks if all slots are
// busy.
func (c *Controller) AcquireFlushSlot(ctx context.Context) error {
	return c.flushSem.Acquire(ctx, 1)
}

// TryAcquireFlushSlot reserves a flush worker slot without blocking.
func (c *Controller) TryAcquireFlushSlot() bool {
	return c.flushSem.TryAcquire(1)
}

// ReleaseFlushSlot releases a flush worker slot.
func (c *Controller) ReleaseFlushSlot() {
	c.flushSem.Release(1)
}

// AcquireIO waits until the flush IO limit allows the specified number of
// bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
