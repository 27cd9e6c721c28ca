package memory

import "errors"

// ErrNotConfigured is returned when memory operations are attempted
// but no extractor or tag store has been configured.
var ErrNotConfigured = errors.New("memory not configured")

// ErrPoolClosed is returned by Pool.Enqueue after Close.
var ErrPoolClosed = errors.New("memory pool closed")

// ErrQueueFull is returned by Pool.Enqueue when the job is dropped.
var ErrQueueFull = errors.New("memory pool queue full")
