package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// #region errors
var (
	// ErrOutOfMemory is returned when an allocation would exceed the device's live-buffer cap.
	ErrOutOfMemory = errors.New("device: out of buffer memory")
	// ErrDoubleRelease is returned when a buffer is released more than once.
	ErrDoubleRelease = errors.New("device: buffer already released")
	// ErrReleased is returned when reading a buffer after release.
	ErrReleased = errors.New("device: read of released buffer")
)

// #endregion errors

// #region device-interface

// Device allocates tensor buffers. Buffers are not garbage collected from the
// device's point of view: every Alloc must be paired with exactly one Release.
type Device interface {
	Alloc(values []float32) (*Buffer, error)
	Live() int
}

// #endregion device-interface

// #region buffer

// Buffer is a device-resident tensor backing one named input or output.
type Buffer struct {
	id       uint64
	data     []float32
	mu       sync.Mutex
	released bool
	free     func()
}

// ID returns the allocation sequence number, unique per device.
func (b *Buffer) ID() uint64 {
	return b.id
}

// Len returns the number of elements held by the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Read copies the buffer contents into a plain slice.
func (b *Buffer) Read() ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, fmt.Errorf("buffer %d: %w", b.id, ErrReleased)
	}
	out := make([]float32, len(b.data))
	copy(out, b.data)
	return out, nil
}

// Release returns the buffer to its device. A second call fails with
// ErrDoubleRelease and does not touch the device's accounting.
func (b *Buffer) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return fmt.Errorf("buffer %d: %w", b.id, ErrDoubleRelease)
	}
	b.released = true
	b.data = nil
	if b.free != nil {
		b.free()
	}
	return nil
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// #endregion buffer

// #region host

// Host is a CPU-memory device that keeps exact live-buffer accounting.
// A non-positive maxLive disables the cap.
type Host struct {
	maxLive int64
	live    atomic.Int64
	next    atomic.Uint64
}

// NewHost creates a host device.
func NewHost(maxLive int) *Host {
	return &Host{maxLive: int64(maxLive)}
}

// Alloc copies values into a new buffer.
func (h *Host) Alloc(values []float32) (*Buffer, error) {
	n := h.live.Add(1)
	if h.maxLive > 0 && n > h.maxLive {
		h.live.Add(-1)
		return nil, fmt.Errorf("alloc %d floats (%d live): %w", len(values), n-1, ErrOutOfMemory)
	}
	data := make([]float32, len(values))
	copy(data, values)
	return &Buffer{
		id:   h.next.Add(1),
		data: data,
		free: func() { h.live.Add(-1) },
	}, nil
}

// Live returns the number of allocated, unreleased buffers.
func (h *Host) Live() int {
	return int(h.live.Load())
}

// #endregion host
