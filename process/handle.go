package process

import (
	"sync"
	"sync/atomic"
)

const invalidHandleValue = ^uintptr(0)

// Handle owns one native process handle. Zero and all-ones values are invalid.
// Close releases it exactly once; later calls do nothing.
type Handle struct {
	value   uintptr
	release func(uintptr) error
	once    sync.Once
	closed  atomic.Bool
}

// NewHandle takes ownership of value. release may be nil when the value
// needs no cleanup.
func NewHandle(value uintptr, release func(uintptr) error) *Handle {
	return &Handle{value: value, release: release}
}

func (h *Handle) Value() uintptr {
	if h == nil {
		return 0
	}
	return h.value
}

func (h *Handle) IsInvalid() bool {
	return h == nil || h.value == 0 || h.value == invalidHandleValue
}

func (h *Handle) IsClosed() bool {
	return h == nil || h.closed.Load()
}

// Valid reports whether native calls may use the handle
func (h *Handle) Valid() bool {
	return !h.IsInvalid() && !h.IsClosed()
}

func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	var err error
	h.once.Do(func() {
		h.closed.Store(true)
		if h.release != nil && !h.IsInvalid() {
			err = h.release(h.value)
		}
	})
	return err
}
