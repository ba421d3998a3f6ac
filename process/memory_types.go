package process

import (
	"fmt"
	"unsafe"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// Add applies a signed offset, wrapping like native pointer arithmetic
func (pma ProcessMemoryAddress) Add(offset int64) ProcessMemoryAddress {
	return pma + ProcessMemoryAddress(offset)
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// Pointer is a pointer-sized value living in the target's address space.
// Unlike every other transferable type its byte width is not fixed: it depends
// on the bit-width of the target, and for reads also on the inspector's.
type Pointer uint64

// Module describes the primary executable image of a process
type Module struct {
	Base ProcessMemoryAddress
	Size ProcessMemorySize
	Path string
}

// End returns the first address past the image
func (m Module) End() ProcessMemoryAddress {
	return m.Base + ProcessMemoryAddress(m.Size)
}

func (m Module) Contains(addr ProcessMemoryAddress) bool {
	return addr >= m.Base && addr < m.End()
}

func (m Module) String() string {
	return fmt.Sprintf("%s [0x%X-0x%X]", m.Path, uint64(m.Base), uint64(m.End()))
}

// Protection selects the page protection of remotely allocated memory.
// The zero value is read-write-execute.
type Protection uint8

const (
	ProtectReadWriteExecute Protection = iota
	ProtectReadWrite
	ProtectReadExecute
	ProtectRead
)

func (p Protection) String() string {
	switch p {
	case ProtectReadWriteExecute:
		return "rwx"
	case ProtectReadWrite:
		return "rw-"
	case ProtectReadExecute:
		return "r-x"
	case ProtectRead:
		return "r--"
	}
	return fmt.Sprintf("Protection(%d)", uint8(p))
}

// Width is the transfer size class of a value type: either a fixed byte
// count or pointer-sized, resolved against the attached process per call.
type Width struct {
	fixed   uintptr
	pointer bool
}

// PointerSized is the width of Pointer
var PointerSized = Width{pointer: true}

// FixedSize is the width of every type other than Pointer
func FixedSize(n uintptr) Width {
	return Width{fixed: n}
}

func (w Width) IsPointer() bool {
	return w.pointer
}

// Bytes resolves the width to a byte count. wide selects 8-byte pointers.
func (w Width) Bytes(wide bool) uintptr {
	if !w.pointer {
		return w.fixed
	}
	if wide {
		return 8
	}
	return 4
}

// WidthOf returns the transfer width of T
func WidthOf[T any]() Width {
	var zero T
	if _, ok := any(zero).(Pointer); ok {
		return PointerSized
	}
	return FixedSize(unsafe.Sizeof(zero))
}
