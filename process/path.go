package process

import (
	"fmt"
)

// Resolve follows a pointer chain. It reads a Pointer at base, then for every
// offset but the last adds it to the current pointer and dereferences again.
// The last offset is added without a dereference, so the result is the
// address of the final field rather than its value. Only base honors
// relative; later hops are absolute.
func (m *RemoteMemory) Resolve(base ProcessMemoryAddress, relative bool, offsets ...int64) (ProcessMemoryAddress, error) {
	if len(offsets) == 0 {
		return 0, ErrEmptyPointerChain
	}

	ptr, err := Read[Pointer](m, base, relative)
	if err != nil {
		return 0, fmt.Errorf("failed to read base pointer at 0x%x: %w", uint64(base), err)
	}
	current := ProcessMemoryAddress(ptr)

	for i, off := range offsets[:len(offsets)-1] {
		addr := current.Add(off)
		ptr, err := Read[Pointer](m, addr, false)
		if err != nil {
			return 0, fmt.Errorf("failed to read pointer at offset %d (addr 0x%x): %w", i, uint64(addr), err)
		}
		current = ProcessMemoryAddress(ptr)
	}

	return current.Add(offsets[len(offsets)-1]), nil
}

// ReadPath resolves the chain and reads a T at the resulting address
func ReadPath[T any](m *RemoteMemory, base ProcessMemoryAddress, relative bool, offsets ...int64) (T, error) {
	var zero T
	addr, err := m.Resolve(base, relative, offsets...)
	if err != nil {
		return zero, err
	}

	val, err := Read[T](m, addr, false)
	if err != nil {
		return zero, fmt.Errorf("failed to read final value at 0x%x: %w", uint64(addr), err)
	}
	return val, nil
}

// WritePath resolves the chain and writes value at the resulting address
func WritePath[T any](m *RemoteMemory, base ProcessMemoryAddress, relative bool, value T, offsets ...int64) error {
	addr, err := m.Resolve(base, relative, offsets...)
	if err != nil {
		return err
	}
	return Write(m, addr, value, false)
}
