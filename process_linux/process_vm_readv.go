//go:build linux

package process_linux

import (
	"fmt"
	"math"
	"unsafe"

	"remotemem/process"
	"remotemem/process/memory_map"

	"golang.org/x/sys/unix"
)

// Reads above this size are checked against the memory map before the local
// buffer is allocated
const maxUncheckedRead = 64 << 20

// process_vm_readv uses the process_vm_readv syscall to read memory from another process
func process_vm_readv(
	pid process.ProcessID,
	remoteAddr process.ProcessMemoryAddress,
	bytesToRead process.ProcessMemorySize,
) ([]byte, error) {
	if uint64(remoteAddr) > uint64(^uintptr(0)) {
		return nil, fmt.Errorf("address 0x%x does not fit this process's pointer size: %w", uint64(remoteAddr), process.ErrInvalidArgument)
	}

	if uint64(bytesToRead) > math.MaxInt || uint64(remoteAddr)+uint64(bytesToRead) < uint64(remoteAddr) {
		return nil, fmt.Errorf("%d bytes at 0x%x exceed the address space: %w", uint64(bytesToRead), uint64(remoteAddr), process.ErrInvalidArgument)
	}

	localBuf := make([]byte, bytesToRead)

	// Create iovec for local buffer
	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(int(bytesToRead))

	// Create iovec for remote buffer
	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  int(bytesToRead),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return nil, fmt.Errorf("process_vm_readv failed: %w", errno)
	}

	// A read crossing into an unmapped page stops early
	if int(n) != int(bytesToRead) {
		return localBuf[:n], fmt.Errorf("partial read: %d of %d bytes", n, bytesToRead)
	}

	return localBuf, nil
}

// ReadMemory reads memory from the process at the specified address
func (p *LinuxProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	pid, err := p.target()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	if uint64(size) > maxUncheckedRead {
		mm, err := memory_map.ReadMemoryMap(int(pid))
		if err != nil {
			return nil, fmt.Errorf("failed to read memory map: %w", err)
		}
		if !memory_map.Covers(uint64(addr), uint64(size), mm) {
			return nil, fmt.Errorf("%d bytes at 0x%x are not mapped readable: %w", uint64(size), uint64(addr), process.ErrAddressNotMapped)
		}
	}

	return process_vm_readv(pid, addr, size)
}
