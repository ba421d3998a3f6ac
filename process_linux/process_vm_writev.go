//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"remotemem/process"

	"golang.org/x/sys/unix"
)

// process_vm_writev uses the process_vm_writev syscall to write memory to another process.
// It cannot write to pages the target has mapped read-only.
func process_vm_writev(
	pid process.ProcessID,
	localBuf []byte,
	remoteAddr process.ProcessMemoryAddress,
) (int, error) {
	if uint64(remoteAddr) > uint64(^uintptr(0)) {
		return 0, fmt.Errorf("address 0x%x does not fit this process's pointer size: %w", uint64(remoteAddr), process.ErrInvalidArgument)
	}

	// Create iovec for local buffer
	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(len(localBuf))

	// Create iovec for remote buffer
	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return 0, fmt.Errorf("process_vm_writev failed: %w", errno)
	}

	return int(n), nil
}

// WriteMemory writes data to the process memory at the specified address
func (p *LinuxProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	pid, err := p.target()
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	written, err := process_vm_writev(pid, data, addr)
	if err != nil {
		return written, err
	}
	if written != len(data) {
		return written, fmt.Errorf("only wrote %d of %d bytes", written, len(data))
	}

	return written, nil
}
