//go:build windows

package process_windows

import (
	"fmt"
	"unsafe"

	"remotemem/process"

	"golang.org/x/sys/windows"
)

func checkAddress(addr process.ProcessMemoryAddress) error {
	if uint64(addr) > uint64(^uintptr(0)) {
		return fmt.Errorf("address 0x%x does not fit this process's pointer size: %w", uint64(addr), process.ErrInvalidArgument)
	}
	return nil
}

// Reads above this size are checked with VirtualQueryEx before the local
// buffer is allocated
const maxUncheckedRead = 64 << 20

func readableRange(h windows.Handle, addr uintptr, size uint64) bool {
	end := uint64(addr) + size
	if end < uint64(addr) || end-1 > uint64(^uintptr(0)) {
		return false
	}
	for uint64(addr) < end {
		var mbi windows.MemoryBasicInformation
		if err := windows.VirtualQueryEx(h, addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			return false
		}
		if mbi.State != windows.MEM_COMMIT || mbi.Protect&(windows.PAGE_NOACCESS|windows.PAGE_GUARD) != 0 {
			return false
		}
		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			return false
		}
		addr = next
	}
	return true
}

// ReadMemory reads memory from the process at the specified address.
// ERROR_PARTIAL_COPY returns the copied prefix with the error.
func (p *WindowsProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	h, err := p.target()
	if err != nil {
		return nil, err
	}
	if err := checkAddress(addr); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	if uint64(size) > maxUncheckedRead && !readableRange(h, uintptr(addr), uint64(size)) {
		return nil, fmt.Errorf("%d bytes at 0x%x are not committed readable memory: %w", uint64(size), uint64(addr), process.ErrAddressNotMapped)
	}

	buf := make([]byte, size)
	var n uintptr
	if err := windows.ReadProcessMemory(h, uintptr(addr), &buf[0], uintptr(size), &n); err != nil {
		return buf[:n], fmt.Errorf("ReadProcessMemory failed: %w", err)
	}
	return buf[:n], nil
}

// WriteMemory writes data to the process memory at the specified address
func (p *WindowsProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	h, err := p.target()
	if err != nil {
		return 0, err
	}
	if err := checkAddress(addr); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	var n uintptr
	if err := windows.WriteProcessMemory(h, uintptr(addr), &data[0], uintptr(len(data)), &n); err != nil {
		return int(n), fmt.Errorf("WriteProcessMemory failed: %w", err)
	}
	return int(n), nil
}

func pageProtection(prot process.Protection) uintptr {
	switch prot {
	case process.ProtectRead:
		return windows.PAGE_READONLY
	case process.ProtectReadWrite:
		return windows.PAGE_READWRITE
	case process.ProtectReadExecute:
		return windows.PAGE_EXECUTE_READ
	default:
		return windows.PAGE_EXECUTE_READWRITE
	}
}

// AllocMemory reserves and commits size bytes in the target
func (p *WindowsProcess) AllocMemory(size process.ProcessMemorySize, prot process.Protection) (process.ProcessMemoryAddress, error) {
	h, err := p.target()
	if err != nil {
		return 0, err
	}

	addr, _, err := procVirtualAllocEx.Call(uintptr(h), 0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, pageProtection(prot))
	if addr == 0 {
		return 0, fmt.Errorf("VirtualAllocEx failed: %w", err)
	}

	p.log.Debugln("Allocated", size.ToString(), "at", fmt.Sprintf("%x", addr))
	return process.ProcessMemoryAddress(addr), nil
}

// FreeMemory releases the whole region AllocMemory reserved at addr
func (p *WindowsProcess) FreeMemory(addr process.ProcessMemoryAddress) error {
	h, err := p.target()
	if err != nil {
		return err
	}
	if err := checkAddress(addr); err != nil {
		return err
	}

	ok, _, err := procVirtualFreeEx.Call(uintptr(h), uintptr(addr), 0, windows.MEM_RELEASE)
	if ok == 0 {
		return fmt.Errorf("VirtualFreeEx failed: %w", err)
	}
	return nil
}
