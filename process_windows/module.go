//go:build windows

package process_windows

import (
	"fmt"
	"strconv"
	"unsafe"

	"remotemem/process"

	"golang.org/x/sys/windows"
)

// Is64Bit reports whether the target runs natively on a 64-bit OS.
// A WOW64 process is 32-bit.
func (p *WindowsProcess) Is64Bit() (bool, error) {
	h, err := p.target()
	if err != nil {
		return false, err
	}

	var wow64 bool
	if err := windows.IsWow64Process(h, &wow64); err != nil {
		return false, fmt.Errorf("IsWow64Process failed: %w", err)
	}
	return !wow64 && os64(), nil
}

func os64() bool {
	if strconv.IntSize == 64 {
		return true
	}
	var wow64 bool
	return windows.IsWow64Process(windows.CurrentProcess(), &wow64) == nil && wow64
}

// MainModule returns the first module the loader lists, the executable image
func (p *WindowsProcess) MainModule() (process.Module, error) {
	h, err := p.target()
	if err != nil {
		return process.Module{}, err
	}

	var mod windows.Handle
	var needed uint32
	if err := windows.EnumProcessModules(h, &mod, uint32(unsafe.Sizeof(mod)), &needed); err != nil {
		return process.Module{}, fmt.Errorf("EnumProcessModules failed: %w", err)
	}

	var info windows.ModuleInfo
	if err := windows.GetModuleInformation(h, mod, &info, uint32(unsafe.Sizeof(info))); err != nil {
		return process.Module{}, fmt.Errorf("GetModuleInformation failed: %w", err)
	}

	var path string
	buf := make([]uint16, windows.MAX_LONG_PATH)
	if err := windows.GetModuleFileNameEx(h, mod, &buf[0], uint32(len(buf))); err == nil {
		path = windows.UTF16ToString(buf)
	}

	return process.Module{
		Base: process.ProcessMemoryAddress(info.BaseOfDll),
		Size: process.ProcessMemorySize(info.SizeOfImage),
		Path: path,
	}, nil
}
