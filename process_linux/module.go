//go:build linux

package process_linux

import (
	"debug/elf"
	"fmt"
	"os"
	"strconv"
	"strings"

	"remotemem/process"
	"remotemem/process/memory_map"

	"golang.org/x/sys/unix"
)

// Is64Bit reports whether the target is a 64-bit executable on a 64-bit kernel.
// The answer comes from the ELF class of /proc/[pid]/exe.
func (p *LinuxProcess) Is64Bit() (bool, error) {
	pid, err := p.target()
	if err != nil {
		return false, err
	}
	if !kernel64() {
		return false, nil
	}

	f, err := elf.Open(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return false, fmt.Errorf("failed to read executable header: %w", err)
	}
	defer f.Close()

	return f.Class == elf.ELFCLASS64, nil
}

func kernel64() bool {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return strconv.IntSize == 64
	}
	machine := unix.ByteSliceToString(u.Machine[:])
	return strings.Contains(machine, "64") || machine == "s390x"
}

// MainModule returns the span of every mapping backed by the target's executable
func (p *LinuxProcess) MainModule() (process.Module, error) {
	pid, err := p.target()
	if err != nil {
		return process.Module{}, err
	}

	exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return process.Module{}, fmt.Errorf("failed to resolve executable: %w", err)
	}

	mm, err := memory_map.ReadMemoryMap(int(pid))
	if err != nil {
		return process.Module{}, fmt.Errorf("failed to read memory map: %w", err)
	}

	start, end, ok := memory_map.ModuleExtent(exe, mm)
	if !ok {
		return process.Module{}, fmt.Errorf("%s is not mapped", exe)
	}

	return process.Module{
		Base: process.ProcessMemoryAddress(start),
		Size: process.ProcessMemorySize(end - start),
		Path: strings.TrimSuffix(exe, " (deleted)"),
	}, nil
}
