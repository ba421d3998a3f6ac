//go:build linux

package process_linux

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"remotemem/process"
	"remotemem/process/memory_map"

	"golang.org/x/sys/unix"
)

const pageSize = 0x1000

func protFlags(prot process.Protection) uintptr {
	switch prot {
	case process.ProtectRead:
		return unix.PROT_READ
	case process.ProtectReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	case process.ProtectReadExecute:
		return unix.PROT_READ | unix.PROT_EXEC
	default:
		return unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	}
}

// AllocMemory maps anonymous private pages in the target by making it call
// mmap. The target is stopped for the duration of the call.
func (p *LinuxProcess) AllocMemory(size process.ProcessMemorySize, prot process.Protection) (process.ProcessMemoryAddress, error) {
	pid, err := p.target()
	if err != nil {
		return 0, err
	}
	is64, err := p.Is64Bit()
	if err != nil {
		return 0, err
	}
	if !is64 {
		return 0, fmt.Errorf("remote mmap into a 32-bit target: %w", process.ErrUnsupported)
	}

	site, err := p.syscallSite(pid)
	if err != nil {
		return 0, err
	}

	length := (uint64(size) + pageSize - 1) &^ (pageSize - 1)
	addr, err := remoteMmap(pid, site, uintptr(length), protFlags(prot))
	if err != nil {
		return 0, fmt.Errorf("remote mmap: %w", err)
	}

	p.mu.Lock()
	p.allocs[process.ProcessMemoryAddress(addr)] = length
	log := p.log
	p.mu.Unlock()

	log.Debugln("Mapped", length, "bytes at", fmt.Sprintf("%x", addr))
	return process.ProcessMemoryAddress(addr), nil
}

// FreeMemory unmaps a block returned by AllocMemory. Blocks from an earlier
// session are sized from the memory map.
func (p *LinuxProcess) FreeMemory(addr process.ProcessMemoryAddress) error {
	pid, err := p.target()
	if err != nil {
		return err
	}

	p.mu.Lock()
	length, ok := p.allocs[addr]
	p.mu.Unlock()

	if !ok {
		mm, err := memory_map.ReadMemoryMap(int(pid))
		if err != nil {
			return fmt.Errorf("failed to read memory map: %w", err)
		}
		region := memory_map.FindRegion(uint64(addr), mm)
		if region == nil || region.Address != uint64(addr) {
			return fmt.Errorf("no mapping starts at 0x%x: %w", uint64(addr), process.ErrAddressNotMapped)
		}
		// file-backed and [heap]/[stack] style regions were never ours to release
		if region.Path != "" {
			return fmt.Errorf("mapping at 0x%x is backed by %s: %w", uint64(addr), region.Path, process.ErrInvalidArgument)
		}
		length = uint64(region.Size)
	}

	site, err := p.syscallSite(pid)
	if err != nil {
		return err
	}
	if err := remoteMunmap(pid, site, uintptr(addr), uintptr(length)); err != nil {
		return fmt.Errorf("remote munmap: %w", err)
	}

	p.mu.Lock()
	delete(p.allocs, addr)
	p.mu.Unlock()

	return nil
}

// syscallSite returns the address of a syscall instruction already present in
// an executable mapping of the target. Remote calls jump there; the target's
// code is never modified.
func (p *LinuxProcess) syscallSite(pid process.ProcessID) (uintptr, error) {
	p.mu.Lock()
	site := p.site
	p.mu.Unlock()
	if site != 0 {
		return site, nil
	}

	if len(syscallInsn) == 0 {
		return 0, fmt.Errorf("remote syscalls on %s: %w", runtime.GOARCH, process.ErrUnsupported)
	}
	mm, err := memory_map.ReadMemoryMap(int(pid))
	if err != nil {
		return 0, fmt.Errorf("failed to read memory map: %w", err)
	}
	for _, region := range syscallCandidates(mm) {
		data, err := p.ReadMemory(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
		if err != nil {
			continue
		}
		if i := bytes.Index(data, syscallInsn); i >= 0 {
			site = uintptr(region.Address) + uintptr(i)
			break
		}
	}
	if site == 0 {
		return 0, fmt.Errorf("no syscall instruction in any executable mapping: %w", process.ErrUnsupported)
	}

	p.mu.Lock()
	p.site = site
	p.mu.Unlock()
	return site, nil
}

// syscallCandidates orders the readable executable regions: [vdso] first,
// then libc, then the rest
func syscallCandidates(mm []memory_map.MemoryMapItem) []memory_map.MemoryMapItem {
	var out []memory_map.MemoryMapItem
	for _, item := range mm {
		if item.IsReadable() && item.IsExecutable() {
			out = append(out, item)
		}
	}
	rank := func(item memory_map.MemoryMapItem) int {
		switch {
		case item.Path == "[vdso]":
			return 0
		case strings.Contains(filepath.Base(item.Path), "libc"):
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) < rank(out[j])
	})
	return out
}
