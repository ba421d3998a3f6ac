package memory_map

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// deletedSuffix is appended by the kernel to paths whose file was unlinked
const deletedSuffix = " (deleted)"

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 // The starting address of the memory region
	Size    uint   // The size of the memory region in bytes
	Perms   string // Permissions (e.g., "r-xp" for read, execute, private)
	Offset  uint64 // Offset into the backing file
	Path    string // Backing file or pseudo path such as [heap], empty for anonymous regions
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Path: %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Path)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return len(mmItem.Perms) > 1 && mmItem.Perms[1] == 'w'
}

func (mmItem MemoryMapItem) IsExecutable() bool {
	return len(mmItem.Perms) > 2 && mmItem.Perms[2] == 'x'
}

// Parse reads regions in /proc/[pid]/maps format. Malformed lines are skipped.
// The result is sorted by address.
func Parse(r io.Reader) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// address perms offset dev inode [path], the path may contain spaces
		fields := strings.SplitN(scanner.Text(), " ", 6)
		if len(fields) < 5 {
			continue
		}

		// Parse address range (e.g., "00400000-0040b000")
		addrRange := strings.Split(fields[0], "-")
		if len(addrRange) != 2 {
			continue
		}

		startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}

		endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil || endAddr < startAddr {
			continue
		}

		offset, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			continue
		}

		var path string
		if len(fields) == 6 {
			path = strings.TrimLeft(fields[5], " ")
		}

		memoryMap = append(memoryMap, MemoryMapItem{
			Address: startAddr,
			Size:    uint(endAddr - startAddr),
			Perms:   fields[1],
			Offset:  offset,
			Path:    path,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})
	return memoryMap, nil
}

// FindRegion returns the region containing addr. memoryMap must be sorted.
func FindRegion(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// ModuleExtent returns the span covering every region backed by path. Paths
// are compared with the kernel's deleted marker removed.
func ModuleExtent(path string, memoryMap []MemoryMapItem) (start, end uint64, ok bool) {
	want := strings.TrimSuffix(path, deletedSuffix)
	for _, item := range memoryMap {
		if strings.TrimSuffix(item.Path, deletedSuffix) != want {
			continue
		}
		if !ok || item.Address < start {
			start = item.Address
		}
		if !ok || item.End() > end {
			end = item.End()
		}
		ok = true
	}
	return start, end, ok
}

// Covers reports whether [addr, addr+size) lies in back to back readable
// regions. memoryMap must be sorted.
func Covers(addr, size uint64, memoryMap []MemoryMapItem) bool {
	end := addr + size
	if end < addr {
		return false
	}
	for addr < end {
		region := FindRegion(addr, memoryMap)
		if region == nil || !region.IsReadable() {
			return false
		}
		addr = region.End()
	}
	return true
}
