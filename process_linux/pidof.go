//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"remotemem/process"
)

// ListByName returns all processes whose comm or exe basename equals name,
// ordered by PID. The match is case-sensitive like pidof.
func ListByName(name string) ([]process.ProcessInfo, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	var out []process.ProcessInfo

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue // not a PID dir
		}

		// Resolve /proc/<pid>/exe symlink; may fail if zombie or permission
		exe, _ := os.Readlink(filepath.Join("/proc", e.Name(), "exe"))

		comm, _ := os.ReadFile(filepath.Join("/proc", e.Name(), "comm"))
		comm = bytesTrimNL(comm)
		if string(comm) == name {
			out = append(out, process.ProcessInfo{PID: process.ProcessID(pid), Name: string(comm), Exe: exe})
			continue
		}

		if exe != "" && filepath.Base(exe) == name {
			out = append(out, process.ProcessInfo{PID: process.ProcessID(pid), Name: filepath.Base(exe), Exe: exe})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].PID < out[j].PID
	})
	return out, nil
}

// ----- helpers -----

func procExists(pid int) bool {
	// Fast path: stat /proc/<pid>
	_, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid)))
	if err == nil {
		return true
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	// For transient errors (permission, EIO): fall back to kill 0
	return syscall.Kill(pid, 0) == nil
}

func bytesTrimNL(b []byte) []byte {
	// Trim trailing '\n' if present (comm has a newline).
	for len(b) > 0 {
		switch b[len(b)-1] {
		case '\n', '\r', ' ', '\t':
			b = b[:len(b)-1]
		default:
			return b
		}
	}
	return b
}
