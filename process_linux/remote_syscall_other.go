//go:build linux && !amd64

package process_linux

import (
	"fmt"
	"runtime"

	"remotemem/process"
)

var syscallInsn []byte

func remoteMmap(pid process.ProcessID, site, length, prot uintptr) (uintptr, error) {
	return 0, fmt.Errorf("remote syscalls on %s: %w", runtime.GOARCH, process.ErrUnsupported)
}

func remoteMunmap(pid process.ProcessID, site, addr, length uintptr) error {
	return fmt.Errorf("remote syscalls on %s: %w", runtime.GOARCH, process.ErrUnsupported)
}
