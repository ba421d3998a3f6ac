package process_blob

import (
	"fmt"
	"os"
	"path/filepath"

	"remotemem/process"
)

// LoadDump rebuilds a SimulatedProcess from a directory written by
// RemoteMemory.DumpModule. The image is mapped writable at its recorded base.
func LoadDump(dirname string) (*SimulatedProcess, error) {
	meta, err := process.ReadDumpMetadata(dirname)
	if err != nil {
		return nil, err
	}

	image, err := os.ReadFile(filepath.Join(dirname, meta.ImageFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if process.ProcessMemorySize(len(image)) != meta.ModuleSize {
		return nil, fmt.Errorf("image is %d bytes, metadata says %d", len(image), uint(meta.ModuleSize))
	}

	pid := meta.PID
	if pid <= 0 {
		pid = 1
	}
	p := NewSimulatedProcess(pid, meta.Is64)
	p.SetModule(meta.ModuleBase, image, meta.ModulePath)
	return p, nil
}

// OpenDump loads a dump and wraps it for typed access
func OpenDump(dirname string, opts ...process.Option) (*process.RemoteMemory, error) {
	p, err := LoadDump(dirname)
	if err != nil {
		return nil, err
	}
	return process.NewRemoteMemory(p, opts...)
}
