package process_blob

import (
	"fmt"
	"sort"
	"sync"

	"remotemem/process"
)

const pageSize = 0x1000

// Stats counts the native calls a SimulatedProcess has served
type Stats struct {
	Reads      int
	Writes     int
	Allocs     int
	Frees      int
	ReadSizes  []process.ProcessMemorySize
	WriteSizes []process.ProcessMemorySize
}

// SimulatedProcess implements process.Process over an in-memory address space.
// It has a configurable bit-width and records every transfer it serves.
type SimulatedProcess struct {
	pid       process.ProcessID
	is64      bool
	module    *process.Module
	blobs     []*ProcessBlob
	handle    *process.Handle
	nextAlloc process.ProcessMemoryAddress
	writeCap  int
	stats     Stats
	mu        sync.Mutex
}

var _ process.Process = (*SimulatedProcess)(nil)

// NewSimulatedProcess returns an opened process with an empty address space
func NewSimulatedProcess(pid process.ProcessID, is64 bool) *SimulatedProcess {
	p := &SimulatedProcess{
		is64:     is64,
		writeCap: -1,
	}
	if is64 {
		p.nextAlloc = 0x7f0000000000
	} else {
		p.nextAlloc = 0x60000000
	}
	p.Open(pid)
	return p
}

// Open reopens the simulated process with a fresh handle
func (p *SimulatedProcess) Open(pid process.ProcessID) error {
	if pid <= 0 {
		return &process.OpenError{PID: pid, Err: process.ErrInvalidArgument}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pid = pid
	p.handle = process.NewHandle(uintptr(pid), nil)
	return nil
}

func (p *SimulatedProcess) Close() error {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()
	return h.Close()
}

func (p *SimulatedProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *SimulatedProcess) Handle() *process.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

func (p *SimulatedProcess) Is64Bit() (bool, error) {
	return p.is64, nil
}

// Map adds a region holding a copy of data
func (p *SimulatedProcess) Map(base process.ProcessMemoryAddress, data []byte, writable bool) *ProcessBlob {
	buf := make([]byte, len(data))
	copy(buf, data)
	blob := NewProcessBlob(base, buf, writable)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.insert(blob)
	return blob
}

func (p *SimulatedProcess) insert(blob *ProcessBlob) {
	p.blobs = append(p.blobs, blob)
	sort.Slice(p.blobs, func(i, j int) bool {
		return p.blobs[i].Base() < p.blobs[j].Base()
	})
}

// SetModule maps the main module image at base
func (p *SimulatedProcess) SetModule(base process.ProcessMemoryAddress, image []byte, path string) *ProcessBlob {
	blob := p.Map(base, image, true)
	p.mu.Lock()
	p.module = &process.Module{Base: base, Size: process.ProcessMemorySize(len(image)), Path: path}
	p.mu.Unlock()
	return blob
}

func (p *SimulatedProcess) MainModule() (process.Module, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.module == nil {
		return process.Module{}, process.ErrModuleUnavailable
	}
	return *p.module, nil
}

// LimitWrites makes every later write land at most n bytes. A negative n
// removes the limit.
func (p *SimulatedProcess) LimitWrites(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeCap = n
}

// Stats returns a snapshot of the call counters
func (p *SimulatedProcess) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.ReadSizes = append([]process.ProcessMemorySize(nil), p.stats.ReadSizes...)
	s.WriteSizes = append([]process.ProcessMemorySize(nil), p.stats.WriteSizes...)
	return s
}

// Peek returns a copy of n bytes at addr without counting a read
func (p *SimulatedProcess) Peek(addr process.ProcessMemoryAddress, n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	blob := p.find(addr)
	if blob == nil {
		return nil, process.ErrAddressNotMapped
	}
	return blob.ReadMemory(addr, process.ProcessMemorySize(n))
}

func (p *SimulatedProcess) find(addr process.ProcessMemoryAddress) *ProcessBlob {
	i := sort.Search(len(p.blobs), func(i int) bool {
		return p.blobs[i].End() > addr
	})
	if i < len(p.blobs) && p.blobs[i].Contains(addr) {
		return p.blobs[i]
	}
	return nil
}

func (p *SimulatedProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Reads++
	p.stats.ReadSizes = append(p.stats.ReadSizes, size)

	if !p.handle.Valid() {
		return nil, process.ErrProcessNotOpen
	}
	blob := p.find(addr)
	if blob == nil {
		return nil, process.ErrAddressNotMapped
	}
	return blob.ReadMemory(addr, size)
}

func (p *SimulatedProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Writes++
	p.stats.WriteSizes = append(p.stats.WriteSizes, process.ProcessMemorySize(len(data)))

	if !p.handle.Valid() {
		return 0, process.ErrProcessNotOpen
	}
	blob := p.find(addr)
	if blob == nil {
		return 0, process.ErrAddressNotMapped
	}
	if p.writeCap >= 0 && len(data) > p.writeCap {
		data = data[:p.writeCap]
	}
	return blob.WriteMemory(addr, data)
}

func (p *SimulatedProcess) AllocMemory(size process.ProcessMemorySize, prot process.Protection) (process.ProcessMemoryAddress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Allocs++

	if !p.handle.Valid() {
		return 0, process.ErrProcessNotOpen
	}
	length := (uint64(size) + pageSize - 1) &^ (pageSize - 1)
	addr := p.nextAlloc
	p.nextAlloc += process.ProcessMemoryAddress(length + pageSize)

	writable := prot == process.ProtectReadWrite || prot == process.ProtectReadWriteExecute
	blob := NewProcessBlob(addr, make([]byte, length), writable)
	blob.allocated = true
	p.insert(blob)
	return addr, nil
}

func (p *SimulatedProcess) FreeMemory(addr process.ProcessMemoryAddress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Frees++

	if !p.handle.Valid() {
		return process.ErrProcessNotOpen
	}
	for i, blob := range p.blobs {
		if blob.Base() == addr && blob.allocated {
			p.blobs = append(p.blobs[:i], p.blobs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no allocation at 0x%x: %w", uint64(addr), process.ErrAddressNotMapped)
}
