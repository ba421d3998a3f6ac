package process_blob

import (
	"fmt"

	"remotemem/process"
)

// ProcessBlob is one mapped region of a simulated address space
type ProcessBlob struct {
	baseaddress process.ProcessMemoryAddress
	data        []byte
	writable    bool
	allocated   bool
}

func NewProcessBlob(baseAddress process.ProcessMemoryAddress, data []byte, writable bool) *ProcessBlob {
	return &ProcessBlob{
		baseaddress: baseAddress,
		data:        data,
		writable:    writable,
	}
}

func (p *ProcessBlob) Base() process.ProcessMemoryAddress {
	return p.baseaddress
}

func (p *ProcessBlob) Size() process.ProcessMemorySize {
	return process.ProcessMemorySize(len(p.data))
}

func (p *ProcessBlob) End() process.ProcessMemoryAddress {
	return p.baseaddress + process.ProcessMemoryAddress(len(p.data))
}

func (p *ProcessBlob) Data() []byte {
	return p.data
}

func (p *ProcessBlob) Contains(addr process.ProcessMemoryAddress) bool {
	return addr >= p.baseaddress && addr < p.End()
}

// ReadMemory copies up to size bytes starting at addr. Reads running past the
// end of the blob return the bytes that fit along with an error.
func (p *ProcessBlob) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if !p.Contains(addr) {
		return nil, process.ErrAddressNotMapped
	}
	offset := uint64(addr - p.baseaddress)
	if uint64(size) > uint64(len(p.data))-offset {
		result := make([]byte, uint64(len(p.data))-offset)
		copy(result, p.data[offset:])
		return result, fmt.Errorf("read of %d bytes at 0x%x crosses end of region 0x%x: %w", size, uint64(addr), uint64(p.End()), process.ErrAddressNotMapped)
	}

	result := make([]byte, size)
	copy(result, p.data[offset:])
	return result, nil
}

// WriteMemory copies data into the blob, stopping at the region end
func (p *ProcessBlob) WriteMemory(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	if !p.Contains(addr) {
		return 0, process.ErrAddressNotMapped
	}
	if !p.writable {
		return 0, fmt.Errorf("region 0x%x is read-only", uint64(p.baseaddress))
	}
	offset := uint64(addr - p.baseaddress)
	n := copy(p.data[offset:], data)
	if n < len(data) {
		return n, fmt.Errorf("write of %d bytes at 0x%x crosses end of region 0x%x: %w", len(data), uint64(addr), uint64(p.End()), process.ErrAddressNotMapped)
	}
	return n, nil
}
