package process

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/text/encoding"
)

// Inspector64 reports whether this process runs as 64-bit
const Inspector64 = strconv.IntSize == 64

// DefaultMaxStringLength bounds ReadString when no other limit is configured
const DefaultMaxStringLength = ProcessMemorySize(512)

// RemoteMemory reads and writes the address space of one attached process.
// Bit-widths are resolved once at construction; all methods are safe for
// concurrent use as long as the backend is.
type RemoteMemory struct {
	proc Process
	log  *logger.Logger

	self64 bool
	is64   bool
	both64 bool

	encoding        encoding.Encoding
	maxStringLength ProcessMemorySize
}

// NewRemoteMemory wraps an opened backend. On failure the backend is left
// open for the caller to close.
func NewRemoteMemory(proc Process, opts ...Option) (*RemoteMemory, error) {
	if proc == nil {
		return nil, &OpenError{Err: ErrInvalidArgument}
	}
	if !proc.Handle().Valid() {
		return nil, &OpenError{PID: proc.GetPID(), Err: ErrProcessNotOpen}
	}

	is64, err := proc.Is64Bit()
	if err != nil {
		return nil, &OpenError{PID: proc.GetPID(), Err: fmt.Errorf("couldn't determine bit-width: %w", err)}
	}

	m := &RemoteMemory{
		proc:            proc,
		self64:          Inspector64,
		is64:            is64,
		encoding:        UTF8,
		maxStringLength: DefaultMaxStringLength,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.both64 = m.is64 && m.self64

	if m.log == nil {
		m.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("remotemem-%d", proc.GetPID())))
	}
	m.log.Infoln("Attached, target 64-bit:", m.is64, "inspector 64-bit:", m.self64)

	return m, nil
}

// Process returns the backend
func (m *RemoteMemory) Process() Process {
	return m.proc
}

func (m *RemoteMemory) PID() ProcessID {
	return m.proc.GetPID()
}

// Is64Bit reports whether the target is a 64-bit process
func (m *RemoteMemory) Is64Bit() bool {
	return m.is64
}

// Both64 reports whether target and inspector are both 64-bit, which is
// what selects 8-byte pointers on reads
func (m *RemoteMemory) Both64() bool {
	return m.both64
}

// IsOpen reports whether the handle is still usable
func (m *RemoteMemory) IsOpen() bool {
	return m.proc.Handle().Valid()
}

// Close releases the native handle. Calling it again is a no-op.
func (m *RemoteMemory) Close() error {
	if !m.IsOpen() {
		return nil
	}
	err := m.proc.Close()
	m.log.Infoln("Detached")
	return err
}

// MainModule locates the primary executable image of the target
func (m *RemoteMemory) MainModule() (Module, error) {
	if !m.IsOpen() {
		return Module{}, fmt.Errorf("%w: %w", ErrModuleUnavailable, ErrProcessNotOpen)
	}
	mod, err := m.proc.MainModule()
	if err != nil {
		return Module{}, fmt.Errorf("%w: %w", ErrModuleUnavailable, err)
	}
	return mod, nil
}

// ToAbsolute turns a main-module relative address into an absolute one.
// Addresses equal to the module size are accepted.
func (m *RemoteMemory) ToAbsolute(addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	mod, err := m.MainModule()
	if err != nil {
		return 0, err
	}
	if uint64(addr) > uint64(mod.Size) {
		return 0, &OutOfRangeError{Address: addr, Bound: mod.Size}
	}
	return mod.Base + addr, nil
}

func (m *RemoteMemory) absolute(addr ProcessMemoryAddress, relative bool) (ProcessMemoryAddress, error) {
	if !relative {
		return addr, nil
	}
	return m.ToAbsolute(addr)
}

// ReadBytes reads exactly count bytes at addr
func (m *RemoteMemory) ReadBytes(addr ProcessMemoryAddress, count ProcessMemorySize, relative bool) ([]byte, error) {
	if !m.IsOpen() {
		return nil, &ReadError{Address: addr, Size: count, Err: ErrProcessNotOpen}
	}
	abs, err := m.absolute(addr, relative)
	if err != nil {
		return nil, err
	}
	return m.readBytes(abs, count)
}

func (m *RemoteMemory) readBytes(addr ProcessMemoryAddress, count ProcessMemorySize) ([]byte, error) {
	if !m.IsOpen() {
		return nil, &ReadError{Address: addr, Size: count, Err: ErrProcessNotOpen}
	}
	if addr == 0 {
		return nil, &ReadError{Address: addr, Size: count, Err: ErrNullAddress}
	}
	if count == 0 {
		return []byte{}, nil
	}
	if uint64(count) > math.MaxInt || uint64(addr)+uint64(count) < uint64(addr) {
		return nil, &ReadError{Address: addr, Size: count, Err: fmt.Errorf("%w: range wraps the address space", ErrInvalidArgument)}
	}

	data, err := m.proc.ReadMemory(addr, count)
	if err != nil {
		m.log.Debugln("Failed to read memory at", addr.ToString(), err)
		return nil, &ReadError{Address: addr, Size: count, Err: err}
	}
	if ProcessMemorySize(len(data)) != count {
		return nil, &ReadError{Address: addr, Size: count, Err: fmt.Errorf("%w: got %d bytes", ErrShortTransfer, len(data))}
	}
	return data, nil
}

// WriteBytes writes all of data at addr. A partial write is reported as a
// failure even though some bytes may have landed.
func (m *RemoteMemory) WriteBytes(addr ProcessMemoryAddress, data []byte, relative bool) error {
	size := ProcessMemorySize(len(data))
	if !m.IsOpen() {
		return &WriteError{Address: addr, Size: size, Err: fmt.Errorf("%w: %w", ErrInvalidArgument, ErrProcessNotOpen)}
	}
	abs, err := m.absolute(addr, relative)
	if err != nil {
		return err
	}
	return m.writeBytes(abs, data)
}

func (m *RemoteMemory) writeBytes(addr ProcessMemoryAddress, data []byte) error {
	size := ProcessMemorySize(len(data))
	if !m.IsOpen() {
		return &WriteError{Address: addr, Size: size, Err: fmt.Errorf("%w: %w", ErrInvalidArgument, ErrProcessNotOpen)}
	}
	if addr == 0 {
		return &WriteError{Address: addr, Size: size, Err: fmt.Errorf("%w: %w", ErrInvalidArgument, ErrNullAddress)}
	}
	if size == 0 {
		return nil
	}

	n, err := m.proc.WriteMemory(addr, data)
	if err != nil {
		m.log.Debugln("Failed to write memory at", addr.ToString(), err)
		return &WriteError{Address: addr, Size: size, Err: err}
	}
	if n != len(data) {
		return &WriteError{Address: addr, Size: size, Err: fmt.Errorf("%w: wrote %d bytes", ErrShortTransfer, n)}
	}
	return nil
}

// Alloc commits size bytes in the target. The zero Protection is
// read-write-execute.
func (m *RemoteMemory) Alloc(size ProcessMemorySize, prot Protection) (ProcessMemoryAddress, error) {
	if !m.IsOpen() {
		return 0, fmt.Errorf("%w: %d bytes: %w", ErrAllocFailed, uint(size), ErrProcessNotOpen)
	}
	if size == 0 {
		return 0, fmt.Errorf("%w: %w: zero size", ErrAllocFailed, ErrInvalidArgument)
	}

	addr, err := m.proc.AllocMemory(size, prot)
	if err != nil {
		return 0, fmt.Errorf("%w: %d bytes: %w", ErrAllocFailed, uint(size), err)
	}
	if addr == 0 {
		return 0, fmt.Errorf("%w: %d bytes: %w", ErrAllocFailed, uint(size), ErrNullAddress)
	}

	m.log.Infoln("Allocated", size.ToString(), prot.String(), "at", addr.ToString())
	return addr, nil
}

// Free releases a block returned by Alloc
func (m *RemoteMemory) Free(addr ProcessMemoryAddress) error {
	if !m.IsOpen() {
		return fmt.Errorf("%w: 0x%X: %w", ErrFreeFailed, uint64(addr), ErrProcessNotOpen)
	}
	if addr == 0 {
		return fmt.Errorf("%w: %w", ErrFreeFailed, ErrNullAddress)
	}
	if err := m.proc.FreeMemory(addr); err != nil {
		return fmt.Errorf("%w: 0x%X: %w", ErrFreeFailed, uint64(addr), err)
	}
	m.log.Infoln("Freed", addr.ToString())
	return nil
}
