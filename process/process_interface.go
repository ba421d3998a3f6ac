package process

// Process is the native backend RemoteMemory drives. Implementations own the
// process handle and perform the raw transfers; width rules, address
// translation and error classification live in RemoteMemory.
type Process interface {
	// Open opens a process with the given PID for memory operations
	Open(pid ProcessID) error

	// Close closes the process and releases resources
	Close() error

	// GetPID returns the process ID
	GetPID() ProcessID

	// Handle returns the owned native handle, nil before Open
	Handle() *Handle

	// Is64Bit reports whether the target runs as a 64-bit process on a 64-bit OS
	Is64Bit() (bool, error)

	// MainModule locates the primary executable image of the target
	MainModule() (Module, error)

	// ReadMemory reads size bytes at addr. A short read returns the bytes
	// actually copied together with an error.
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data at addr and returns how many bytes landed
	WriteMemory(addr ProcessMemoryAddress, data []byte) (int, error)

	// AllocMemory commits size bytes with the given protection in the target
	AllocMemory(size ProcessMemorySize, prot Protection) (ProcessMemoryAddress, error)

	// FreeMemory releases a block returned by AllocMemory
	FreeMemory(addr ProcessMemoryAddress) error
}
